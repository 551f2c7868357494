package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skobkin/menulink/internal/remote"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Connection.Transport != TransportIP {
		t.Fatalf("expected default transport %q, got %q", TransportIP, cfg.Connection.Transport)
	}
	if cfg.Connection.Mode != ModeJoin {
		t.Fatalf("expected default mode %q, got %q", ModeJoin, cfg.Connection.Mode)
	}
	if cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default serial baud %d, got %d", DefaultSerialBaud, cfg.Connection.SerialBaud)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Identity.Name != DefaultLocalName {
		t.Fatalf("expected default name %q, got %q", DefaultLocalName, cfg.Identity.Name)
	}
	if _, err := uuid.Parse(cfg.Identity.UUID); err != nil {
		t.Fatalf("expected generated uuid, got %q: %v", cfg.Identity.UUID, err)
	}
	if cfg.Protocol.HeartbeatIntervalMS != 1500 || cfg.Protocol.MaxBackoffMS != 60000 || cfg.Protocol.StateTimeoutTicks != 20 {
		t.Fatalf("unexpected protocol defaults: %+v", cfg.Protocol)
	}
}

func TestFillMissingDefaultsUUIDIsStable(t *testing.T) {
	a := AppConfig{Identity: IdentityConfig{Name: "panel"}}
	b := AppConfig{Identity: IdentityConfig{Name: "panel"}}
	a.FillMissingDefaults()
	b.FillMissingDefaults()

	if a.Identity.UUID != b.Identity.UUID {
		t.Fatalf("expected the same derived uuid, got %q and %q", a.Identity.UUID, b.Identity.UUID)
	}
}

func TestFillMissingDefaultsKeepsExistingUUID(t *testing.T) {
	cfg := AppConfig{Identity: IdentityConfig{UUID: "6f1c7a8e-2a47-4d4b-8d55-1d1b0f5b9c10"}}
	cfg.FillMissingDefaults()

	if cfg.Identity.UUID != "6f1c7a8e-2a47-4d4b-8d55-1d1b0f5b9c10" {
		t.Fatalf("uuid was replaced: %q", cfg.Identity.UUID)
	}
}

func TestFillMissingDefaultsNormalizesMode(t *testing.T) {
	cfg := AppConfig{Connection: ConnectionConfig{Mode: " Pairing "}}
	cfg.FillMissingDefaults()
	if cfg.Connection.Mode != ModePairing {
		t.Fatalf("expected pairing mode, got %q", cfg.Connection.Mode)
	}

	cfg = AppConfig{Connection: ConnectionConfig{Mode: "bogus"}}
	cfg.FillMissingDefaults()
	if cfg.Connection.Mode != ModeJoin {
		t.Fatalf("expected unknown mode to fall back to join, got %q", cfg.Connection.Mode)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Transport != TransportIP || cfg.Identity.UUID == "" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadJSONKeepsUnsetSectionsAtDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "connection": {
    "transport": "serial",
    "serial_port": "/dev/ttyACM0"
  },
  "protocol": {
    "heartbeat_interval_ms": 3000
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Transport != TransportSerial || cfg.Connection.SerialPort != "/dev/ttyACM0" {
		t.Fatalf("unexpected connection: %+v", cfg.Connection)
	}
	if cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default baud, got %d", cfg.Connection.SerialBaud)
	}
	if cfg.Protocol.HeartbeatIntervalMS != 3000 {
		t.Fatalf("expected heartbeat override, got %d", cfg.Protocol.HeartbeatIntervalMS)
	}
	if cfg.Protocol.InitialBackoffMS != 1500 {
		t.Fatalf("expected default initial backoff, got %d", cfg.Protocol.InitialBackoffMS)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menulink.toml")
	raw := `
[connection]
transport = "websocket"
websocket_url = "ws://10.0.0.5:3333/ws"
mode = "pairing"

[identity]
name = "bench"

[metrics]
enabled = true
listen = ":9100"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Transport != TransportWebSocket || cfg.Connection.WebSocketURL != "ws://10.0.0.5:3333/ws" {
		t.Fatalf("unexpected connection: %+v", cfg.Connection)
	}
	if cfg.Connection.Mode != ModePairing {
		t.Fatalf("expected pairing mode, got %q", cfg.Connection.Mode)
	}
	if cfg.Identity.Name != "bench" {
		t.Fatalf("expected name bench, got %q", cfg.Identity.Name)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9100" {
		t.Fatalf("unexpected metrics: %+v", cfg.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected loaded config to be valid: %v", err)
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[connection\n"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "toml") {
		t.Fatalf("expected toml decode error, got %v", err)
	}
}

func TestSaveRoundTripsBothFormats(t *testing.T) {
	for _, name := range []string{"config.json", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.Connection.Host = "192.168.4.1"
			cfg.Identity.UUID = "6f1c7a8e-2a47-4d4b-8d55-1d1b0f5b9c10"
			cfg.Journal.Enabled = true

			if err := Save(path, cfg); err != nil {
				t.Fatalf("save: %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Fatalf("temp file left behind: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded != cfg {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
			}
		})
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Default()); err == nil {
		t.Fatalf("expected validation error for missing host")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid config must not be written")
	}
}

func TestRemoteConfig(t *testing.T) {
	cfg := Default()
	cfg.Connection.Mode = ModePairing
	cfg.Identity = IdentityConfig{Name: "panel", UUID: "6f1c7a8e-2a47-4d4b-8d55-1d1b0f5b9c10"}
	cfg.Protocol.HeartbeatIntervalMS = 2500
	cfg.Protocol.StateTimeoutTicks = 7

	rc := cfg.RemoteConfig()
	if rc.Mode != remote.ModePairing {
		t.Fatalf("expected pairing mode, got %s", rc.Mode)
	}
	if rc.LocalName != "panel" || rc.LocalUUID != cfg.Identity.UUID {
		t.Fatalf("identity not carried: %+v", rc)
	}
	if rc.HeartbeatInterval != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s heartbeat, got %s", rc.HeartbeatInterval)
	}
	if rc.StateTimeoutTicks != 7 {
		t.Fatalf("expected 7 ticks, got %d", rc.StateTimeoutTicks)
	}
	if rc.MaxBackoff != remote.DefaultMaxBackoff {
		t.Fatalf("expected default max backoff, got %s", rc.MaxBackoff)
	}
}

func TestAppConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		wantErr bool
	}{
		{
			name: "valid ip",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport: TransportIP,
					Host:      "192.168.1.10",
					Port:      3333,
				},
			},
		},
		{
			name: "invalid ip without host",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport: TransportIP,
					Port:      3333,
				},
			},
			wantErr: true,
		},
		{
			name: "invalid ip port",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport: TransportIP,
					Host:      "10.0.0.1",
					Port:      70000,
				},
			},
			wantErr: true,
		},
		{
			name: "valid serial",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport:  TransportSerial,
					SerialPort: "/dev/ttyACM0",
					SerialBaud: 115200,
				},
			},
		},
		{
			name: "invalid serial with non-positive baud",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport:  TransportSerial,
					SerialPort: "COM3",
				},
			},
			wantErr: true,
		},
		{
			name: "valid bluetooth",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport:        TransportBluetooth,
					BluetoothAddress: "AA:BB:CC:DD:EE:FF",
				},
			},
		},
		{
			name: "invalid bluetooth without address",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport: TransportBluetooth,
				},
			},
			wantErr: true,
		},
		{
			name: "valid websocket",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport:    TransportWebSocket,
					WebSocketURL: "wss://panel.local/menu",
				},
			},
		},
		{
			name: "websocket with http url",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport:    TransportWebSocket,
					WebSocketURL: "http://panel.local/menu",
				},
			},
			wantErr: true,
		},
		{
			name: "malformed uuid",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport:        TransportBluetooth,
					BluetoothAddress: "AA:BB:CC:DD:EE:FF",
				},
				Identity: IdentityConfig{UUID: "not-a-uuid"},
			},
			wantErr: true,
		},
		{
			name: "backoff ceiling below start",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport:        TransportBluetooth,
					BluetoothAddress: "AA:BB:CC:DD:EE:FF",
				},
				Protocol: ProtocolConfig{InitialBackoffMS: 5000, MaxBackoffMS: 1000},
			},
			wantErr: true,
		},
		{
			name: "unknown transport",
			cfg: AppConfig{
				Connection: ConnectionConfig{
					Transport: TransportKind("usb"),
				},
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		err := tc.cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: expected no error, got %v", tc.name, err)
		}
	}
}
