package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/skobkin/menulink/internal/remote"
)

// TransportKind identifies which byte transport should be used.
type TransportKind string

// ConnectionMode selects how the client introduces itself to the remote.
type ConnectionMode string

const (
	TransportIP        TransportKind = "ip"
	TransportSerial    TransportKind = "serial"
	TransportBluetooth TransportKind = "bluetooth"
	TransportWebSocket TransportKind = "websocket"

	ModeJoin    ConnectionMode = "join"
	ModePairing ConnectionMode = "pairing"

	DefaultIPPort        = 3333
	DefaultSerialBaud    = 115200
	DefaultLocalName     = "menulink"
	DefaultMetricsListen = "127.0.0.1:9464"
	DefaultRetentionDays = 30
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level" toml:"level"`
	Format    string `json:"format" toml:"format"`
	LogToFile bool   `json:"log_to_file" toml:"log_to_file"`
}

// ConnectionConfig contains transport-specific connection parameters.
type ConnectionConfig struct {
	Transport        TransportKind  `json:"transport" toml:"transport"`
	Mode             ConnectionMode `json:"mode" toml:"mode"`
	Host             string         `json:"host" toml:"host"`
	Port             int            `json:"port" toml:"port"`
	SerialPort       string         `json:"serial_port" toml:"serial_port"`
	SerialBaud       int            `json:"serial_baud" toml:"serial_baud"`
	BluetoothAddress string         `json:"bluetooth_address" toml:"bluetooth_address"`
	BluetoothAdapter string         `json:"bluetooth_adapter" toml:"bluetooth_adapter"`
	WebSocketURL     string         `json:"websocket_url" toml:"websocket_url"`
}

// IdentityConfig is what the client announces to the remote.
type IdentityConfig struct {
	Name string `json:"name" toml:"name"`
	UUID string `json:"uuid" toml:"uuid"`
}

// ProtocolConfig holds session timings in milliseconds.
type ProtocolConfig struct {
	HeartbeatIntervalMS int `json:"heartbeat_interval_ms" toml:"heartbeat_interval_ms"`
	InitialBackoffMS    int `json:"initial_backoff_ms" toml:"initial_backoff_ms"`
	MaxBackoffMS        int `json:"max_backoff_ms" toml:"max_backoff_ms"`
	TickIntervalMS      int `json:"tick_interval_ms" toml:"tick_interval_ms"`
	FailedAuthGraceMS   int `json:"failed_auth_grace_ms" toml:"failed_auth_grace_ms"`
	WriteTimeoutMS      int `json:"write_timeout_ms" toml:"write_timeout_ms"`
	RxTimeoutMultiplier int `json:"rx_timeout_multiplier" toml:"rx_timeout_multiplier"`
	StateTimeoutTicks   int `json:"state_timeout_ticks" toml:"state_timeout_ticks"`
}

// JournalConfig controls the optional sqlite event journal.
type JournalConfig struct {
	Enabled       bool   `json:"enabled" toml:"enabled"`
	Path          string `json:"path" toml:"path"`
	RetentionDays int    `json:"retention_days" toml:"retention_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Listen  string `json:"listen" toml:"listen"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection" toml:"connection"`
	Identity   IdentityConfig   `json:"identity" toml:"identity"`
	Protocol   ProtocolConfig   `json:"protocol" toml:"protocol"`
	Logging    LoggingConfig    `json:"logging" toml:"logging"`
	Journal    JournalConfig    `json:"journal" toml:"journal"`
	Metrics    MetricsConfig    `json:"metrics" toml:"metrics"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Transport:  TransportIP,
			Mode:       ModeJoin,
			Port:       DefaultIPPort,
			SerialBaud: DefaultSerialBaud,
		},
		Identity: IdentityConfig{
			Name: DefaultLocalName,
		},
		Protocol: defaultProtocol(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Journal: JournalConfig{
			RetentionDays: DefaultRetentionDays,
		},
		Metrics: MetricsConfig{
			Listen: DefaultMetricsListen,
		},
	}
}

func defaultProtocol() ProtocolConfig {
	def := remote.DefaultConfig()

	return ProtocolConfig{
		HeartbeatIntervalMS: int(def.HeartbeatInterval.Milliseconds()),
		InitialBackoffMS:    int(def.InitialBackoff.Milliseconds()),
		MaxBackoffMS:        int(def.MaxBackoff.Milliseconds()),
		TickIntervalMS:      int(def.TickInterval.Milliseconds()),
		FailedAuthGraceMS:   int(def.FailedAuthGrace.Milliseconds()),
		WriteTimeoutMS:      int(def.WriteTimeout.Milliseconds()),
		RxTimeoutMultiplier: def.RxTimeoutMultiplier,
		StateTimeoutTicks:   def.StateTimeoutTicks,
	}
}

// Load reads the config at path. Files ending in .toml are decoded as TOML,
// anything else as JSON. A missing file yields the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the command line or the user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.FillMissingDefaults()
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if isTOML(cleanPath) {
		if _, err := toml.Decode(string(raw), &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("decode config toml: %w", err)
		}
	} else if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	def := Default()
	if c.Connection.Transport == "" {
		c.Connection.Transport = TransportIP
	}
	c.Connection.Mode = normalizeMode(c.Connection.Mode)
	if c.Connection.Port <= 0 {
		c.Connection.Port = DefaultIPPort
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if strings.TrimSpace(c.Identity.Name) == "" {
		c.Identity.Name = DefaultLocalName
	}
	if strings.TrimSpace(c.Identity.UUID) == "" {
		c.Identity.UUID = stableUUID(c.Identity.Name)
	}
	fillPositive(&c.Protocol.HeartbeatIntervalMS, def.Protocol.HeartbeatIntervalMS)
	fillPositive(&c.Protocol.InitialBackoffMS, def.Protocol.InitialBackoffMS)
	fillPositive(&c.Protocol.MaxBackoffMS, def.Protocol.MaxBackoffMS)
	fillPositive(&c.Protocol.TickIntervalMS, def.Protocol.TickIntervalMS)
	fillPositive(&c.Protocol.FailedAuthGraceMS, def.Protocol.FailedAuthGraceMS)
	fillPositive(&c.Protocol.WriteTimeoutMS, def.Protocol.WriteTimeoutMS)
	fillPositive(&c.Protocol.RxTimeoutMultiplier, def.Protocol.RxTimeoutMultiplier)
	fillPositive(&c.Protocol.StateTimeoutTicks, def.Protocol.StateTimeoutTicks)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	fillPositive(&c.Journal.RetentionDays, DefaultRetentionDays)
	if strings.TrimSpace(c.Metrics.Listen) == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
}

// stableUUID derives the identity from host and client name so an unsaved
// config still presents the same UUID on every run.
func stableUUID(name string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(host+"/"+name)).String()
}

func fillPositive(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func normalizeMode(mode ConnectionMode) ConnectionMode {
	switch ConnectionMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case ModePairing:
		return ModePairing
	default:
		return ModeJoin
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Transport {
	case TransportIP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("ip host is required")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("ip port out of range: %d", c.Connection.Port)
		}
	case TransportSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	case TransportBluetooth:
		if strings.TrimSpace(c.Connection.BluetoothAddress) == "" {
			return errors.New("bluetooth address is required")
		}
	case TransportWebSocket:
		url := strings.TrimSpace(c.Connection.WebSocketURL)
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			return fmt.Errorf("websocket url must start with ws:// or wss://: %q", url)
		}
	default:
		return fmt.Errorf("unknown transport: %s", c.Connection.Transport)
	}

	if c.Identity.UUID != "" {
		if _, err := uuid.Parse(c.Identity.UUID); err != nil {
			return fmt.Errorf("identity uuid: %w", err)
		}
	}
	if c.Protocol.MaxBackoffMS > 0 && c.Protocol.MaxBackoffMS < c.Protocol.InitialBackoffMS {
		return errors.New("max backoff must not be below initial backoff")
	}

	return nil
}

// RemoteConfig converts the identity and protocol sections into connector
// settings. Zero values fall back to the connector defaults.
func (c AppConfig) RemoteConfig() remote.Config {
	cfg := remote.DefaultConfig()
	if c.Connection.Mode == ModePairing {
		cfg.Mode = remote.ModePairing
	}
	if c.Identity.Name != "" {
		cfg.LocalName = c.Identity.Name
	}
	cfg.LocalUUID = c.Identity.UUID

	p := c.Protocol
	setDuration(&cfg.HeartbeatInterval, p.HeartbeatIntervalMS)
	setDuration(&cfg.InitialBackoff, p.InitialBackoffMS)
	setDuration(&cfg.MaxBackoff, p.MaxBackoffMS)
	setDuration(&cfg.TickInterval, p.TickIntervalMS)
	setDuration(&cfg.FailedAuthGrace, p.FailedAuthGraceMS)
	setDuration(&cfg.WriteTimeout, p.WriteTimeoutMS)
	if p.RxTimeoutMultiplier > 0 {
		cfg.RxTimeoutMultiplier = p.RxTimeoutMultiplier
	}
	if p.StateTimeoutTicks > 0 {
		cfg.StateTimeoutTicks = p.StateTimeoutTicks
	}

	return cfg
}

func setDuration(dst *time.Duration, ms int) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

func encode(path string, cfg AppConfig) ([]byte, error) {
	if !isTOML(path) {
		return json.MarshalIndent(cfg, "", "  ")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
