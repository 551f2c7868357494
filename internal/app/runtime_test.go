package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/config"
	"github.com/skobkin/menulink/internal/journal"
	"github.com/skobkin/menulink/internal/menu"
	"github.com/skobkin/menulink/internal/platform"
	"github.com/skobkin/menulink/internal/protocol"
)

// fakeRemote is a TCP peer speaking the remote side of the protocol.
type fakeRemote struct {
	ln    net.Listener
	codec *protocol.TagValCodec
	conns chan net.Conn
	got   chan commands.MenuCommand
}

func startFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	f := &fakeRemote{
		ln:    ln,
		codec: protocol.NewTagValCodec(),
		conns: make(chan net.Conn, 1),
		got:   make(chan commands.MenuCommand, 64),
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		f.conns <- conn
		f.readLoop(conn)
	}()

	return f
}

func (f *fakeRemote) port() int {
	_, raw, _ := net.SplitHostPort(f.ln.Addr().String())
	port, _ := strconv.Atoi(raw)

	return port
}

func (f *fakeRemote) readLoop(conn net.Conn) {
	frames := protocol.NewFrameBuffer(protocol.ProtocolTagVal, 0)
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if err := frames.Write(buf[:n]); err != nil {
			return
		}
		for {
			frame, ok := frames.Next()
			if !ok {
				break
			}
			cmd, err := f.codec.Decode(frame)
			if err == nil {
				f.got <- cmd
			}
		}
	}
}

func (f *fakeRemote) accept(t *testing.T) net.Conn {
	t.Helper()

	select {
	case conn := <-f.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatalf("client never connected")
		return nil
	}
}

func (f *fakeRemote) send(t *testing.T, conn net.Conn, cmds ...commands.MenuCommand) {
	t.Helper()

	for _, cmd := range cmds {
		frame, err := f.codec.Encode(cmd, protocol.ProtocolTagVal)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd, err)
		}
		if _, err := conn.Write(frame); err != nil {
			t.Fatalf("write %s: %v", cmd, err)
		}
	}
}

// expect waits for the next command of type want, skipping heartbeats.
func (f *fakeRemote) expect(t *testing.T, want commands.CommandType) commands.MenuCommand {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case cmd := <-f.got:
			if cmd.CommandType() == want {
				return cmd
			}
		case <-timeout:
			t.Fatalf("remote never received %s", want)
			return nil
		}
	}
}

func writeTestConfig(t *testing.T, mutate func(*config.AppConfig)) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg := config.Default()
	cfg.Connection.Host = "127.0.0.1"
	cfg.Identity.UUID = "6f1c7a8e-2a47-4d4b-8d55-1d1b0f5b9c10"
	cfg.Protocol.TickIntervalMS = 20
	cfg.Protocol.StateTimeoutTicks = 500
	cfg.Protocol.InitialBackoffMS = 50
	if mutate != nil {
		mutate(&cfg)
	}
	path := filepath.Join(t.TempDir(), "menulink.toml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	return path
}

func TestRuntimeSessionAgainstTCPRemote(t *testing.T) {
	remote := startFakeRemote(t)
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	cfgPath := writeTestConfig(t, func(cfg *config.AppConfig) {
		cfg.Connection.Port = remote.port()
		cfg.Journal.Enabled = true
		cfg.Journal.Path = journalPath
	})

	rt, err := Initialize(context.Background(), Options{ConfigFile: cfgPath, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Start(); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	second, err := Initialize(context.Background(), Options{ConfigFile: cfgPath, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("initialize second runtime: %v", err)
	}
	if err := second.Start(); !errors.Is(err, platform.ErrEndpointBusy) {
		t.Fatalf("expected ErrEndpointBusy for a second session, got %v", err)
	}
	_ = second.Close()

	conn := remote.accept(t)
	remote.send(t, conn, commands.NewJoinerCommand{Name: "Amp", UUID: "a1", APIVersion: 103, Platform: commands.PlatformArduino})
	join := remote.expect(t, commands.TypeJoin).(commands.NewJoinerCommand)
	if join.UUID != "6f1c7a8e-2a47-4d4b-8d55-1d1b0f5b9c10" || join.Name != config.DefaultLocalName {
		t.Fatalf("unexpected join identity: %+v", join)
	}

	remote.send(t, conn,
		commands.AcknowledgementCommand{Status: commands.AckSuccess},
		commands.BootstrapCommand{Type: commands.BootstrapStart},
		commands.AnalogBootCommand{
			SubMenuID: menu.RootID,
			Item:      menu.AnalogMenuItem{ItemInfo: menu.ItemInfo{ID: 3, Name: "Gain", EepromAddress: -1, Visible: true}, MaxValue: 100, Divisor: 1},
			Value:     20,
		},
		commands.BootstrapCommand{Type: commands.BootstrapEnd},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.WaitReady(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}

	correlation, err := rt.Controller.SendAbsoluteUpdate(3, "55")
	if err != nil {
		t.Fatalf("send update: %v", err)
	}
	change := remote.expect(t, commands.TypeChange).(commands.ChangeCommand)
	if change.MenuID != 3 || change.Value != "55" || change.Correlation != correlation {
		t.Fatalf("unexpected change on the wire: %+v", change)
	}
	remote.send(t, conn,
		commands.AcknowledgementCommand{Status: commands.AckSuccess, Correlation: correlation},
		commands.NewAbsoluteChange(3, commands.EmptyCorrelation, "55"),
	)

	deadline := time.Now().Add(5 * time.Second)
	for {
		acks, err := rt.Journal.History(ctx, journal.Query{MenuIDs: []int{3}, Kinds: []journal.Kind{journal.KindAck}})
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(acks) == 1 && acks[0].Correlation == correlation.String() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ack never journaled, got %+v", acks)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for {
		st, ok := rt.Controller.Tree().State(3)
		if v, _ := menu.ValueAs[int](st); ok && v == 55 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tree never took the remote value, state %v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status, known := rt.CurrentConnStatus(); !known || !status.Ready || status.Remote.Name != "Amp" {
		t.Fatalf("unexpected status snapshot: %+v", status)
	}
}

func TestRuntimeSaveAndApplyConfigSwitchesEndpoint(t *testing.T) {
	cfgPath := writeTestConfig(t, nil)
	rt, err := Initialize(context.Background(), Options{ConfigFile: cfgPath, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	item := menu.BooleanMenuItem{ItemInfo: menu.ItemInfo{ID: 9, Name: "Mute"}}
	if err := rt.Controller.Tree().AddMenuItem(menu.RootID, item); err != nil {
		t.Fatalf("seed tree: %v", err)
	}

	same := rt.Config
	same.Logging.Level = "debug"
	if err := rt.SaveAndApplyConfig(same); err != nil {
		t.Fatalf("apply same endpoint: %v", err)
	}
	if _, ok := rt.Controller.Tree().Item(9); !ok {
		t.Fatalf("tree must survive a change that keeps the endpoint")
	}

	next := rt.Config
	next.Connection.Transport = config.TransportWebSocket
	next.Connection.WebSocketURL = "ws://127.0.0.1:1/menu"
	if err := rt.SaveAndApplyConfig(next); err != nil {
		t.Fatalf("apply new endpoint: %v", err)
	}
	if _, ok := rt.Controller.Tree().Item(9); ok {
		t.Fatalf("tree must be cleared when the endpoint changes")
	}
	if rt.Transport.Name() != "websocket" {
		t.Fatalf("transport not switched, got %q", rt.Transport.Name())
	}

	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if saved.Connection.WebSocketURL != "ws://127.0.0.1:1/menu" || saved.Logging.Level != "debug" {
		t.Fatalf("config not persisted: %+v", saved)
	}

	bad := rt.Config
	bad.Connection.WebSocketURL = "ftp://nope"
	if err := rt.SaveAndApplyConfig(bad); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestInitializeRejectsInvalidConfig(t *testing.T) {
	cfgPath := writeTestConfig(t, nil)
	_, err := Initialize(context.Background(), Options{
		ConfigFile: cfgPath,
		LogOutput:  &bytes.Buffer{},
		Override:   func(cfg *config.AppConfig) { cfg.Connection.Host = "" },
	})
	if err == nil {
		t.Fatalf("expected validation error for empty host")
	}
}

func TestNewTransportForConnection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ConnectionConfig
		want    string
		target  string
		wantErr bool
	}{
		{
			name:   "ip",
			cfg:    config.ConnectionConfig{Transport: config.TransportIP, Host: "127.0.0.1", Port: 3333},
			want:   "ip",
			target: "127.0.0.1:3333",
		},
		{
			name:   "serial",
			cfg:    config.ConnectionConfig{Transport: config.TransportSerial, SerialPort: "/dev/ttyACM0", SerialBaud: 115200},
			want:   "serial",
			target: "/dev/ttyACM0",
		},
		{
			name:   "bluetooth",
			cfg:    config.ConnectionConfig{Transport: config.TransportBluetooth, BluetoothAddress: "aa:bb:cc:dd:ee:ff"},
			want:   "bluetooth",
			target: "aa:bb:cc:dd:ee:ff",
		},
		{
			name:   "websocket",
			cfg:    config.ConnectionConfig{Transport: config.TransportWebSocket, WebSocketURL: "ws://panel/menu"},
			want:   "websocket",
			target: "ws://panel/menu",
		},
		{
			name:    "unknown",
			cfg:     config.ConnectionConfig{Transport: "usb"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tr, err := NewTransportForConnection(tc.cfg)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got nil", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tr.Name() != tc.want {
			t.Fatalf("%s: expected transport %q, got %q", tc.name, tc.want, tr.Name())
		}
		if got := ConnectionTarget(tc.cfg); got != tc.target {
			t.Fatalf("%s: expected target %q, got %q", tc.name, tc.target, got)
		}
		if got, want := EndpointKey(tc.cfg), string(tc.cfg.Transport)+":"+tc.target; got != want {
			t.Fatalf("%s: expected key %q, got %q", tc.name, want, got)
		}
	}
}

func TestEndpointKeyFoldsBluetoothCase(t *testing.T) {
	upper := config.ConnectionConfig{Transport: config.TransportBluetooth, BluetoothAddress: "AA:BB:CC:DD:EE:FF"}
	lower := config.ConnectionConfig{Transport: config.TransportBluetooth, BluetoothAddress: "aa:bb:cc:dd:ee:ff"}
	if EndpointKey(upper) != EndpointKey(lower) {
		t.Fatalf("bluetooth keys differ: %q vs %q", EndpointKey(upper), EndpointKey(lower))
	}
}
