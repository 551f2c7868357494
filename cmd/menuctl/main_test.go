package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skobkin/menulink/internal/app"
	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/config"
	"github.com/skobkin/menulink/internal/events"
	"github.com/skobkin/menulink/internal/journal"
	"github.com/skobkin/menulink/internal/menu"
)

func TestRootOptionsApply(t *testing.T) {
	tests := []struct {
		name  string
		opts  rootOptions
		check func(t *testing.T, cfg config.AppConfig)
	}{
		{
			name: "no flags keep config",
			opts: rootOptions{},
			check: func(t *testing.T, cfg config.AppConfig) {
				if cfg.Connection.Transport != config.TransportSerial || cfg.Connection.SerialPort != "/dev/ttyUSB0" {
					t.Fatalf("config changed without flags: %+v", cfg.Connection)
				}
			},
		},
		{
			name: "host implies ip",
			opts: rootOptions{host: " 10.0.0.5 ", port: 4000},
			check: func(t *testing.T, cfg config.AppConfig) {
				if cfg.Connection.Transport != config.TransportIP || cfg.Connection.Host != "10.0.0.5" || cfg.Connection.Port != 4000 {
					t.Fatalf("unexpected connection: %+v", cfg.Connection)
				}
			},
		},
		{
			name: "ws implies websocket",
			opts: rootOptions{wsURL: "ws://panel/menu"},
			check: func(t *testing.T, cfg config.AppConfig) {
				if cfg.Connection.Transport != config.TransportWebSocket || cfg.Connection.WebSocketURL != "ws://panel/menu" {
					t.Fatalf("unexpected connection: %+v", cfg.Connection)
				}
			},
		},
		{
			name: "explicit transport wins",
			opts: rootOptions{transport: "Bluetooth", host: "10.0.0.5", bleAddress: "AA:BB:CC:DD:EE:FF"},
			check: func(t *testing.T, cfg config.AppConfig) {
				if cfg.Connection.Transport != config.TransportBluetooth {
					t.Fatalf("expected bluetooth, got %q", cfg.Connection.Transport)
				}
			},
		},
		{
			name: "ambient flags",
			opts: rootOptions{mode: "PAIRING", logLevel: "debug", metrics: ":9100", journal: true, serialBaud: 9600},
			check: func(t *testing.T, cfg config.AppConfig) {
				if cfg.Connection.Mode != config.ModePairing || cfg.Logging.Level != "debug" {
					t.Fatalf("unexpected mode/level: %+v %+v", cfg.Connection, cfg.Logging)
				}
				if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9100" || !cfg.Journal.Enabled {
					t.Fatalf("unexpected metrics/journal: %+v %+v", cfg.Metrics, cfg.Journal)
				}
				if cfg.Connection.SerialBaud != 9600 {
					t.Fatalf("expected baud 9600, got %d", cfg.Connection.SerialBaud)
				}
			},
		},
		{
			name: "no-journal",
			opts: rootOptions{noJournal: true},
			check: func(t *testing.T, cfg config.AppConfig) {
				if cfg.Journal.Enabled {
					t.Fatalf("journal must be disabled")
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Connection.Transport = config.TransportSerial
			cfg.Connection.SerialPort = "/dev/ttyUSB0"
			cfg.Journal.Enabled = true
			tc.opts.apply(&cfg)
			tc.check(t, cfg)
		})
	}
}

func sampleTree(t *testing.T) *menu.Tree {
	t.Helper()

	tree := menu.NewTree()
	gain := menu.AnalogMenuItem{ItemInfo: menu.ItemInfo{ID: 1, Name: "Gain", Visible: true}, MaxValue: 200, Offset: -100, Divisor: 10, UnitName: "dB"}
	settings := menu.SubMenuItem{ItemInfo: menu.ItemInfo{ID: 2, Name: "Settings", Visible: true}, Secured: true}
	mute := menu.BooleanMenuItem{ItemInfo: menu.ItemInfo{ID: 3, Name: "Mute", Visible: true}, Naming: menu.NamingOnOff}
	input := menu.EnumMenuItem{ItemInfo: menu.ItemInfo{ID: 4, Name: "Input", Visible: true, ReadOnly: true}, Entries: []string{"Line", "USB"}}
	secret := menu.ActionMenuItem{ItemInfo: menu.ItemInfo{ID: 5, Name: "Factory"}}

	for _, add := range []struct {
		parent int
		item   menu.MenuItem
	}{
		{menu.RootID, gain},
		{menu.RootID, settings},
		{2, mute},
		{2, input},
		{menu.RootID, secret},
	} {
		if err := tree.AddMenuItem(add.parent, add.item); err != nil {
			t.Fatalf("add %s: %v", menu.Describe(add.item), err)
		}
	}
	tree.SetState(menu.NewMenuState[int](gain, 125, false, false))
	tree.SetState(menu.NewMenuState(mute, true, false, false))
	tree.SetState(menu.NewMenuState[int](input, 1, false, false))

	return tree
}

func TestRenderTree(t *testing.T) {
	tree := sampleTree(t)

	var out bytes.Buffer
	renderTree(&out, tree, false)
	want := strings.Join([]string{
		"[1] Gain (analog) = 2.5dB",
		"[2] Settings (submenu) {secured}",
		"  [3] Mute (boolean) = ON",
		"  [4] Input (enum) = USB (1) {read-only}",
		"",
	}, "\n")
	if out.String() != want {
		t.Fatalf("unexpected tree:\n%s\nwant:\n%s", out.String(), want)
	}

	out.Reset()
	renderTree(&out, tree, true)
	if !strings.Contains(out.String(), "[5] Factory (action) {hidden}") {
		t.Fatalf("hidden item missing with --all:\n%s", out.String())
	}
}

func TestFormatItemValue(t *testing.T) {
	plain := menu.ActionMenuItem{}
	tests := []struct {
		name string
		item menu.MenuItem
		v    any
		want string
	}{
		{name: "analog no divisor", item: menu.AnalogMenuItem{Divisor: 1}, v: 42, want: "42"},
		{name: "analog hundredths", item: menu.AnalogMenuItem{Divisor: 100, UnitName: "V"}, v: 1234, want: "12.34V"},
		{name: "enum out of range", item: menu.EnumMenuItem{Entries: []string{"A"}}, v: 3, want: "3"},
		{name: "checkbox", item: menu.BooleanMenuItem{Naming: menu.NamingCheckbox}, v: false, want: "[ ]"},
		{name: "list", item: plain, v: []string{"a", "b"}, want: "a, b"},
		{name: "decimal", item: plain, v: decimal.RequireFromString("12.50"), want: "12.5"},
		{name: "color", item: plain, v: menu.PortableColor{Red: 255, Green: 0, Blue: 16, Alpha: 255}, want: menu.PortableColor{Red: 255, Green: 0, Blue: 16, Alpha: 255}.String()},
		{name: "nil", item: plain, v: nil, want: ""},
	}

	for _, tc := range tests {
		if got := formatItemValue(tc.item, tc.v); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestDescribeEvent(t *testing.T) {
	item := menu.BooleanMenuItem{ItemInfo: menu.ItemInfo{ID: 7, Name: "Mute"}}
	tests := []struct {
		name    string
		msg     any
		want    string
		wantKey string
	}{
		{name: "status", msg: events.ConnStatus{State: "CONNECTION_READY", Ready: true, Remote: events.RemoteInfo{Name: "Amp"}}, want: "connection", wantKey: "remote"},
		{name: "status error", msg: events.ConnStatus{State: "AWAITING_CONNECTION", Err: "refused"}, want: "connection", wantKey: "error"},
		{name: "value", msg: events.ValueChange{ID: 7, State: menu.NewMenuState(item, true, true, false), Remote: true}, want: "value", wantKey: "value"},
		{name: "ack", msg: events.Ack{Correlation: 0x1234, Status: commands.AckIDNotFound, MenuID: 7}, want: "ack", wantKey: "status"},
		{name: "send failure", msg: events.SendResult{Correlation: 1, Command: "V1", Err: "not connected"}, want: "sent", wantKey: "error"},
		{name: "bootstrap", msg: events.Bootstrap{Type: commands.BootstrapEnd, ItemCount: 4}, want: "bootstrap", wantKey: "items"},
		{name: "raw", msg: events.RawFrame{Len: 3, Text: "HB"}, want: "frame", wantKey: "text"},
		{name: "unknown", msg: 42, want: ""},
	}

	for _, tc := range tests {
		got, attrs := describeEvent(tc.msg)
		if got != tc.want {
			t.Fatalf("%s: expected message %q, got %q", tc.name, tc.want, got)
		}
		if tc.wantKey == "" {
			continue
		}
		found := false
		for i := 0; i < len(attrs); i += 2 {
			if attrs[i] == tc.wantKey {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: attribute %q missing from %v", tc.name, tc.wantKey, attrs)
		}
	}
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("x", maxPreviewLen+10)
	if got := preview(long); len(got) != maxPreviewLen+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := preview(" short "); got != "short" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestAwaitOutcome(t *testing.T) {
	b := bus.New(nil, 8)
	t.Cleanup(b.Close)

	newSub := func() bus.Subscription {
		return b.Subscribe(events.TopicMenuAck, events.TopicSendResult)
	}
	ctx := func() context.Context {
		c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)
		return c
	}

	sub := newSub()
	b.Publish(events.TopicMenuAck, events.Ack{Correlation: 1, Status: commands.AckSuccess})
	b.Publish(events.TopicSendResult, events.SendResult{Correlation: 2, MenuID: 3})
	b.Publish(events.TopicMenuAck, events.Ack{Correlation: 2, Status: commands.AckValueRangeWarning, MenuID: 3})
	ack, err := awaitOutcome(ctx(), sub, 2, false)
	if err != nil {
		t.Fatalf("await ack: %v", err)
	}
	if ack.Status != commands.AckValueRangeWarning || ack.MenuID != 3 {
		t.Fatalf("matched the wrong ack: %+v", ack)
	}

	sub = newSub()
	b.Publish(events.TopicSendResult, events.SendResult{Correlation: 5, Err: "transport closed"})
	if _, err := awaitOutcome(ctx(), sub, 5, false); err == nil || !strings.Contains(err.Error(), "transport closed") {
		t.Fatalf("expected send failure, got %v", err)
	}

	sub = newSub()
	b.Publish(events.TopicSendResult, events.SendResult{Correlation: 6, MenuID: 9})
	ack, err = awaitOutcome(ctx(), sub, 6, true)
	if err != nil || ack.MenuID != 9 {
		t.Fatalf("expected written outcome, got %+v %v", ack, err)
	}

	sub = newSub()
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := awaitOutcome(short, sub, 7, false); !errors.Is(err, errNoAck) {
		t.Fatalf("expected errNoAck, got %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	if id, err := parseItemID(" 12 "); err != nil || id != 12 {
		t.Fatalf("parse id: %d %v", id, err)
	}
	for _, bad := range []string{"", "-1", "x"} {
		if _, err := parseItemID(bad); err == nil {
			t.Fatalf("expected error for id %q", bad)
		}
	}

	if b, err := parseButton("accept"); err != nil || b != commands.ButtonAccept {
		t.Fatalf("parse accept: %v %v", b, err)
	}
	if b, err := parseButton(" Close "); err != nil || b != commands.ButtonClose {
		t.Fatalf("parse close: %v %v", b, err)
	}
	if _, err := parseButton("none"); err == nil {
		t.Fatalf("NONE is not a pressable button")
	}
}

func TestBuildQuery(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	q, err := buildQuery([]int{3}, []string{"ACK", " send "}, time.Hour, 5, now)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	if len(q.Kinds) != 2 || q.Kinds[0] != journal.KindAck || q.Kinds[1] != journal.KindSend {
		t.Fatalf("unexpected kinds %v", q.Kinds)
	}
	if !q.Since.Equal(now.Add(-time.Hour)) || q.Limit != 5 || q.MenuIDs[0] != 3 {
		t.Fatalf("unexpected query %+v", q)
	}
	if _, err := buildQuery(nil, []string{"bogus"}, 0, 0, now); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()

	return out.String(), err
}

func TestHistoryCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.db")
	cfgPath := filepath.Join(dir, "menulink.toml")

	cfg := config.Default()
	cfg.Connection.Host = "127.0.0.1"
	cfg.Journal.Enabled = true
	cfg.Journal.Path = journalPath
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	ctx := context.Background()
	paths, err := app.ResolvePaths(cfgPath)
	if err != nil {
		t.Fatalf("resolve paths: %v", err)
	}
	db, repo, err := app.OpenJournal(ctx, paths, cfg)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	base := time.Now().Add(-time.Minute)
	seed := []journal.Entry{
		{At: base, Kind: journal.KindValue, MenuID: 3, Value: "20", Source: "remote"},
		{At: base.Add(time.Second), Kind: journal.KindAck, MenuID: 3, Status: "SUCCESS", Correlation: "0000abcd"},
		{At: base.Add(2 * time.Second), Kind: journal.KindStatus, MenuID: -1, Status: "CONNECTION_READY"},
	}
	for _, e := range seed {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = db.Close()

	out, err := execute(t, "history", "--config", cfgPath, "--item", "3")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "TIME") {
		t.Fatalf("expected header and two rows, got:\n%s", out)
	}
	if !strings.Contains(lines[1], "0000abcd") || !strings.Contains(lines[2], "remote") {
		t.Fatalf("rows not newest first:\n%s", out)
	}

	out, err = execute(t, "history", "--config", cfgPath, "--kind", "status")
	if err != nil || !strings.Contains(out, "CONNECTION_READY") || strings.Contains(out, "0000abcd") {
		t.Fatalf("kind filter failed (%v):\n%s", err, out)
	}

	if _, err := execute(t, "history", "--config", cfgPath, "--clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out, err = execute(t, "history", "--config", cfgPath)
	if err != nil || strings.TrimSpace(out) != "no entries" {
		t.Fatalf("expected empty journal (%v):\n%s", err, out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != app.BuildVersion() {
		t.Fatalf("expected %q, got %q", app.BuildVersion(), out)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"tag_name":"9.0.0","html_url":"https://example.com/r/9.0.0","published_at":"2026-09-01T00:00:00Z"}]`)
	}))
	defer server.Close()

	out, err = execute(t, "version", "--short", "--check", "--release-url", server.URL)
	if err != nil {
		t.Fatalf("version --check: %v", err)
	}
	if !strings.Contains(out, "update available") || !strings.Contains(out, "9.0.0 2026-09-01 https://example.com/r/9.0.0") {
		t.Fatalf("unexpected check output:\n%s", out)
	}
}

func TestRootRejectsConflictingJournalFlags(t *testing.T) {
	if _, err := execute(t, "history", "--journal", "--no-journal"); err == nil {
		t.Fatalf("expected mutually exclusive flag error")
	}
}
