package journal

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/clock"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/events"
	"github.com/skobkin/menulink/internal/menu"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestOpenMigratesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "journal.db")

	for range 2 {
		db, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		var version int
		if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
			t.Fatalf("read user_version: %v", err)
		}
		if version != SchemaVersion {
			t.Fatalf("expected schema version %d, got %d", SchemaVersion, version)
		}
		_ = db.Close()
	}
}

func TestOpenUpgradesFirstSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.ExecContext(ctx, migrations[0]); err != nil {
		t.Fatalf("seed v1 schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		t.Fatalf("set v1: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO entries(at, kind, menu_id) VALUES (1000, 'value', 4)`); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	_ = db.Close()

	migrated, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open migrated db: %v", err)
	}
	defer func() { _ = migrated.Close() }()

	entries, err := NewRepo(migrated).History(ctx, Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].MenuID != 4 || entries[0].Source != "" {
		t.Fatalf("old row not carried over: %+v", entries)
	}
}

func TestRepoHistoryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []Entry{
		{At: base, Kind: KindValue, MenuID: 1, Value: "10"},
		{At: base.Add(time.Second), Kind: KindValue, MenuID: 2, Value: "on"},
		{At: base.Add(2 * time.Second), Kind: KindAck, MenuID: 1, Status: "SUCCESS"},
		{At: base.Add(3 * time.Second), Kind: KindStatus, MenuID: -1, Status: "READY"},
		{At: base.Add(4 * time.Second), Kind: KindValue, MenuID: 1, Value: "11"},
	}
	for _, e := range seed {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	all, err := repo.History(ctx, Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != len(seed) {
		t.Fatalf("expected %d entries, got %d", len(seed), len(all))
	}
	if all[0].Value != "11" || !all[0].At.Equal(base.Add(4*time.Second)) {
		t.Fatalf("expected newest first, got %+v", all[0])
	}
	if all[1].MenuID != -1 {
		t.Fatalf("expected null menu id to read back as -1, got %d", all[1].MenuID)
	}

	item1, err := repo.History(ctx, Query{MenuIDs: []int{1}, Kinds: []Kind{KindValue}})
	if err != nil {
		t.Fatalf("history for item: %v", err)
	}
	if len(item1) != 2 || item1[0].Value != "11" || item1[1].Value != "10" {
		t.Fatalf("unexpected item history: %+v", item1)
	}

	recent, err := repo.History(ctx, Query{Since: base.Add(3 * time.Second)})
	if err != nil {
		t.Fatalf("history since: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent entries, got %d", len(recent))
	}

	limited, err := repo.History(ctx, Query{Limit: 1})
	if err != nil {
		t.Fatalf("history limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestRepoPruneAndClear(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := range 4 {
		if err := repo.Insert(ctx, Entry{At: base.Add(time.Duration(i) * time.Hour), Kind: KindValue, MenuID: 1}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := repo.Prune(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pruned rows, got %d", n)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	left, err := repo.History(ctx, Query{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected empty journal, got %d rows", len(left))
	}
}

func TestWriterQueueRetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWriterQueue(quietLogger(), 4)
	w.retryDelay = time.Millisecond
	w.Start(ctx)

	var calls atomic.Int32
	done := make(chan struct{})
	w.Enqueue("flaky", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("database is locked")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("write never succeeded, calls=%d", calls.Load())
	}
	if w.Dropped() != 0 {
		t.Fatalf("expected no dropped writes, got %d", w.Dropped())
	}
}

func TestWriterQueueDropsAfterRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWriterQueue(quietLogger(), 4)
	w.retryDelay = time.Millisecond
	w.Start(ctx)

	var calls atomic.Int32
	w.Enqueue("broken", func(context.Context) error {
		calls.Add(1)
		return errors.New("disk full")
	})

	deadline := time.Now().Add(2 * time.Second)
	for w.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("write was never dropped")
		}
		time.Sleep(time.Millisecond)
	}
	if got := calls.Load(); got != writeRetries+1 {
		t.Fatalf("expected %d attempts, got %d", writeRetries+1, got)
	}
}

func TestWriterQueueDropsWhenFull(t *testing.T) {
	w := NewWriterQueue(quietLogger(), 1)
	noop := func(context.Context) error { return nil }

	if !w.Enqueue("first", noop) {
		t.Fatalf("first write should fit")
	}
	if w.Enqueue("second", noop) {
		t.Fatalf("second write should be dropped while nothing drains the queue")
	}
	if w.Dropped() != 1 {
		t.Fatalf("expected one dropped write, got %d", w.Dropped())
	}
}

func TestRecorderJournalsBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := NewRepo(openTestDB(t))
	writer := NewWriterQueue(quietLogger(), 0)
	writer.Start(ctx)
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	b := bus.New(quietLogger(), 0)
	defer b.Close()
	NewRecorder(quietLogger(), repo, writer, clk).Start(ctx, b)

	item := menu.LargeNumberMenuItem{ItemInfo: menu.ItemInfo{ID: 7, Name: "Freq"}, DecimalPlaces: 2}
	st := menu.NewMenuState(menu.MenuItem(item), decimal.RequireFromString("12.50"), true, false)

	b.Publish(events.TopicConnStatus, events.ConnStatus{State: "READY", Ready: true, TransportName: "ip"})
	b.Publish(events.TopicConnStatus, events.ConnStatus{State: "READY", Ready: true, TransportName: "ip"})
	b.Publish(events.TopicMenuValue, events.ValueChange{ID: 7, State: st, Remote: true})
	b.Publish(events.TopicSendResult, events.SendResult{Correlation: 0x1234, MenuID: 7, Command: "VC"})
	b.Publish(events.TopicMenuAck, events.Ack{Correlation: 0x1234, Status: commands.AckSuccess, MenuID: 7})

	var entries []Entry
	deadline := time.Now().Add(3 * time.Second)
	for {
		var err error
		entries, err = repo.History(ctx, Query{})
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(entries) >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 journal entries, got %+v", entries)
		}
		time.Sleep(5 * time.Millisecond)
	}

	byKind := map[Kind]Entry{}
	for _, e := range entries {
		if _, dup := byKind[e.Kind]; dup {
			t.Fatalf("duplicate %s entry: %+v", e.Kind, entries)
		}
		byKind[e.Kind] = e
	}
	if v := byKind[KindValue]; v.MenuID != 7 || v.Value != "12.5" || v.Source != "remote" {
		t.Fatalf("unexpected value entry: %+v", v)
	}
	if a := byKind[KindAck]; a.Correlation != "00001234" || a.Status != commands.AckSuccess.String() {
		t.Fatalf("unexpected ack entry: %+v", a)
	}
	if s := byKind[KindStatus]; s.Status != "READY" || s.MenuID != -1 {
		t.Fatalf("unexpected status entry: %+v", s)
	}
	if s := byKind[KindSend]; s.Status != "sent" || s.Detail != "VC" {
		t.Fatalf("unexpected send entry: %+v", s)
	}
}
