package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/clock"
	"github.com/skobkin/menulink/internal/events"
	"github.com/skobkin/menulink/internal/menu"
)

// Recorder turns bus events into journal entries.
type Recorder struct {
	logger *slog.Logger
	repo   *Repo
	writer *WriterQueue
	clock  clock.Clock

	mu         sync.Mutex
	lastStatus events.ConnStatus
}

func NewRecorder(logger *slog.Logger, repo *Repo, writer *WriterQueue, clk clock.Clock) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}

	return &Recorder{
		logger: logger.With("component", "journal"),
		repo:   repo,
		writer: writer,
		clock:  clk,
	}
}

// Start subscribes to the bus. Listeners stop when ctx is done.
func (r *Recorder) Start(ctx context.Context, b bus.MessageBus) {
	bus.Listen(ctx, b, events.TopicMenuValue, r.onValue)
	bus.Listen(ctx, b, events.TopicMenuAck, r.onAck)
	bus.Listen(ctx, b, events.TopicConnStatus, r.onStatus)
	bus.Listen(ctx, b, events.TopicSendResult, r.onSend)
}

func (r *Recorder) onValue(ev events.ValueChange) {
	source := "local"
	if ev.Remote {
		source = "remote"
	}
	r.record(Entry{
		At:     r.clock.Now(),
		Kind:   KindValue,
		MenuID: ev.ID,
		Value:  formatValue(ev.State),
		Source: source,
	})
}

func (r *Recorder) onAck(ev events.Ack) {
	r.record(Entry{
		At:          r.clock.Now(),
		Kind:        KindAck,
		MenuID:      ev.MenuID,
		Correlation: ev.Correlation.String(),
		Status:      ev.Status.String(),
		Source:      "remote",
	})
}

// onStatus skips repeats of the last recorded state and error.
func (r *Recorder) onStatus(ev events.ConnStatus) {
	r.mu.Lock()
	if ev.State == r.lastStatus.State && ev.Err == r.lastStatus.Err {
		r.mu.Unlock()
		return
	}
	r.lastStatus = ev
	r.mu.Unlock()

	at := ev.Timestamp
	if at.IsZero() {
		at = r.clock.Now()
	}
	detail := ev.TransportName
	if ev.Remote.Name != "" {
		detail = fmt.Sprintf("%s remote=%s", detail, ev.Remote.Name)
	}
	r.record(Entry{
		At:     at,
		Kind:   KindStatus,
		MenuID: -1,
		Status: ev.State,
		Detail: strings.TrimSpace(detail + " " + ev.Err),
	})
}

func (r *Recorder) onSend(ev events.SendResult) {
	status := "sent"
	if ev.Err != "" {
		status = "failed"
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = r.clock.Now()
	}
	r.record(Entry{
		At:          at,
		Kind:        KindSend,
		MenuID:      ev.MenuID,
		Correlation: ev.Correlation.String(),
		Status:      status,
		Source:      "local",
		Detail:      strings.TrimSpace(ev.Command + " " + ev.Err),
	})
}

func (r *Recorder) record(e Entry) {
	r.writer.Enqueue("insert "+string(e.Kind), func(ctx context.Context) error {
		return r.repo.Insert(ctx, e)
	})
}

func formatValue(st menu.State) string {
	if st == nil {
		return ""
	}
	switch v := st.AnyValue().(type) {
	case []string:
		return strings.Join(v, ",")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
