package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/events"
)

const (
	namespace = "menulink"

	stateAwaiting   = "AWAITING_CONNECTION"
	stateNotStarted = "NOT_STARTED"
)

// Collector turns bus traffic into Prometheus series.
type Collector struct {
	frames        *prometheus.CounterVec
	frameBytes    *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	reconnects    prometheus.Counter
	connErrors    prometheus.Counter
	state         *prometheus.GaugeVec
	ready         prometheus.Gauge
	valueChanges  *prometheus.CounterVec
	acks          *prometheus.CounterVec
	sends         *prometheus.CounterVec
	bootstrapSize prometheus.Gauge

	mu        sync.Mutex
	lastState string
}

func New() *Collector {
	return &Collector{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "frames_total",
			Help:      "Protocol frames exchanged with the remote.",
		}, []string{"direction"}),
		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "frame_bytes_total",
			Help:      "Bytes of protocol frames exchanged with the remote.",
		}, []string{"direction"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "state_transitions_total",
			Help:      "Connection state changes by target state.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "reconnects_total",
			Help:      "Sessions that fell back to awaiting a connection.",
		}),
		connErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "connection_errors_total",
			Help:      "Status reports that carried an error.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "state",
			Help:      "1 for the current connection state.",
		}, []string{"state"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "ready",
			Help:      "1 while the session is ready for changes.",
		}),
		valueChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "menu",
			Name:      "value_changes_total",
			Help:      "Menu item state updates by origin.",
		}, []string{"source"}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "menu",
			Name:      "acks_total",
			Help:      "Acknowledgements received by status.",
		}, []string{"status"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "menu",
			Name:      "sends_total",
			Help:      "Outbound requests by result.",
		}, []string{"result"}),
		bootstrapSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "menu",
			Name:      "bootstrap_items",
			Help:      "Items received in the last completed bootstrap.",
		}),
	}
}

func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.frames, c.frameBytes, c.transitions, c.reconnects, c.connErrors,
		c.state, c.ready, c.valueChanges, c.acks, c.sends, c.bootstrapSize,
	} {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("register collector: %w", err)
		}
	}

	return nil
}

// Start feeds the collectors from b until ctx is done.
func (c *Collector) Start(ctx context.Context, b bus.MessageBus) {
	bus.Listen(ctx, b, events.TopicRawFrameIn, func(f events.RawFrame) { c.observeFrame("in", f) })
	bus.Listen(ctx, b, events.TopicRawFrameOut, func(f events.RawFrame) { c.observeFrame("out", f) })
	bus.Listen(ctx, b, events.TopicConnStatus, c.observeStatus)
	bus.Listen(ctx, b, events.TopicMenuValue, c.observeValue)
	bus.Listen(ctx, b, events.TopicMenuAck, c.observeAck)
	bus.Listen(ctx, b, events.TopicSendResult, c.observeSend)
	bus.Listen(ctx, b, events.TopicBootstrap, c.observeBootstrap)
}

func (c *Collector) observeFrame(direction string, f events.RawFrame) {
	c.frames.WithLabelValues(direction).Inc()
	c.frameBytes.WithLabelValues(direction).Add(float64(f.Len))
}

func (c *Collector) observeStatus(ev events.ConnStatus) {
	if ev.Err != "" {
		c.connErrors.Inc()
	}

	c.mu.Lock()
	prev := c.lastState
	c.lastState = ev.State
	c.mu.Unlock()
	if prev == ev.State {
		return
	}

	c.transitions.WithLabelValues(ev.State).Inc()
	if ev.State == stateAwaiting && prev != "" && prev != stateNotStarted {
		c.reconnects.Inc()
	}
	if prev != "" {
		c.state.WithLabelValues(prev).Set(0)
	}
	c.state.WithLabelValues(ev.State).Set(1)
	if ev.Ready {
		c.ready.Set(1)
	} else {
		c.ready.Set(0)
	}
}

func (c *Collector) observeValue(ev events.ValueChange) {
	source := "local"
	if ev.Remote {
		source = "remote"
	}
	c.valueChanges.WithLabelValues(source).Inc()
}

func (c *Collector) observeAck(ev events.Ack) {
	c.acks.WithLabelValues(ev.Status.String()).Inc()
}

func (c *Collector) observeSend(ev events.SendResult) {
	result := "ok"
	if ev.Err != "" {
		result = "error"
	}
	c.sends.WithLabelValues(result).Inc()
}

func (c *Collector) observeBootstrap(ev events.Bootstrap) {
	if ev.Type == commands.BootstrapEnd {
		c.bootstrapSize.Set(float64(ev.ItemCount))
	}
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is done.
func Serve(ctx context.Context, logger *slog.Logger, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics: %w", err)
		}
		return nil
	}
}
