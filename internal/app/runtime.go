package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/clock"
	"github.com/skobkin/menulink/internal/config"
	"github.com/skobkin/menulink/internal/controller"
	"github.com/skobkin/menulink/internal/events"
	"github.com/skobkin/menulink/internal/journal"
	"github.com/skobkin/menulink/internal/logging"
	"github.com/skobkin/menulink/internal/menu"
	"github.com/skobkin/menulink/internal/metrics"
	"github.com/skobkin/menulink/internal/platform"
	"github.com/skobkin/menulink/internal/protocol"
	"github.com/skobkin/menulink/internal/remote"
)

var ErrAlreadyStarted = errors.New("runtime already started")

// Options tune Initialize. Zero values use the user config dir, the wall
// clock and stderr.
type Options struct {
	ConfigFile string
	Clock      clock.Clock
	LogOutput  io.Writer
	// Override edits the loaded config before it is validated, e.g. to apply
	// command line flags.
	Override func(*config.AppConfig)
}

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig
	Clock  clock.Clock

	LogManager *logging.Manager
	Bus        *bus.PubSubBus

	Transport  *SwitchableTransport
	Connector  *remote.Connector
	Controller *controller.Controller

	DB          *sql.DB
	Journal     *journal.Repo
	WriterQueue *journal.WriterQueue

	Metrics  *metrics.Collector
	Registry *prometheus.Registry

	started bool
	lock    platform.EndpointLock

	connStatusMu    sync.RWMutex
	connStatus      events.ConnStatus
	connStatusKnown bool
}

// Initialize loads the config and builds every component without touching
// the remote. Call Start to begin connecting.
func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePaths(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
		cfg.FillMissingDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
		Clock:  clk,
	}

	logMgr := logging.NewManager(opts.LogOutput)
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting menulink runtime", "version", BuildVersion(), "commit", BuildCommit(), "config", paths.ConfigFile)

	b := bus.New(logMgr.Logger("bus"), bus.DefaultCapacity)
	rt.Bus = b
	bus.Listen(ctx, b, events.TopicConnStatus, rt.setConnStatus)

	if cfg.Journal.Enabled {
		if err := rt.openJournal(); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	rt.Metrics = metrics.New()
	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := rt.Metrics.Register(rt.Registry); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Metrics.Start(ctx, b)

	tr, err := NewSwitchableTransport(cfg.Connection)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize transport: %w", err)
	}
	rt.Transport = tr

	rt.Connector = remote.NewConnector(logMgr.Logger("remote"), b, tr, protocol.NewTagValCodec(), cfg.RemoteConfig(), clk)
	rt.Controller = controller.New(logMgr.Logger("controller"), b, rt.Connector, menu.NewTree(), clk)

	return rt, nil
}

func (r *Runtime) openJournal() error {
	path := r.Paths.JournalPath(r.Config.Journal.Path)
	db, err := journal.Open(r.Ctx, path)
	if err != nil {
		return err
	}
	r.DB = db
	r.Journal = journal.NewRepo(db)

	cutoff := r.Clock.Now().AddDate(0, 0, -r.Config.Journal.RetentionDays)
	if n, err := r.Journal.Prune(r.Ctx, cutoff); err != nil {
		slog.Warn("prune journal", "error", err)
	} else if n > 0 {
		slog.Info("journal pruned", "removed", n, "before", cutoff.Format(time.DateOnly))
	}

	r.WriterQueue = journal.NewWriterQueue(r.LogManager.Logger("journal"), 512)
	r.WriterQueue.Start(r.Ctx)
	journal.NewRecorder(r.LogManager.Logger("journal"), r.Journal, r.WriterQueue, r.Clock).Start(r.Ctx, r.Bus)

	return nil
}

// Start launches the controller, the connector and, when enabled, the
// metrics endpoint.
func (r *Runtime) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	cfg := r.Config
	lock, err := acquireEndpoint(cfg.Connection)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.lock = lock
	r.started = true
	r.mu.Unlock()

	r.Controller.Start(r.Ctx)
	if err := r.Connector.Start(r.Ctx); err != nil {
		return fmt.Errorf("start connector: %w", err)
	}

	if cfg.Metrics.Enabled {
		logger := r.LogManager.Logger("metrics")
		go func() {
			if err := metrics.Serve(r.Ctx, logger, cfg.Metrics.Listen, r.Registry); err != nil {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	return nil
}

// WaitReady blocks until the session reaches CONNECTION_READY.
func (r *Runtime) WaitReady(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus.Listen(lctx, r.Bus, events.TopicConnStatus, func(s events.ConnStatus) {
		if !s.Ready {
			return
		}
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	if r.Connector.Ready() {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for remote (last state %s): %w", r.Connector.Status(), ctx.Err())
	}
}

func (r *Runtime) setConnStatus(status events.ConnStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (events.ConnStatus, bool) {
	r.connStatusMu.RLock()
	defer r.connStatusMu.RUnlock()

	return r.connStatus, r.connStatusKnown
}

// SaveAndApplyConfig persists cfg and applies what can change at runtime:
// logging and the connection endpoint. Identity and protocol timings take
// effect on the next start.
func (r *Runtime) SaveAndApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.Config
	endpointChanged := !sameEndpoint(prev.Connection, cfg.Connection)
	var nextLock platform.EndpointLock
	if r.started && endpointChanged {
		lock, err := acquireEndpoint(cfg.Connection)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		nextLock = lock
	}
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		r.mu.Unlock()
		releaseEndpoint(nextLock)
		return err
	}
	r.Config = cfg
	if nextLock != nil {
		releaseEndpoint(r.lock)
		r.lock = nextLock
	}
	r.mu.Unlock()

	if err := r.LogManager.Configure(cfg.Logging, r.Paths.LogFile); err != nil {
		return err
	}

	if r.Transport != nil && prev.Connection != cfg.Connection {
		if err := r.Transport.Apply(cfg.Connection); err != nil {
			return err
		}
		if endpointChanged {
			// A different remote will push its own tree.
			r.Controller.Tree().Clear()
			slog.Info("connection endpoint changed", "transport", cfg.Connection.Transport, "target", ConnectionTarget(cfg.Connection))
		}
	}

	return nil
}

func (r *Runtime) Close() error {
	if r.Connector != nil {
		r.Connector.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.Transport != nil {
		_ = r.Transport.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	r.mu.Lock()
	releaseEndpoint(r.lock)
	r.lock = nil
	r.mu.Unlock()
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return nil
}

// acquireEndpoint keeps two local sessions off the same device. Platforms
// without a lock backend run unlocked.
func acquireEndpoint(conn config.ConnectionConfig) (platform.EndpointLock, error) {
	lock, err := platform.AcquireEndpointLock(Name, EndpointKey(conn))
	switch {
	case err == nil:
		return lock, nil
	case errors.Is(err, platform.ErrEndpointLockUnsupported):
		slog.Warn("endpoint lock unavailable", "error", err)
		return nil, nil
	case errors.Is(err, platform.ErrEndpointBusy):
		return nil, fmt.Errorf("%s %s: %w", conn.Transport, ConnectionTarget(conn), err)
	default:
		return nil, err
	}
}

func releaseEndpoint(lock platform.EndpointLock) {
	if lock == nil {
		return
	}
	if err := lock.Release(); err != nil {
		slog.Warn("release endpoint lock", "error", err)
	}
}

// OpenJournal opens the journal configured in cfg for read-only use by
// commands that never connect.
func OpenJournal(ctx context.Context, paths Paths, cfg config.AppConfig) (*sql.DB, *journal.Repo, error) {
	db, err := journal.Open(ctx, paths.JournalPath(cfg.Journal.Path))
	if err != nil {
		return nil, nil, err
	}

	return db, journal.NewRepo(db), nil
}
