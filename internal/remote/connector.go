package remote

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/menulink/internal/bus"
	"github.com/skobkin/menulink/internal/clock"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/events"
	"github.com/skobkin/menulink/internal/protocol"
	"github.com/skobkin/menulink/internal/transport"
)

const (
	idleInterval = 100 * time.Millisecond
	readBufSize  = 512
)

var (
	ErrSendRejected   = errors.New("send rejected in current state")
	ErrAlreadyStarted = errors.New("connector already started")
)

// Codec turns commands into frames and back.
type Codec interface {
	Encode(cmd commands.MenuCommand, protocol byte) ([]byte, error)
	Decode(frame []byte) (commands.MenuCommand, error)
}

type CommandListener func(cmd commands.MenuCommand)

type StatusListener func(status Status)

// Connector runs one session with a remote over a transport: it connects,
// authenticates, receives the bootstrap and keeps the link alive with
// heartbeats, reconnecting whenever anything goes wrong.
type Connector struct {
	logger    *slog.Logger
	bus       bus.MessageBus
	transport transport.Transport
	codec     Codec
	cfg       Config
	clock     clock.Clock
	factories map[Status]stateFactory
	sleep     func(ctx context.Context, d time.Duration) error

	stateMu sync.Mutex
	current State
	pending State

	readMu  sync.Mutex
	frames  *protocol.FrameBuffer
	readBuf []byte

	writeMu sync.Mutex

	hbMu     sync.Mutex
	interval time.Duration
	lastRx   time.Time
	lastTx   time.Time

	remoteMu sync.RWMutex
	remote   events.RemoteInfo
	lastErr  error

	listenersMu     sync.RWMutex
	cmdListeners    []CommandListener
	statusListeners []StatusListener

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConnector(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, codec Codec, cfg Config, clk clock.Clock) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	cfg = cfg.withDefaults()

	c := &Connector{
		logger:    logger.With("component", "remote", "transport", tr.Name()),
		bus:       b,
		transport: tr,
		codec:     codec,
		cfg:       cfg,
		clock:     clk,
		factories: defaultFactories(cfg.Mode),
		sleep:     sleepWithContext,
		frames:    protocol.NewFrameBuffer(protocol.ProtocolTagVal, cfg.MaxFrameSize),
		readBuf:   make([]byte, readBufSize),
		interval:  cfg.HeartbeatInterval,
	}
	c.current = c.factories[StatusNotStarted](c)

	return c
}

// AddCommandListener registers fn for every command forwarded once
// bootstrapping begins. Listeners run on the connection goroutine.
func (c *Connector) AddCommandListener(fn CommandListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.cmdListeners = append(c.cmdListeners, fn)
}

func (c *Connector) AddStatusListener(fn StatusListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
}

func (c *Connector) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.requestStatus(StatusAwaitingConnection)

	c.wg.Add(2)
	go c.runThread(runCtx)
	go c.runTicker(runCtx)
	c.logger.Info("connector started", "mode", c.cfg.Mode)

	return nil
}

// Stop ends the session. It is safe to call more than once and on a
// connector that never started.
func (c *Connector) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel == nil {
		return
	}

	if c.Status() == StatusConnectionReady {
		end := commands.HeartbeatCommand{Mode: commands.HeartbeatEnd, Interval: c.HeartbeatInterval()}
		if err := c.sendNow(end); err != nil {
			c.logger.Debug("end heartbeat not sent", "error", err)
		}
	}
	c.cancel()
	c.cancel = nil
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("transport close failed", "error", err)
	}
	c.wg.Wait()
	if c.transport.Connected() {
		_ = c.transport.Close()
	}

	c.stateMu.Lock()
	c.current = c.factories[StatusNotStarted](c)
	c.pending = nil
	c.stateMu.Unlock()
	c.notifyStatus(StatusNotStarted)
	c.logger.Info("connector stopped")
}

func (c *Connector) Status() Status {
	return c.currentState().Status()
}

func (c *Connector) Ready() bool {
	return c.Status() == StatusConnectionReady
}

// Remote returns what the remote announced when it joined, or the zero
// value before that.
func (c *Connector) Remote() events.RemoteInfo {
	c.remoteMu.RLock()
	defer c.remoteMu.RUnlock()

	return c.remote
}

func (c *Connector) TransportName() string {
	return c.transport.Name()
}

func (c *Connector) HeartbeatInterval() time.Duration {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()

	return c.interval
}

// SendCommand offers cmd to the current state and writes it when allowed.
// A rejected send during a live session also resets the connection.
func (c *Connector) SendCommand(cmd commands.MenuCommand) error {
	if cmd == nil {
		return fmt.Errorf("send: %w", protocol.ErrUnencodable)
	}
	st := c.currentState()
	if !st.CanSend(cmd) {
		status := st.Status()
		if status.live() {
			c.reset(fmt.Sprintf("%s not allowed in %s", cmd.CommandType(), status), nil)
		}
		return fmt.Errorf("%w: %s in %s", ErrSendRejected, cmd.CommandType(), status)
	}

	return c.sendNow(cmd)
}

func (c *Connector) runThread(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		c.step(ctx)
	}
}

func (c *Connector) runTicker(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Connector) step(ctx context.Context) {
	c.applyTransition(ctx)
	err := c.runOnce(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	if c.hasPending() {
		// The state already moved on; this error belongs to the old one.
		c.logger.Debug("loop error after transition request", "error", err)
		return
	}
	if protocol.IsCorruption(err) {
		c.reset("protocol error", err)
		return
	}
	c.reset("connection loop failed", err)
}

// applyTransition swaps in the staged state and enters it. It reports
// whether a transition took place.
func (c *Connector) applyTransition(ctx context.Context) bool {
	c.stateMu.Lock()
	next := c.pending
	if next == nil {
		c.stateMu.Unlock()
		return false
	}
	prev := c.current
	c.current = next
	c.pending = nil
	c.stateMu.Unlock()

	c.logger.Info("state changed", "from", prev.Status(), "to", next.Status())
	c.notifyStatus(next.Status())
	if err := enterState(ctx, next); err != nil {
		c.reset(fmt.Sprintf("enter %s failed", next.Status()), err)
	}

	return true
}

func enterState(ctx context.Context, st State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic entering %s: %v", st.Status(), r)
		}
	}()

	return st.Enter(ctx)
}

func (c *Connector) runOnce(ctx context.Context) error {
	st := c.currentState()
	if l, ok := st.(looper); ok {
		return l.RunLoop(ctx)
	}
	if !st.NeedsRead() {
		return c.sleep(ctx, idleInterval)
	}

	cmd, err := c.readCommand(ctx)
	if err != nil {
		return err
	}

	return st.ProcessCommand(cmd)
}

func (c *Connector) tick() {
	st := c.currentState()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tick panicked", "state", st.Status(), "panic", r)
			c.reset("tick failed", fmt.Errorf("%v", r))
		}
	}()
	st.Tick(c.clock.Now())
}

func (c *Connector) currentState() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.current
}

func (c *Connector) hasPending() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.pending != nil
}

// requestStatus stages the state for next. A staged reconnect is only
// overridden by a stop.
func (c *Connector) requestStatus(next Status) {
	factory, ok := c.factories[next]
	if !ok {
		c.logger.Error("no state registered", "status", next)
		return
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.pending != nil {
		if c.pending.Status() == StatusAwaitingConnection && next != StatusNotStarted {
			return
		}
	} else if c.current != nil {
		c.current.Exit(next)
	}
	c.pending = factory(c)
}

// reset drops the transport and starts over from AwaitingConnection.
func (c *Connector) reset(reason string, err error) {
	if err != nil {
		c.logger.Warn("resetting connection", "reason", reason, "error", err)
	} else {
		c.logger.Warn("resetting connection", "reason", reason)
	}
	c.remoteMu.Lock()
	if err != nil {
		c.lastErr = fmt.Errorf("%s: %w", reason, err)
	} else {
		c.lastErr = errors.New(reason)
	}
	c.remoteMu.Unlock()

	if closeErr := c.transport.Close(); closeErr != nil {
		c.logger.Debug("transport close failed", "error", closeErr)
	}
	c.requestStatus(StatusAwaitingConnection)
}

// resetSession clears everything learned from the previous session.
func (c *Connector) resetSession() {
	c.readMu.Lock()
	c.frames.Reset()
	c.readMu.Unlock()

	c.hbMu.Lock()
	c.interval = c.cfg.HeartbeatInterval
	c.hbMu.Unlock()

	c.remoteMu.Lock()
	c.remote = events.RemoteInfo{}
	c.remoteMu.Unlock()
}

func (c *Connector) readCommand(ctx context.Context) (commands.MenuCommand, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if frame, ok := c.frames.Next(); ok {
			c.markRx()
			c.publishFrame(events.TopicRawFrameIn, frame)
			cmd, err := c.codec.Decode(frame)
			if err != nil {
				return nil, err
			}
			c.logger.Debug("received", "command", cmd)
			return cmd, nil
		}

		n, err := c.transport.Read(ctx, c.readBuf)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if err := c.frames.Write(c.readBuf[:n]); err != nil {
			return nil, err
		}
	}
}

// sendNow writes cmd without consulting the state. Failures reset the
// connection.
func (c *Connector) sendNow(cmd commands.MenuCommand) error {
	frame, err := c.codec.Encode(cmd, protocol.ProtocolTagVal)
	if err != nil {
		c.reset(fmt.Sprintf("cannot encode %s", cmd.CommandType()), err)
		return fmt.Errorf("encode %s: %w", cmd.CommandType(), err)
	}

	c.writeMu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	_, err = c.transport.Write(ctx, frame)
	cancel()
	c.writeMu.Unlock()
	if err != nil {
		c.reset("write failed", err)
		return fmt.Errorf("write %s: %w", cmd.CommandType(), err)
	}

	if isHeartbeat(cmd) {
		c.hbMu.Lock()
		c.lastTx = c.clock.Now()
		c.hbMu.Unlock()
	}
	c.publishFrame(events.TopicRawFrameOut, frame)
	c.logger.Debug("sent", "command", cmd)

	return nil
}

func (c *Connector) markRx() {
	c.hbMu.Lock()
	c.lastRx = c.clock.Now()
	c.hbMu.Unlock()
}

func (c *Connector) markHeartbeatBaseline() {
	now := c.clock.Now()
	c.hbMu.Lock()
	c.lastRx = now
	c.lastTx = now
	c.hbMu.Unlock()
}

func (c *Connector) adoptHeartbeatInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.hbMu.Lock()
	changed := c.interval != d
	c.interval = d
	c.hbMu.Unlock()
	if changed {
		c.logger.Debug("heartbeat interval changed", "interval", d)
	}
}

func (c *Connector) heartbeatTimes() (time.Duration, time.Time, time.Time) {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()

	return c.interval, c.lastRx, c.lastTx
}

func (c *Connector) setRemote(join commands.NewJoinerCommand) {
	c.remoteMu.Lock()
	c.remote = events.RemoteInfo{
		Name:       join.Name,
		UUID:       join.UUID,
		APIVersion: join.APIVersion,
		Platform:   join.Platform,
	}
	c.remoteMu.Unlock()
	c.logger.Info("remote joined", "name", join.Name, "uuid", join.UUID, "api", join.APIVersion, "platform", join.Platform)
}

func (c *Connector) forward(cmd commands.MenuCommand) {
	c.listenersMu.RLock()
	listeners := append([]CommandListener(nil), c.cmdListeners...)
	c.listenersMu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("command listener panicked", "command", cmd, "panic", r)
				}
			}()
			fn(cmd)
		}()
	}
}

func (c *Connector) notifyStatus(status Status) {
	c.listenersMu.RLock()
	listeners := append([]StatusListener(nil), c.statusListeners...)
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(status)
	}

	var err error
	c.remoteMu.Lock()
	switch status {
	case StatusConnectionReady:
		c.lastErr = nil
	case StatusAwaitingConnection:
		err = c.lastErr
	}
	c.remoteMu.Unlock()
	c.publishStatus(status, err)
}

// publishConnStatus reports the current state with err attached.
func (c *Connector) publishConnStatus(err error) {
	c.publishStatus(c.Status(), err)
}

func (c *Connector) publishStatus(status Status, err error) {
	if c.bus == nil {
		return
	}
	msg := events.ConnStatus{
		State:         status.String(),
		Ready:         status == StatusConnectionReady,
		TransportName: c.transport.Name(),
		Remote:        c.Remote(),
		Timestamp:     c.clock.Now(),
	}
	if err != nil {
		msg.Err = err.Error()
	}
	c.bus.Publish(events.TopicConnStatus, msg)
}

func (c *Connector) publishFrame(topic string, frame []byte) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(topic, events.RawFrame{
		Hex:  strings.ToUpper(hex.EncodeToString(frame)),
		Text: protocol.DescribeFrame(frame),
		Len:  len(frame),
	})
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
