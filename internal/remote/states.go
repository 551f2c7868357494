package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/skobkin/menulink/internal/commands"
)

// State is one stage of the connection lifecycle. Enter and ProcessCommand
// run on the connection goroutine; Tick runs on the tick goroutine; CanSend
// may run anywhere.
type State interface {
	Status() Status
	Enter(ctx context.Context) error
	Exit(next Status)
	NeedsRead() bool
	Tick(now time.Time)
	ProcessCommand(cmd commands.MenuCommand) error
	CanSend(cmd commands.MenuCommand) bool
}

// looper is implemented by states that drive their own loop iteration
// instead of reading one frame.
type looper interface {
	RunLoop(ctx context.Context) error
}

type stateFactory func(c *Connector) State

func defaultFactories(mode Mode) map[Status]stateFactory {
	authFactory := func(c *Connector) State { return &joinState{baseState: newBase(c, StatusSendAuth)} }
	if mode == ModePairing {
		authFactory = func(c *Connector) State { return &pairingState{baseState: newBase(c, StatusSendAuth)} }
	}

	return map[Status]stateFactory{
		StatusNotStarted:         func(c *Connector) State { return &notStartedState{baseState: newBase(c, StatusNotStarted)} },
		StatusAwaitingConnection: func(c *Connector) State { return &awaitingConnectionState{baseState: newBase(c, StatusAwaitingConnection)} },
		StatusEstablished:        func(c *Connector) State { return &establishedState{baseState: newBase(c, StatusEstablished)} },
		StatusSendAuth:           authFactory,
		StatusAuthenticated:      func(c *Connector) State { return &authenticatedState{baseState: newBase(c, StatusAuthenticated)} },
		StatusBootstrapping:      func(c *Connector) State { return &bootstrappingState{baseState: newBase(c, StatusBootstrapping)} },
		StatusConnectionReady:    func(c *Connector) State { return &readyState{baseState: newBase(c, StatusConnectionReady)} },
		StatusFailedAuth:         func(c *Connector) State { return &failedAuthState{baseState: newBase(c, StatusFailedAuth)} },
	}
}

// baseState supplies the inert defaults: reads frames, ignores input,
// vetoes sends.
type baseState struct {
	c      *Connector
	status Status
	ticks  atomic.Int32
}

func newBase(c *Connector, status Status) baseState {
	return baseState{c: c, status: status}
}

func (s *baseState) Status() Status                            { return s.status }
func (s *baseState) Enter(context.Context) error               { return nil }
func (s *baseState) Exit(Status)                               {}
func (s *baseState) NeedsRead() bool                           { return true }
func (s *baseState) Tick(time.Time)                            {}
func (s *baseState) ProcessCommand(commands.MenuCommand) error { return nil }
func (s *baseState) CanSend(commands.MenuCommand) bool         { return false }

// tickTimeout counts a tick without progress and resets the connection once
// the limit is passed.
func (s *baseState) tickTimeout() {
	n := s.ticks.Add(1)
	if int(n) > s.c.cfg.StateTimeoutTicks {
		s.c.reset(fmt.Sprintf("no progress in %s after %d ticks", s.status, n-1), nil)
	}
}

func (s *baseState) progress() {
	s.ticks.Store(0)
}

func isHeartbeat(cmd commands.MenuCommand) bool {
	_, ok := cmd.(commands.HeartbeatCommand)
	return ok
}

type notStartedState struct {
	baseState
}

func (s *notStartedState) NeedsRead() bool { return false }

type awaitingConnectionState struct {
	baseState
	backoff *backoff.ExponentialBackOff
}

func (s *awaitingConnectionState) NeedsRead() bool { return false }

func (s *awaitingConnectionState) Enter(context.Context) error {
	s.backoff = &backoff.ExponentialBackOff{
		InitialInterval:     s.c.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.c.cfg.MaxBackoff,
		MaxElapsedTime:      0,
		Clock:               s.c.clock,
	}
	s.backoff.Reset()
	s.c.resetSession()

	return nil
}

func (s *awaitingConnectionState) RunLoop(ctx context.Context) error {
	if s.c.transport.Connected() {
		s.c.logger.Debug("transport already connected")
		s.c.requestStatus(StatusEstablished)
		return nil
	}
	err := s.c.transport.Connect(ctx)
	if err == nil {
		s.c.requestStatus(StatusEstablished)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	delay := s.backoff.NextBackOff()
	s.c.logger.Warn("transport connect failed", "error", err, "retry_in", delay)
	s.c.publishConnStatus(err)

	return s.c.sleep(ctx, delay)
}

type establishedState struct {
	baseState
}

func (s *establishedState) Tick(time.Time) { s.tickTimeout() }

func (s *establishedState) CanSend(cmd commands.MenuCommand) bool {
	return isHeartbeat(cmd)
}

func (s *establishedState) ProcessCommand(cmd commands.MenuCommand) error {
	switch c := cmd.(type) {
	case commands.HeartbeatCommand:
		if c.Mode == commands.HeartbeatStart {
			return s.c.sendNow(commands.HeartbeatCommand{Mode: commands.HeartbeatStart, Interval: s.c.HeartbeatInterval()})
		}
	case commands.NewJoinerCommand:
		s.c.setRemote(c)
		s.c.requestStatus(StatusSendAuth)
	}

	return nil
}

func authCommandAllowed(cmd commands.MenuCommand) bool {
	switch cmd.(type) {
	case commands.HeartbeatCommand, commands.NewJoinerCommand, commands.PairingCommand:
		return true
	default:
		return false
	}
}

// processAuthAck moves on from either authentication stage.
func processAuthAck(c *Connector, cmd commands.MenuCommand) {
	ack, ok := cmd.(commands.AcknowledgementCommand)
	if !ok {
		return
	}
	if ack.Status == commands.AckSuccess {
		c.requestStatus(StatusAuthenticated)
		return
	}
	c.logger.Warn("authentication rejected", "status", ack.Status)
	c.requestStatus(StatusFailedAuth)
}

type joinState struct {
	baseState
}

func (s *joinState) Tick(time.Time) { s.tickTimeout() }

func (s *joinState) CanSend(cmd commands.MenuCommand) bool { return authCommandAllowed(cmd) }

func (s *joinState) Enter(context.Context) error {
	cfg := s.c.cfg

	return s.c.sendNow(commands.NewJoinerCommand{
		Name:       cfg.LocalName,
		UUID:       cfg.LocalUUID,
		APIVersion: cfg.APIVersion,
		Platform:   cfg.Platform,
	})
}

func (s *joinState) ProcessCommand(cmd commands.MenuCommand) error {
	processAuthAck(s.c, cmd)
	return nil
}

// pairingState waits for a person to accept the request on the device, so
// it has no progress timeout.
type pairingState struct {
	baseState
}

func (s *pairingState) CanSend(cmd commands.MenuCommand) bool { return authCommandAllowed(cmd) }

func (s *pairingState) Enter(context.Context) error {
	return s.c.sendNow(commands.PairingCommand{Name: s.c.cfg.LocalName, UUID: s.c.cfg.LocalUUID})
}

func (s *pairingState) ProcessCommand(cmd commands.MenuCommand) error {
	processAuthAck(s.c, cmd)
	return nil
}

type authenticatedState struct {
	baseState
}

func (s *authenticatedState) Tick(time.Time) { s.tickTimeout() }

func (s *authenticatedState) CanSend(cmd commands.MenuCommand) bool { return isHeartbeat(cmd) }

func (s *authenticatedState) ProcessCommand(cmd commands.MenuCommand) error {
	if boot, ok := cmd.(commands.BootstrapCommand); ok && boot.Type == commands.BootstrapStart {
		s.c.requestStatus(StatusBootstrapping)
	}

	return nil
}

type bootstrappingState struct {
	baseState
}

func (s *bootstrappingState) Tick(time.Time) { s.tickTimeout() }

func (s *bootstrappingState) CanSend(cmd commands.MenuCommand) bool { return isHeartbeat(cmd) }

func (s *bootstrappingState) Enter(context.Context) error {
	s.c.forward(commands.BootstrapCommand{Type: commands.BootstrapStart})
	return nil
}

func (s *bootstrappingState) ProcessCommand(cmd commands.MenuCommand) error {
	switch c := cmd.(type) {
	case commands.BootstrapCommand:
		if c.Type == commands.BootstrapStart {
			return fmt.Errorf("bootstrap start received while bootstrapping")
		}
		s.c.forward(c)
		s.c.requestStatus(StatusConnectionReady)
	case commands.BootItemCommand, commands.ChangeCommand:
		s.progress()
		s.c.forward(cmd)
	}

	return nil
}

type readyState struct {
	baseState
}

func (s *readyState) CanSend(commands.MenuCommand) bool { return true }

func (s *readyState) Enter(context.Context) error {
	s.c.markHeartbeatBaseline()
	return nil
}

func (s *readyState) ProcessCommand(cmd commands.MenuCommand) error {
	hb, ok := cmd.(commands.HeartbeatCommand)
	if !ok {
		s.c.forward(cmd)
		return nil
	}
	if hb.Mode == commands.HeartbeatEnd {
		s.c.reset("remote ended the session", nil)
		return nil
	}
	s.c.adoptHeartbeatInterval(hb.Interval)

	return nil
}

func (s *readyState) Tick(now time.Time) {
	if !s.c.transport.Connected() {
		s.c.reset("transport disconnected", nil)
		return
	}
	interval, lastRx, lastTx := s.c.heartbeatTimes()
	if limit := interval * time.Duration(s.c.cfg.RxTimeoutMultiplier); now.Sub(lastRx) > limit {
		s.c.reset(fmt.Sprintf("no message received for %s", now.Sub(lastRx).Round(time.Millisecond)), nil)
		return
	}
	if now.Sub(lastTx) >= interval {
		if err := s.c.sendNow(commands.HeartbeatCommand{Mode: commands.HeartbeatNormal, Interval: interval}); err != nil {
			s.c.logger.Debug("heartbeat send failed", "error", err)
		}
	}
}

type failedAuthState struct {
	baseState

	mu       sync.Mutex
	deadline time.Time
}

func (s *failedAuthState) NeedsRead() bool { return false }

func (s *failedAuthState) Enter(context.Context) error {
	s.mu.Lock()
	s.deadline = s.c.clock.Now().Add(s.c.cfg.FailedAuthGrace)
	s.mu.Unlock()

	return nil
}

func (s *failedAuthState) Tick(now time.Time) {
	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()
	if deadline.IsZero() || now.Before(deadline) {
		return
	}
	s.c.reset("authentication failed", nil)
}
