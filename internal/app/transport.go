package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/skobkin/menulink/internal/config"
	"github.com/skobkin/menulink/internal/transport"
)

// SwitchableTransport wraps the active transport and lets the runtime swap
// it when the connection settings change. The connector keeps a single
// Transport for its whole life and reconnects through whatever is current.
type SwitchableTransport struct {
	mu sync.RWMutex

	cfg       config.ConnectionConfig
	transport transport.Transport
}

func NewSwitchableTransport(cfg config.ConnectionConfig) (*SwitchableTransport, error) {
	tr, err := NewTransportForConnection(cfg)
	if err != nil {
		return nil, err
	}

	return &SwitchableTransport{
		cfg:       cfg,
		transport: tr,
	}, nil
}

// Apply replaces the transport and closes the old one, which makes the
// connector fall back to reconnecting.
func (t *SwitchableTransport) Apply(cfg config.ConnectionConfig) error {
	next, err := NewTransportForConnection(cfg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	current := t.transport
	t.transport = next
	t.cfg = cfg
	t.mu.Unlock()

	if current != nil {
		_ = current.Close()
	}

	return nil
}

func (t *SwitchableTransport) Name() string {
	tr := t.current()
	if tr == nil {
		return "unknown"
	}

	return tr.Name()
}

func (t *SwitchableTransport) StatusTarget() string {
	t.mu.RLock()
	tr := t.transport
	cfg := t.cfg
	t.mu.RUnlock()

	if provider, ok := tr.(transport.StatusTargetResolver); ok {
		if target := strings.TrimSpace(provider.StatusTarget()); target != "" {
			return target
		}
	}

	return ConnectionTarget(cfg)
}

func (t *SwitchableTransport) Connect(ctx context.Context) error {
	tr := t.current()
	if tr == nil {
		return fmt.Errorf("connect: %w", transport.ErrNotConnected)
	}

	return tr.Connect(ctx)
}

func (t *SwitchableTransport) Connected() bool {
	tr := t.current()

	return tr != nil && tr.Connected()
}

func (t *SwitchableTransport) Close() error {
	tr := t.current()
	if tr == nil {
		return nil
	}

	return tr.Close()
}

func (t *SwitchableTransport) Read(ctx context.Context, buf []byte) (int, error) {
	tr := t.current()
	if tr == nil {
		return 0, transport.ErrNotConnected
	}

	return tr.Read(ctx, buf)
}

func (t *SwitchableTransport) Write(ctx context.Context, p []byte) (int, error) {
	tr := t.current()
	if tr == nil {
		return 0, transport.ErrNotConnected
	}

	return tr.Write(ctx, p)
}

func (t *SwitchableTransport) current() transport.Transport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.transport
}

func (t *SwitchableTransport) Config() config.ConnectionConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.cfg
}

func NewTransportForConnection(cfg config.ConnectionConfig) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportIP:
		return transport.NewIPTransport(cfg.Host, cfg.Port), nil
	case config.TransportSerial:
		return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud), nil
	case config.TransportBluetooth:
		return transport.NewBluetoothTransport(cfg.BluetoothAddress, cfg.BluetoothAdapter), nil
	case config.TransportWebSocket:
		return transport.NewWebSocketTransport(cfg.WebSocketURL), nil
	default:
		return nil, fmt.Errorf("unknown transport: %q", cfg.Transport)
	}
}

// ConnectionTarget describes the configured endpoint for status output.
func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Transport {
	case config.TransportIP:
		return transport.IPAddress(cfg.Host, cfg.Port)
	case config.TransportSerial:
		return strings.TrimSpace(cfg.SerialPort)
	case config.TransportBluetooth:
		return strings.TrimSpace(cfg.BluetoothAddress)
	case config.TransportWebSocket:
		return strings.TrimSpace(cfg.WebSocketURL)
	default:
		return ""
	}
}

// sameEndpoint reports whether two settings reach the same remote.
func sameEndpoint(a, b config.ConnectionConfig) bool {
	return a.Transport == b.Transport && ConnectionTarget(a) == ConnectionTarget(b)
}

// EndpointKey names an endpoint for the cross-process lock, e.g.
// "serial:/dev/ttyACM0".
func EndpointKey(cfg config.ConnectionConfig) string {
	target := ConnectionTarget(cfg)
	if cfg.Transport == config.TransportBluetooth {
		target = strings.ToLower(target)
	}

	return string(cfg.Transport) + ":" + target
}
