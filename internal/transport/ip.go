package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultIPPort         = 3333
	defaultIPDialTimeout  = 6 * time.Second
	defaultIPWriteTimeout = 10 * time.Second
	defaultIPKeepAlive    = 15 * time.Second
)

// IPTransport talks to the remote over a TCP socket.
type IPTransport struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

// NewIPTransport accepts either a bare host or host:port; an explicit port
// in host wins over port.
func NewIPTransport(host string, port int) *IPTransport {
	return &IPTransport{addr: IPAddress(host, port)}
}

// IPAddress joins host and port the way IPTransport dials them.
func IPAddress(host string, port int) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if h, p, err := net.SplitHostPort(host); err == nil && p != "" {
		return net.JoinHostPort(h, p)
	}
	if port == 0 {
		port = DefaultIPPort
	}

	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

func (t *IPTransport) Name() string {
	return "ip"
}

func (t *IPTransport) StatusTarget() string {
	return t.addr
}

func (t *IPTransport) Connected() bool {
	_, err := t.currentConn()

	return err == nil
}

func (t *IPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	logger := transportLogger("ip", "target", t.addr)
	if t.addr == "" {
		return errors.New("ip host is empty")
	}

	dialer := net.Dialer{
		Timeout: defaultIPDialTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     defaultIPKeepAlive,
			Interval: defaultIPKeepAlive,
			Count:    3,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		logger.Warn("dial failed", "error", err)
		return fmt.Errorf("dial tcp %s: %w", t.addr, err)
	}
	t.conn = conn
	logger.Info("connected", "local", conn.LocalAddr().String())

	return nil
}

func (t *IPTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	transportLogger("ip", "target", t.addr).Info("closed")

	return nil
}

func (t *IPTransport) Read(ctx context.Context, buf []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := conn.Read(buf)
	switch {
	case n > 0:
		return n, nil
	case ctx.Err() != nil:
		return 0, ctx.Err()
	case err == nil, errors.Is(err, net.ErrClosed):
		return 0, ErrClosed
	default:
		return 0, closedOr(err)
	}
}

func (t *IPTransport) Write(ctx context.Context, p []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultIPWriteTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)

	n, err := writeFull(ctx, conn, p)
	if err != nil {
		return n, fmt.Errorf("write tcp: %w", closedOr(err))
	}

	return n, nil
}

func (t *IPTransport) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}
