package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWebSocketHandshakeTimeout = 10 * time.Second

// WebSocketTransport carries the byte stream in binary websocket messages,
// as exposed by embedded web servers and serial-to-websocket bridges.
type WebSocketTransport struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	readMu  sync.Mutex
	pending []byte
	writeMu sync.Mutex
}

func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{url: url}
}

func (t *WebSocketTransport) Name() string {
	return "websocket"
}

func (t *WebSocketTransport) StatusTarget() string {
	return t.url
}

func (t *WebSocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("websocket", "url", t.url)
	if t.conn != nil {
		return nil
	}
	if t.url == "" {
		return errors.New("websocket url is empty")
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultWebSocketHandshakeTimeout,
	}
	logger.Info("connecting")
	conn, resp, err := dialer.DialContext(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logger.Warn("connect failed", "error", err)
		return fmt.Errorf("dial websocket: %w", err)
	}
	t.conn = conn
	t.pending = nil
	logger.Info("connected")

	return nil
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := t.conn.Close()
	t.conn = nil
	transportLogger("websocket", "url", t.url).Info("closed")

	return err
}

func (t *WebSocketTransport) Read(ctx context.Context, buf []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	for len(t.pending) == 0 {
		stop := context.AfterFunc(ctx, func() {
			_ = conn.SetReadDeadline(time.Now())
		})
		msgType, data, err := conn.ReadMessage()
		stop()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, ErrClosed
			}
			return 0, fmt.Errorf("read websocket: %w", closedOr(err))
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		t.pending = data
	}
	n := copy(buf, t.pending)
	t.pending = t.pending[n:]

	return n, nil
}

func (t *WebSocketTransport) Write(ctx context.Context, p []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("write websocket: %w", closedOr(err))
	}

	return len(p), nil
}

func (t *WebSocketTransport) currentConn() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}
