package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

var (
	ErrNotConnected = errors.New("transport is not connected")
	ErrClosed       = errors.New("transport is closed")
)

// Transport is a byte stream to a remote. Read and Write move raw bytes;
// framing is done by the caller.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Connected() bool
	Close() error
	// Read blocks until some bytes arrive. It never returns 0 bytes with a
	// nil error; a stream that ended reports ErrClosed.
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, p []byte) (int, error)
}

// StatusTargetResolver is implemented by transports that can describe the
// endpoint they talk to.
type StatusTargetResolver interface {
	StatusTarget() string
}

func transportLogger(name string, attrs ...any) *slog.Logger {
	logger := slog.With("component", "transport", "transport", name)
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}

// closedOr maps end-of-stream to ErrClosed.
func closedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}

	return err
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := w.Write(buf[written:])
		written += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
