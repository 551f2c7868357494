package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"
)

// timeoutReader mimics a serial port: a few empty reads before data.
type timeoutReader struct {
	empties int
	data    []byte
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	if r.empties > 0 {
		r.empties--
		return 0, nil
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]

	return n, nil
}

func TestReadAvailableSkipsTimeoutReads(t *testing.T) {
	r := &timeoutReader{empties: 3, data: []byte("xyz")}
	buf := make([]byte, 8)

	n, err := readAvailable(context.Background(), r, buf)
	if err != nil || string(buf[:n]) != "xyz" {
		t.Fatalf("unexpected read %q: %v", buf[:n], err)
	}
	if _, err := readAvailable(context.Background(), r, buf); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed at end of stream, got %v", err)
	}
}

func TestReadAvailableStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &timeoutReader{empties: 1 << 30}

	if _, err := readAvailable(ctx, r, make([]byte, 4)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSerialTransportValidatesConfig(t *testing.T) {
	if err := NewSerialTransport("", 0).Connect(context.Background()); err == nil {
		t.Fatalf("expected error for empty port")
	}
	if err := NewSerialTransport("/dev/null", -1).Connect(context.Background()); err == nil {
		t.Fatalf("expected error for negative baud")
	}
}

// fakePort implements only what SerialTransport touches; other serial.Port
// methods would panic on the nil embedded interface.
type fakePort struct {
	serial.Port
	readTimeout time.Duration
	flushed     int
	closed      bool
	written     []byte
}

func (p *fakePort) SetReadTimeout(d time.Duration) error { p.readTimeout = d; return nil }
func (p *fakePort) ResetInputBuffer() error             { p.flushed++; return nil }
func (p *fakePort) Close() error                        { p.closed = true; return nil }
func (p *fakePort) Read([]byte) (int, error)            { return 0, io.EOF }

func (p *fakePort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func TestSerialConnectPreparesPort(t *testing.T) {
	port := &fakePort{}
	var gotMode serial.Mode
	tr := NewSerialTransport("/dev/ttyACM0", 0)
	tr.settle = 0
	tr.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		if name != "/dev/ttyACM0" {
			t.Fatalf("unexpected port %q", name)
		}
		gotMode = *mode
		return port, nil
	}

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if gotMode.BaudRate != DefaultSerialBaud || gotMode.DataBits != 8 || gotMode.StopBits != serial.OneStopBit {
		t.Fatalf("unexpected mode %+v", gotMode)
	}
	if port.readTimeout != defaultSerialReadTimeout || port.flushed != 1 {
		t.Fatalf("port not prepared: timeout=%v flushed=%d", port.readTimeout, port.flushed)
	}
	if !tr.Connected() || tr.StatusTarget() != "/dev/ttyACM0@115200" {
		t.Fatalf("unexpected state connected=%v target=%q", tr.Connected(), tr.StatusTarget())
	}

	if _, err := tr.Write(context.Background(), []byte("frame")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if string(port.written) != "frame" {
		t.Fatalf("unexpected bytes %q", port.written)
	}
	if _, err := tr.Read(context.Background(), make([]byte, 4)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	if err := tr.Close(); err != nil || !port.closed || tr.Connected() {
		t.Fatalf("close: err=%v closed=%v", err, port.closed)
	}
	if _, err := tr.Write(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestSerialConnectCancelledDuringSettle(t *testing.T) {
	port := &fakePort{}
	tr := NewSerialTransport("/dev/ttyUSB0", 9600)
	tr.settle = time.Hour
	tr.open = func(string, *serial.Mode) (serial.Port, error) { return port, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !port.closed || tr.Connected() {
		t.Fatalf("port must be closed after failed prepare")
	}
	if port.flushed != 0 {
		t.Fatalf("input must not be flushed before the board settles")
	}
}
