package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultSerialBaud        = 115200
	defaultSerialReadTimeout = 300 * time.Millisecond
	// Most boards reset when DTR is raised on open and print bootloader
	// noise before the menu firmware is up.
	defaultSerialSettle = 1500 * time.Millisecond
)

type serialOpener func(name string, mode *serial.Mode) (serial.Port, error)

// SerialTransport speaks to a device on a local serial port (8N1).
type SerialTransport struct {
	portName string
	mode     serial.Mode
	settle   time.Duration
	open     serialOpener

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	if baudRate == 0 {
		baudRate = DefaultSerialBaud
	}

	return &SerialTransport{
		portName: portName,
		mode: serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		settle: defaultSerialSettle,
		open:   serial.Open,
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	return fmt.Sprintf("%s@%d", t.portName, t.mode.BaudRate)
}

func (t *SerialTransport) Connected() bool {
	_, err := t.currentPort()

	return err == nil
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.mode.BaudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.mode.BaudRate)
	}

	logger := transportLogger("serial", "port", t.portName, "baud", t.mode.BaudRate)
	mode := t.mode
	port, err := t.open(t.portName, &mode)
	if err != nil {
		logger.Warn("open failed", "error", err)
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := t.prepare(ctx, port); err != nil {
		_ = port.Close()
		return err
	}
	t.port = port
	logger.Info("connected", "settle", t.settle)

	return nil
}

// prepare waits out the board reset and discards whatever it printed, so
// the first bytes read belong to the menu protocol.
func (t *SerialTransport) prepare(ctx context.Context, port serial.Port) error {
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	if t.settle > 0 {
		timer := time.NewTimer(t.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("flush serial input: %w", err)
	}

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()
	if port == nil {
		return nil
	}
	transportLogger("serial", "port", t.portName).Info("closed")

	return port.Close()
}

func (t *SerialTransport) Read(ctx context.Context, buf []byte) (int, error) {
	port, err := t.currentPort()
	if err != nil {
		return 0, err
	}

	return readAvailable(ctx, port, buf)
}

func (t *SerialTransport) Write(ctx context.Context, p []byte) (int, error) {
	port, err := t.currentPort()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	n, err := writeFull(ctx, port, p)
	if err != nil {
		return n, fmt.Errorf("write serial: %w", closedOr(err))
	}

	return n, nil
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}

	return t.port, nil
}

// readAvailable retries the zero-byte reads a port returns on read timeout
// until data arrives or ctx ends.
func readAvailable(ctx context.Context, r io.Reader, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			return n, nil
		}
		if err != nil {
			return 0, closedOr(err)
		}
	}
}
