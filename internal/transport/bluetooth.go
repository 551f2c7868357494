package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/menulink/internal/bluetoothutil"
	"tinygo.org/x/bluetooth"
)

const (
	defaultBluetoothChunkQueueSize = 256
	defaultBluetoothWriteChunk     = 20
	defaultBluetoothDiscoverWait   = 12 * time.Second
	defaultBluetoothSubscribeWait  = 8 * time.Second
)

var errBluetoothQueueOverflow = errors.New("bluetooth receive queue overflow")

type bluetoothConnState struct {
	device bluetooth.Device
	rx     bluetooth.DeviceCharacteristic
	tx     bluetooth.DeviceCharacteristic

	chunks chan []byte
	closed chan struct{}

	// pending holds the unread tail of the last chunk; only Read touches it.
	pending []byte

	closeOnce sync.Once
	errMu     sync.RWMutex
	asyncErr  error
}

// BluetoothTransport speaks over a BLE UART service: writes go to the RX
// characteristic, notifications on TX carry the remote's bytes.
type BluetoothTransport struct {
	address    string
	adapterID  string
	writeChunk int

	mu      sync.RWMutex
	conn    *bluetoothConnState
	readMu  sync.Mutex
	writeMu sync.Mutex
}

func NewBluetoothTransport(address, adapterID string) *BluetoothTransport {
	return &BluetoothTransport{
		address:    strings.TrimSpace(address),
		adapterID:  strings.TrimSpace(adapterID),
		writeChunk: defaultBluetoothWriteChunk,
	}
}

func (t *BluetoothTransport) Name() string {
	return "bluetooth"
}

func (t *BluetoothTransport) StatusTarget() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.address
}

func (t *BluetoothTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.conn != nil
}

func (t *BluetoothTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("bluetooth", "address", t.address, "adapter", t.adapterID)
	if t.conn != nil {
		logger.Debug("connect skipped: already connected")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := parseBluetoothAddress(t.address)
	if err != nil {
		logger.Warn("connect failed: invalid address", "error", err)
		return err
	}

	adapter := bluetoothutil.Adapter(t.adapterID)
	logger.Info("connecting")
	if err := bluetoothutil.Enable(adapter); err != nil {
		logger.Warn("enable adapter failed", "error", err)
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if bluetoothutil.Classify(err) == bluetoothutil.ErrorDeviceUnknown {
		logger.Info("direct connect failed, trying discovery fallback", "error", err)
		if discoverErr := bluetoothutil.WaitForDevice(ctx, adapter, addr, defaultBluetoothDiscoverWait); discoverErr != nil {
			return fmt.Errorf("connect bluetooth device %q: %w", t.address, errors.Join(err, fmt.Errorf("discovery failed: %w", discoverErr)))
		}
		device, err = adapter.Connect(addr, bluetooth.ConnectionParams{})
	}
	if err != nil {
		logger.Warn("connect device failed", "error", err)
		return fmt.Errorf("connect bluetooth device %q: %w", t.address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{bluetoothutil.UARTServiceUUID()})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		if err == nil {
			err = errors.New("service not advertised")
		}
		logger.Warn("discover uart service failed", "error", err)
		return fmt.Errorf("discover uart service: %w", err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetoothutil.UARTRxUUID(),
		bluetoothutil.UARTTxUUID(),
	})
	if err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("discover uart characteristics: %w", err)
	}
	if len(chars) != 2 {
		_ = device.Disconnect()
		return fmt.Errorf("unexpected characteristic count: %d", len(chars))
	}

	state := &bluetoothConnState{
		device: device,
		rx:     chars[0],
		tx:     chars[1],
		chunks: make(chan []byte, defaultBluetoothChunkQueueSize),
		closed: make(chan struct{}),
	}
	if err := state.subscribe(ctx, defaultBluetoothSubscribeWait); err != nil {
		logger.Warn("subscribe to notifications failed", "error", err)
		return fmt.Errorf("subscribe to uart notifications: %w", err)
	}
	if err := ctx.Err(); err != nil {
		state.markClosed()
		_ = state.tx.EnableNotifications(nil)
		_ = device.Disconnect()
		return err
	}

	t.conn = state
	logger.Info("connected")

	return nil
}

func (t *BluetoothTransport) Close() error {
	t.mu.Lock()
	logger := transportLogger("bluetooth", "address", t.address)
	state := t.conn
	t.conn = nil
	t.mu.Unlock()
	if state == nil {
		return nil
	}

	state.markClosed()
	var closeErr error
	if err := state.tx.EnableNotifications(nil); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("disable uart notifications: %w", err))
	}
	if err := state.device.Disconnect(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("disconnect bluetooth device: %w", err))
	}
	if closeErr != nil {
		logger.Warn("close failed", "error", closeErr)
		return closeErr
	}
	logger.Info("closed")

	return nil
}

func (t *BluetoothTransport) Read(ctx context.Context, buf []byte) (int, error) {
	state, err := t.currentState()
	if err != nil {
		return 0, err
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	return state.read(ctx, buf)
}

func (t *BluetoothTransport) Write(ctx context.Context, p []byte) (int, error) {
	state, err := t.currentState()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	written := 0
	for written < len(p) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		select {
		case <-state.closed:
			return written, state.closedErr()
		default:
		}
		end := min(written+t.writeChunk, len(p))
		n, err := state.rx.WriteWithoutResponse(p[written:end])
		written += n
		if err != nil {
			return written, fmt.Errorf("write uart rx: %w", err)
		}
		if n == 0 {
			return written, errors.New("write uart rx: no progress")
		}
	}

	return written, nil
}

func (t *BluetoothTransport) currentState() (*bluetoothConnState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}

func (s *bluetoothConnState) read(ctx context.Context, buf []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.closed:
			// Deliver what arrived before the close first.
			select {
			case chunk := <-s.chunks:
				s.pending = chunk
			default:
				return 0, s.closedErr()
			}
		case chunk := <-s.chunks:
			s.pending = chunk
		}
	}
	n := copy(buf, s.pending)
	s.pending = s.pending[n:]

	return n, nil
}

// enqueue runs on the bluetooth stack's callback goroutine.
func (s *bluetoothConnState) enqueue(payload []byte) {
	if len(payload) == 0 {
		return
	}
	chunk := append([]byte(nil), payload...)
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.chunks <- chunk:
	default:
		// A gap in the byte stream is unrecoverable.
		s.setAsyncError(errBluetoothQueueOverflow)
		s.markClosed()
	}
}

func (s *bluetoothConnState) markClosed() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *bluetoothConnState) setAsyncError(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.asyncErr == nil {
		s.asyncErr = err
	}
	s.errMu.Unlock()
}

func (s *bluetoothConnState) closedErr() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	if s.asyncErr != nil {
		return fmt.Errorf("%w: %w", ErrClosed, s.asyncErr)
	}

	return ErrClosed
}

func parseBluetoothAddress(raw string) (bluetooth.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return bluetooth.Address{}, errors.New("bluetooth address is empty")
	}

	mac, err := bluetooth.ParseMAC(strings.ToUpper(trimmed))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid bluetooth address %q: %w", trimmed, err)
	}

	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

// subscribe turns on TX notifications. Some stacks never answer the
// request, so it is bounded by wait and ctx; on failure the device is
// dropped.
func (s *bluetoothConnState) subscribe(ctx context.Context, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- s.tx.EnableNotifications(s.enqueue)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no answer within %s", wait)
		}
	}
	if err != nil {
		_ = s.device.Disconnect()
	}

	return err
}
