package bluetoothutil

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// ErrDeviceNotSeen is returned by WaitForDevice when the scan ended
// without an advertisement from the target.
var ErrDeviceNotSeen = errors.New("device not seen during scan")

// WaitForDevice scans until target advertises, ctx ends or wait elapses
// (wait applies only when ctx has no deadline of its own). Once seen, BlueZ
// keeps the device object around so a following Connect succeeds.
func WaitForDevice(ctx context.Context, adapter *bluetooth.Adapter, target bluetooth.Address, wait time.Duration) error {
	if err := StopScan(adapter); err != nil {
		return fmt.Errorf("reset scan state: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	var seen atomic.Bool
	stop := context.AfterFunc(ctx, func() {
		_ = StopScan(adapter)
	})
	defer stop()

	err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if result.Address.MAC != target.MAC || seen.Swap(true) {
			return
		}
		_ = a.StopScan()
	})
	if err = ScanOutcome(err); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if !seen.Load() {
		return fmt.Errorf("%w: %s", ErrDeviceNotSeen, target.String())
	}

	return nil
}
