package bluetoothutil

import (
	"runtime"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Adapter returns the adapter named id (e.g. "hci1"), or the default one
// when id is blank or the platform cannot address adapters by name.
func Adapter(id string) *bluetooth.Adapter {
	if id = strings.TrimSpace(id); id == "" {
		return bluetooth.DefaultAdapter
	}

	return namedAdapter(id)
}

// Enable powers the adapter up for use. Repeated calls are fine.
func Enable(adapter *bluetooth.Adapter) error {
	err := adapter.Enable()
	if err != nil && comAlreadyInitialized(err) {
		return nil
	}

	return err
}

// comAlreadyInitialized matches the Windows backend reporting
// RoInitialize's S_FALSE as a failure.
func comAlreadyInitialized(err error) bool {
	if err == nil || runtime.GOOS != "windows" {
		return false
	}
	msg := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(err.Error())), ".")

	return msg == "incorrect function"
}

// StopScan stops a running scan, ignoring "nothing to stop" answers.
func StopScan(adapter *bluetooth.Adapter) error {
	if err := adapter.StopScan(); err != nil && Classify(err) != ErrorHarmlessStop {
		return err
	}

	return nil
}

// ScanOutcome drops the error a scan returns when it was stopped on
// purpose.
func ScanOutcome(err error) error {
	if err != nil && Classify(err) == ErrorHarmlessStop {
		return nil
	}

	return err
}
