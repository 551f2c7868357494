//go:build !linux

package bluetoothutil

import "tinygo.org/x/bluetooth"

// Only the BlueZ backend can pick an adapter by name.
func namedAdapter(_ string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
