//go:build linux

package bluetoothutil

import "tinygo.org/x/bluetooth"

func namedAdapter(id string) *bluetooth.Adapter {
	return bluetooth.NewAdapter(id)
}
