package bluetoothutil

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Nordic UART service, the de facto serial-over-BLE profile.
var (
	uartServiceUUID = mustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	uartRxUUID      = mustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	uartTxUUID      = mustParseUUID("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

func mustParseUUID(raw string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(strings.TrimSpace(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid bluetooth UUID %q: %v", raw, err))
	}

	return uuid
}

func UARTServiceUUID() bluetooth.UUID {
	return uartServiceUUID
}

// UARTRxUUID is the characteristic the remote receives on; we write to it.
func UARTRxUUID() bluetooth.UUID {
	return uartRxUUID
}

// UARTTxUUID is the characteristic the remote notifies on.
func UARTTxUUID() bluetooth.UUID {
	return uartTxUUID
}
