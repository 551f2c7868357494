package bluetoothutil

import "testing"

func TestUARTUUIDsAreDistinct(t *testing.T) {
	service := UARTServiceUUID()
	rx := UARTRxUUID()
	tx := UARTTxUUID()

	if service == rx || service == tx || rx == tx {
		t.Fatalf("uart UUIDs must be distinct")
	}
}

func TestMustParseUUIDPanicsOnInvalidValue(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for invalid UUID")
		}
	}()
	_ = mustParseUUID("not-a-uuid")
}
