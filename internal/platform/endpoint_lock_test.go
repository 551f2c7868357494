package platform

import "testing"

func TestNormalizeLockComponent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback string
		want     string
	}{
		{name: "keeps safe runes", raw: "menulink-v1.2_3", fallback: "app", want: "menulink-v1.2_3"},
		{name: "serial device", raw: "serial:/dev/ttyACM0", fallback: "x", want: "serial__dev_ttyACM0"},
		{name: "ble address", raw: "bluetooth:AA:BB:CC", fallback: "x", want: "bluetooth_AA_BB_CC"},
		{name: "trims edges", raw: ".._menulink-._", fallback: "app", want: "menulink"},
		{name: "blank", raw: "   ", fallback: "fallback", want: "fallback"},
		{name: "nothing usable", raw: "[]{}", fallback: "fallback", want: "fallback"},
	}

	for _, tc := range tests {
		if got := normalizeLockComponent(tc.raw, tc.fallback); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestLockNameIncludesOwner(t *testing.T) {
	name := lockName{app: "menulink", endpoint: "serial__dev_ttyACM0", owner: "S-1-5-21-1"}
	if got, want := name.String(), "menulink-endpoint-serial__dev_ttyACM0-S-1-5-21-1"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	other := name
	other.owner = "S-1-5-21-2"
	if other.String() == name.String() {
		t.Fatalf("different owners must not share a lock name")
	}
}
