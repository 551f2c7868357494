//go:build windows

package platform

import (
	"errors"
	"testing"
)

func TestMutexNameIsSessionLocal(t *testing.T) {
	name := lockName{app: "menulink", endpoint: "ip_10.0.0.5_3333", owner: "S-1-5-21-7"}
	if got, want := mutexName(name), `Local\menulink-endpoint-ip_10.0.0.5_3333-S-1-5-21-7`; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAcquireEndpointLockContention(t *testing.T) {
	first, err := AcquireEndpointLock("menulink-test", "serial:COM7")
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	if _, err := AcquireEndpointLock("menulink-test", "serial:COM7"); !errors.Is(err, ErrEndpointBusy) {
		t.Fatalf("expected ErrEndpointBusy, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second release must be a no-op: %v", err)
	}
	again, err := AcquireEndpointLock("menulink-test", "serial:COM7")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again.Release()
}
