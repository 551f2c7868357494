//go:build !unix && !windows

package platform

import (
	"fmt"
	"runtime"
)

func lockOwner() (string, error) {
	return "", fmt.Errorf("%w on %s", ErrEndpointLockUnsupported, runtime.GOOS)
}

func acquireEndpointLock(lockName) (EndpointLock, error) {
	return nil, fmt.Errorf("%w on %s", ErrEndpointLockUnsupported, runtime.GOOS)
}
