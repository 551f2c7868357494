//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// lockOwner is the user SID, so sessions of different users on one machine
// do not collide in the Local namespace.
func lockOwner() (string, error) {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("read current user token: %w", err)
	}

	return user.User.Sid.String(), nil
}

func mutexName(name lockName) string {
	return `Local\` + name.String()
}

// mutexLock holds a named mutex handle. Ownership is never taken: the
// handle's existence is the lock, and the kernel drops it with the process.
type mutexLock windows.Handle

func acquireEndpointLock(name lockName) (EndpointLock, error) {
	namePtr, err := windows.UTF16PtrFromString(mutexName(name))
	if err != nil {
		return nil, fmt.Errorf("encode endpoint mutex name: %w", err)
	}

	handle, err := windows.CreateMutex(nil, false, namePtr)
	switch {
	case err == nil:
		lock := mutexLock(handle)
		return &lock, nil
	case handle != 0:
		_ = windows.CloseHandle(handle)
	}
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		return nil, ErrEndpointBusy
	}

	return nil, fmt.Errorf("create endpoint mutex %s: %w", name.endpoint, err)
}

func (l *mutexLock) Release() error {
	if l == nil || *l == 0 {
		return nil
	}
	handle := windows.Handle(*l)
	*l = 0
	if err := windows.CloseHandle(handle); err != nil {
		return fmt.Errorf("close endpoint mutex: %w", err)
	}

	return nil
}
