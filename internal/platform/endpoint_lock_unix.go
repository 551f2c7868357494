//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

type unixEndpointLock struct {
	file *os.File
}

func lockOwner() (string, error) {
	return strconv.Itoa(os.Getuid()), nil
}

func acquireEndpointLock(name lockName) (EndpointLock, error) {
	lockPath, err := unixEndpointLockPath(name)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- lockPath is built from process-owned runtime/temp directories.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open endpoint lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrEndpointBusy
		}

		return nil, fmt.Errorf("lock endpoint: %w", err)
	}

	return &unixEndpointLock{file: file}, nil
}

func (l *unixEndpointLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, syscall.EBADF) {
		return fmt.Errorf("unlock endpoint: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close endpoint lock file: %w", closeErr)
	}

	return nil
}

// unixEndpointLockPath prefers XDG_RUNTIME_DIR, which is already per user,
// and falls back to a per-owner directory in the temp dir.
func unixEndpointLockPath(name lockName) (string, error) {
	lockDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if lockDir != "" {
		lockDir = filepath.Join(lockDir, name.app)
	} else {
		lockDir = filepath.Join(os.TempDir(), name.app+"-"+name.owner)
	}

	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		return "", fmt.Errorf("create endpoint lock dir: %w", err)
	}

	return filepath.Join(lockDir, name.endpoint+".lock"), nil
}
