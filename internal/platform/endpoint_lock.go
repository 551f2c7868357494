package platform

import (
	"errors"
	"strings"
)

// ErrEndpointBusy means another local process already holds a session to
// the same endpoint.
var ErrEndpointBusy = errors.New("endpoint already in use by another process")

// ErrEndpointLockUnsupported is returned where no lock backend exists.
var ErrEndpointLockUnsupported = errors.New("endpoint lock unsupported")

// EndpointLock is held for as long as a session owns its endpoint.
type EndpointLock interface {
	Release() error
}

// AcquireEndpointLock takes a per-user, per-endpoint lock. The lock is
// dropped by the OS when the process exits.
func AcquireEndpointLock(appID, endpoint string) (EndpointLock, error) {
	owner, err := lockOwner()
	if err != nil {
		return nil, err
	}

	return acquireEndpointLock(lockName{
		app:      normalizeLockComponent(appID, "app"),
		endpoint: normalizeLockComponent(endpoint, "default"),
		owner:    normalizeLockComponent(owner, "user"),
	})
}

// lockName identifies one endpoint for one local user. Every component is
// already normalized.
type lockName struct {
	app      string
	endpoint string
	owner    string
}

func (n lockName) String() string {
	return n.app + "-endpoint-" + n.endpoint + "-" + n.owner
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
