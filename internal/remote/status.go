package remote

import "fmt"

// Status is the connection lifecycle stage.
type Status int

const (
	StatusNotStarted Status = iota
	StatusAwaitingConnection
	StatusEstablished
	StatusSendAuth
	StatusAuthenticated
	StatusBootstrapping
	StatusConnectionReady
	StatusFailedAuth
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NOT_STARTED"
	case StatusAwaitingConnection:
		return "AWAITING_CONNECTION"
	case StatusEstablished:
		return "ESTABLISHED"
	case StatusSendAuth:
		return "SEND_AUTH"
	case StatusAuthenticated:
		return "AUTHENTICATED"
	case StatusBootstrapping:
		return "BOOTSTRAPPING"
	case StatusConnectionReady:
		return "CONNECTION_READY"
	case StatusFailedAuth:
		return "FAILED_AUTHENTICATION"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// live reports stages where a session with the remote is in progress.
func (s Status) live() bool {
	switch s {
	case StatusEstablished, StatusSendAuth, StatusAuthenticated, StatusBootstrapping, StatusConnectionReady:
		return true
	default:
		return false
	}
}
