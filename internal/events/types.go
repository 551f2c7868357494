package events

import (
	"time"

	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/menu"
)

// RemoteInfo is what the remote told us about itself when it joined.
type RemoteInfo struct {
	Name       string
	UUID       string
	APIVersion int
	Platform   commands.ApiPlatform
}

// ConnStatus is a bus snapshot of the connector's state.
type ConnStatus struct {
	State         string
	Ready         bool
	Err           string
	TransportName string
	Remote        RemoteInfo
	Timestamp     time.Time
}

// RawFrame carries one frame as it crossed the wire.
type RawFrame struct {
	Hex  string
	Text string
	Len  int
}

// StructureChange is published when a control is added or redefined.
type StructureChange struct {
	ParentID int
	Item     menu.MenuItem
}

// ValueChange is published after a control's state is replaced. Remote is
// false when the change came from a local request.
type ValueChange struct {
	ID     int
	State  menu.State
	Remote bool
}

// Ack is published when the remote acknowledges a request.
type Ack struct {
	Correlation commands.CorrelationID
	Status      commands.AckStatus
	MenuID      int
}

// Dialog mirrors a dialog command from the remote.
type Dialog struct {
	commands.DialogCommand
}

// Bootstrap marks the start and end of a tree push.
type Bootstrap struct {
	Type      commands.BootstrapType
	ItemCount int
}

// SendResult reports whether a locally requested change reached the wire.
// It says nothing about whether the remote accepted it; that arrives as an
// Ack with the same correlation.
type SendResult struct {
	Correlation commands.CorrelationID
	MenuID      int
	Command     string
	Err         string
	Timestamp   time.Time
}
