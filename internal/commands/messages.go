package commands

import (
	"fmt"
	"time"
)

// HeartbeatCommand keeps the session alive and marks its start and end.
type HeartbeatCommand struct {
	Mode     HeartbeatMode
	Interval time.Duration
	// Timestamp is optional; zero means the peer did not send one.
	Timestamp time.Time
}

func (HeartbeatCommand) CommandType() CommandType { return TypeHeartbeat }

func (c HeartbeatCommand) String() string {
	return fmt.Sprintf("Heartbeat{mode=%s interval=%s}", c.Mode, c.Interval)
}

// NewJoinerCommand announces a peer's identity. The remote sends one when a
// connection is established; the client answers with its own.
type NewJoinerCommand struct {
	Name       string
	UUID       string
	APIVersion int
	Platform   ApiPlatform
}

func (NewJoinerCommand) CommandType() CommandType { return TypeJoin }

func (c NewJoinerCommand) String() string {
	return fmt.Sprintf("NewJoiner{name=%q uuid=%s api=%d platform=%s}", c.Name, c.UUID, c.APIVersion, c.Platform)
}

// PairingCommand asks the remote to trust this client.
type PairingCommand struct {
	UUID string
	Name string
}

func (PairingCommand) CommandType() CommandType { return TypePairing }

func (c PairingCommand) String() string {
	return fmt.Sprintf("Pairing{name=%q uuid=%s}", c.Name, c.UUID)
}

// AcknowledgementCommand reports the outcome of an earlier request.
type AcknowledgementCommand struct {
	Correlation CorrelationID
	Status      AckStatus
}

func (AcknowledgementCommand) CommandType() CommandType { return TypeAcknowledgement }

func (c AcknowledgementCommand) String() string {
	return fmt.Sprintf("Ack{correlation=%s status=%s}", c.Correlation, c.Status)
}

// DialogCommand shows, hides or answers a dialog.
type DialogCommand struct {
	Mode        DialogMode
	Header      string
	Message     string
	Button1     ButtonType
	Button2     ButtonType
	Correlation CorrelationID
}

func (DialogCommand) CommandType() CommandType { return TypeDialog }

func (c DialogCommand) String() string {
	return fmt.Sprintf("Dialog{mode=%s header=%q b1=%s b2=%s correlation=%s}", c.Mode, c.Header, c.Button1, c.Button2, c.Correlation)
}

// BootstrapCommand brackets the tree push that follows authentication.
type BootstrapCommand struct {
	Type BootstrapType
}

func (BootstrapCommand) CommandType() CommandType { return TypeBootstrap }

func (c BootstrapCommand) String() string {
	return fmt.Sprintf("Bootstrap{%s}", c.Type)
}

// ChangeCommand carries a value change in either direction. Value is used
// for delta and absolute changes, Values (and optionally Names) for lists.
type ChangeCommand struct {
	MenuID      int
	Correlation CorrelationID
	ChangeType  ChangeType
	Value       string
	Values      []string
	Names       []string
}

func (ChangeCommand) CommandType() CommandType { return TypeChange }

func (c ChangeCommand) String() string {
	if c.ChangeType == ChangeAbsoluteList {
		return fmt.Sprintf("Change{id=%d correlation=%s type=%s values=%q}", c.MenuID, c.Correlation, c.ChangeType, c.Values)
	}

	return fmt.Sprintf("Change{id=%d correlation=%s type=%s value=%q}", c.MenuID, c.Correlation, c.ChangeType, c.Value)
}

// NewDeltaChange builds an incremental change request.
func NewDeltaChange(id int, correlation CorrelationID, delta int) ChangeCommand {
	return ChangeCommand{MenuID: id, Correlation: correlation, ChangeType: ChangeDelta, Value: fmt.Sprintf("%d", delta)}
}

// NewAbsoluteChange builds a replace-the-value change request.
func NewAbsoluteChange(id int, correlation CorrelationID, value string) ChangeCommand {
	return ChangeCommand{MenuID: id, Correlation: correlation, ChangeType: ChangeAbsolute, Value: value}
}

// NewListChange builds a replace-the-list change request.
func NewListChange(id int, correlation CorrelationID, values []string) ChangeCommand {
	return ChangeCommand{MenuID: id, Correlation: correlation, ChangeType: ChangeAbsoluteList, Values: append([]string(nil), values...)}
}
