package commands

import "fmt"

// CommandType identifies a message kind on the wire: two ASCII characters
// packed high byte first.
type CommandType uint16

// MakeCommandType packs two ASCII characters into a CommandType.
func MakeCommandType(hi, lo byte) CommandType {
	return CommandType(uint16(hi)<<8 | uint16(lo))
}

func (t CommandType) String() string {
	return string([]byte{byte(t >> 8), byte(t)})
}

var (
	TypeJoin             = MakeCommandType('N', 'J')
	TypePairing          = MakeCommandType('P', 'R')
	TypeHeartbeat        = MakeCommandType('H', 'B')
	TypeBootstrap        = MakeCommandType('B', 'S')
	TypeAnalogBoot       = MakeCommandType('B', 'A')
	TypeActionBoot       = MakeCommandType('B', 'C')
	TypeSubMenuBoot      = MakeCommandType('B', 'M')
	TypeEnumBoot         = MakeCommandType('B', 'E')
	TypeBooleanBoot      = MakeCommandType('B', 'B')
	TypeTextBoot         = MakeCommandType('B', 'T')
	TypeRuntimeListBoot  = MakeCommandType('B', 'L')
	TypeLargeNumberBoot  = MakeCommandType('B', 'N')
	TypeFloatBoot        = MakeCommandType('B', 'F')
	TypeRgbBoot          = MakeCommandType('B', 'K')
	TypeScrollChoiceBoot = MakeCommandType('B', 'Z')
	TypeChange           = MakeCommandType('V', 'C')
	TypeAcknowledgement  = MakeCommandType('A', 'K')
	TypeDialog           = MakeCommandType('D', 'M')
)

// MenuCommand is one decoded or to-be-encoded protocol message.
type MenuCommand interface {
	CommandType() CommandType
}

// HeartbeatMode distinguishes keep-alives from session start and end.
type HeartbeatMode int

const (
	HeartbeatNormal HeartbeatMode = iota
	HeartbeatStart
	HeartbeatEnd
)

func (m HeartbeatMode) String() string {
	switch m {
	case HeartbeatNormal:
		return "NORMAL"
	case HeartbeatStart:
		return "START"
	case HeartbeatEnd:
		return "END"
	default:
		return fmt.Sprintf("HeartbeatMode(%d)", int(m))
	}
}

// ApiPlatform is the platform a peer reports when joining.
type ApiPlatform int

const (
	PlatformArduino ApiPlatform = iota
	PlatformJavaAPI
	PlatformArduino32
	PlatformDotnet
	PlatformJavascript
	PlatformPython
	PlatformGo
)

func (p ApiPlatform) String() string {
	switch p {
	case PlatformArduino:
		return "ARDUINO"
	case PlatformJavaAPI:
		return "JAVA_API"
	case PlatformArduino32:
		return "ARDUINO32"
	case PlatformDotnet:
		return "DOTNET"
	case PlatformJavascript:
		return "JAVASCRIPT"
	case PlatformPython:
		return "PYTHON"
	case PlatformGo:
		return "GO"
	default:
		return fmt.Sprintf("ApiPlatform(%d)", int(p))
	}
}

// AckStatus is the outcome reported by an acknowledgement.
type AckStatus int

const (
	AckSuccess            AckStatus = 0
	AckValueRangeWarning  AckStatus = 1
	AckIDNotFound         AckStatus = 10000
	AckInvalidCredentials AckStatus = 10001
	AckUnknownError       AckStatus = 10002
)

// IsError reports statuses that mean the request was not applied.
func (s AckStatus) IsError() bool {
	return s >= AckIDNotFound
}

func (s AckStatus) String() string {
	switch s {
	case AckSuccess:
		return "SUCCESS"
	case AckValueRangeWarning:
		return "VALUE_RANGE_WARNING"
	case AckIDNotFound:
		return "ID_NOT_FOUND"
	case AckInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case AckUnknownError:
		return "UNKNOWN_ERROR"
	default:
		return fmt.Sprintf("AckStatus(%d)", int(s))
	}
}

// BootstrapType marks the start or end of the bootstrap phase.
type BootstrapType int

const (
	BootstrapStart BootstrapType = iota
	BootstrapEnd
)

func (b BootstrapType) String() string {
	if b == BootstrapStart {
		return "START"
	}

	return "END"
}

// ChangeType is the kind of value change carried by a ChangeCommand.
type ChangeType int

const (
	ChangeDelta ChangeType = iota
	ChangeAbsolute
	ChangeAbsoluteList
)

func (c ChangeType) String() string {
	switch c {
	case ChangeDelta:
		return "DELTA"
	case ChangeAbsolute:
		return "ABSOLUTE"
	case ChangeAbsoluteList:
		return "LIST"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// DialogMode says whether a dialog is being shown, hidden or acted on.
type DialogMode int

const (
	DialogShow DialogMode = iota
	DialogHide
	DialogAction
)

func (m DialogMode) String() string {
	switch m {
	case DialogShow:
		return "SHOW"
	case DialogHide:
		return "HIDE"
	case DialogAction:
		return "ACTION"
	default:
		return fmt.Sprintf("DialogMode(%d)", int(m))
	}
}

// ButtonType is a dialog button.
type ButtonType int

const (
	ButtonAccept ButtonType = iota
	ButtonCancel
	ButtonOK
	ButtonClose
	ButtonNone
)

func (b ButtonType) String() string {
	switch b {
	case ButtonAccept:
		return "ACCEPT"
	case ButtonCancel:
		return "CANCEL"
	case ButtonOK:
		return "OK"
	case ButtonClose:
		return "CLOSE"
	case ButtonNone:
		return "NONE"
	default:
		return fmt.Sprintf("ButtonType(%d)", int(b))
	}
}
