package bluetoothutil

import (
	"errors"
	"runtime"
	"strings"

	"github.com/godbus/dbus/v5"
)

// ErrorClass groups adapter errors by what the caller should do about them.
type ErrorClass int

const (
	ErrorNone ErrorClass = iota
	ErrorOther
	// ErrorHarmlessStop: stopping a scan that was not running.
	ErrorHarmlessStop
	// ErrorScanBusy: another scan already owns the adapter.
	ErrorScanBusy
	// ErrorDeviceUnknown: BlueZ has not seen the device this session; a
	// scan makes it connectable.
	ErrorDeviceUnknown
)

const (
	bluezNotReady      = "org.bluez.Error.NotReady"
	bluezFailed        = "org.bluez.Error.Failed"
	bluezInProgress    = "org.bluez.Error.InProgress"
	dbusUnknownMethod  = "org.freedesktop.DBus.Error.UnknownMethod"
	dbusUnknownObject  = "org.freedesktop.DBus.Error.UnknownObject"
	propertiesGetProbe = "org.freedesktop.dbus.properties"
)

// DBusName returns the D-Bus error name carried by err, if any.
func DBusName(err error) string {
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name
	}
	var val dbus.Error
	if errors.As(err, &val) {
		return val.Name
	}

	return ""
}

// Classify maps an adapter error onto an ErrorClass. D-Bus names win;
// message text is the fallback for backends that do not use D-Bus.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorNone
	}
	name := DBusName(err)
	msg := strings.ToLower(err.Error())

	switch name {
	case bluezNotReady:
		return ErrorHarmlessStop
	case bluezFailed:
		if strings.Contains(msg, "no discovery started") {
			return ErrorHarmlessStop
		}
	case bluezInProgress:
		return ErrorScanBusy
	case dbusUnknownMethod, dbusUnknownObject:
		if runtime.GOOS == "linux" && strings.Contains(msg, propertiesGetProbe) {
			return ErrorDeviceUnknown
		}
	}

	switch {
	case strings.Contains(msg, "already in progress"):
		return ErrorScanBusy
	case strings.Contains(msg, "cancel"),
		strings.Contains(msg, "stopped"),
		strings.Contains(msg, "not scanning"),
		strings.Contains(msg, "no scan in progress"):
		return ErrorHarmlessStop
	case runtime.GOOS == "linux" && strings.Contains(msg, propertiesGetProbe) && strings.Contains(msg, "doesn't exist"):
		return ErrorDeviceUnknown
	}

	return ErrorOther
}
