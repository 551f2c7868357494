package menu

import (
	"fmt"
	"reflect"
)

// RootID is the id of the sentinel root submenu.
const RootID = 0

// ItemInfo holds the fields every control definition shares.
type ItemInfo struct {
	ID            int
	Name          string
	VariableName  string
	FunctionName  string
	EepromAddress int
	ReadOnly      bool
	LocalOnly     bool
	Visible       bool
}

// Base returns the shared definition fields.
func (i ItemInfo) Base() ItemInfo {
	return i
}

// MenuItem is an immutable definition of one remote-exposed control.
type MenuItem interface {
	Base() ItemInfo
	Kind() ItemKind
}

// ItemKind names a MenuItem variant.
type ItemKind string

const (
	KindAnalog       ItemKind = "analog"
	KindBoolean      ItemKind = "boolean"
	KindEnum         ItemKind = "enum"
	KindAction       ItemKind = "action"
	KindSubMenu      ItemKind = "submenu"
	KindEditableText ItemKind = "text"
	KindLargeNumber  ItemKind = "large_number"
	KindFloat        ItemKind = "float"
	KindRgb          ItemKind = "rgb"
	KindScrollChoice ItemKind = "scroll_choice"
	KindRuntimeList  ItemKind = "runtime_list"
)

type AnalogMenuItem struct {
	ItemInfo
	MaxValue int
	Offset   int
	Divisor  int
	Step     int
	UnitName string
}

func (AnalogMenuItem) Kind() ItemKind { return KindAnalog }

// BooleanNaming selects how a boolean is presented.
type BooleanNaming int

const (
	NamingTrueFalse BooleanNaming = iota
	NamingOnOff
	NamingYesNo
	NamingCheckbox
)

type BooleanMenuItem struct {
	ItemInfo
	Naming BooleanNaming
}

func (BooleanMenuItem) Kind() ItemKind { return KindBoolean }

type EnumMenuItem struct {
	ItemInfo
	Entries []string
}

func (EnumMenuItem) Kind() ItemKind { return KindEnum }

type ActionMenuItem struct {
	ItemInfo
}

func (ActionMenuItem) Kind() ItemKind { return KindAction }

type SubMenuItem struct {
	ItemInfo
	Secured bool
}

func (SubMenuItem) Kind() ItemKind { return KindSubMenu }

// EditItemType is the edit mode of an EditableTextMenuItem.
type EditItemType int

const (
	EditPlainText EditItemType = iota
	EditIPAddress
	EditTime24Hour
	EditTime12Hour
	EditTime24Hundreds
	EditGregorianDate
	EditTimeDuration
	EditTimeDurationHundreds
	EditTime24HourHHMM
	EditTime12HourHHMM
)

type EditableTextMenuItem struct {
	ItemInfo
	TextLength int
	EditType   EditItemType
}

func (EditableTextMenuItem) Kind() ItemKind { return KindEditableText }

type LargeNumberMenuItem struct {
	ItemInfo
	DecimalPlaces   int
	DigitsAllowed   int
	NegativeAllowed bool
}

func (LargeNumberMenuItem) Kind() ItemKind { return KindLargeNumber }

type FloatMenuItem struct {
	ItemInfo
	DecimalPlaces int
}

func (FloatMenuItem) Kind() ItemKind { return KindFloat }

type Rgb32MenuItem struct {
	ItemInfo
	IncludeAlpha bool
}

func (Rgb32MenuItem) Kind() ItemKind { return KindRgb }

// ScrollChoiceMode says where a scroll choice reads its entries from.
type ScrollChoiceMode int

const (
	ScrollArrayInEEPROM ScrollChoiceMode = iota
	ScrollArrayInRAM
	ScrollCustomRenderFn
)

type ScrollChoiceMenuItem struct {
	ItemInfo
	ItemWidth    int
	EepromOffset int
	NumEntries   int
	ChoiceMode   ScrollChoiceMode
}

func (ScrollChoiceMenuItem) Kind() ItemKind { return KindScrollChoice }

type RuntimeListMenuItem struct {
	ItemInfo
	InitialRows int
}

func (RuntimeListMenuItem) Kind() ItemKind { return KindRuntimeList }

// Root returns the sentinel root submenu.
func Root() SubMenuItem {
	return SubMenuItem{ItemInfo: ItemInfo{ID: RootID, Name: "ROOT", Visible: true}}
}

// Equal compares two definitions field by field.
func Equal(a, b MenuItem) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return reflect.DeepEqual(canonical(a), canonical(b))
}

// canonical folds a nil entry list into an empty one; the wire encodes both
// the same way.
func canonical(item MenuItem) MenuItem {
	if e, ok := item.(EnumMenuItem); ok && e.Entries == nil {
		e.Entries = []string{}
		return e
	}

	return item
}

// Describe renders an item for logs.
func Describe(item MenuItem) string {
	if item == nil {
		return "<nil>"
	}
	base := item.Base()

	return fmt.Sprintf("%s[%d %q]", item.Kind(), base.ID, base.Name)
}
