package commands

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/skobkin/menulink/internal/menu"
)

// BootItemCommand is a bootstrap message carrying one control definition,
// its parent submenu and its current value.
type BootItemCommand interface {
	MenuCommand
	ParentSubMenuID() int
	MenuItem() menu.MenuItem
	// NextState derives the state that replaces prev once this command is
	// applied.
	NextState(prev menu.State) menu.State
}

func eq[T comparable](a, b T) bool { return a == b }

func describeBoot(t CommandType, parent int, item menu.MenuItem, value any) string {
	return fmt.Sprintf("%s{parent=%d item=%s value=%v}", t, parent, menu.Describe(item), value)
}

type AnalogBootCommand struct {
	SubMenuID int
	Item      menu.AnalogMenuItem
	Value     int
}

func (AnalogBootCommand) CommandType() CommandType  { return TypeAnalogBoot }
func (c AnalogBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c AnalogBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c AnalogBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, eq[int])
}
func (c AnalogBootCommand) String() string {
	return describeBoot(TypeAnalogBoot, c.SubMenuID, c.Item, c.Value)
}

type BooleanBootCommand struct {
	SubMenuID int
	Item      menu.BooleanMenuItem
	Value     bool
}

func (BooleanBootCommand) CommandType() CommandType  { return TypeBooleanBoot }
func (c BooleanBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c BooleanBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c BooleanBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, eq[bool])
}
func (c BooleanBootCommand) String() string {
	return describeBoot(TypeBooleanBoot, c.SubMenuID, c.Item, c.Value)
}

type EnumBootCommand struct {
	SubMenuID int
	Item      menu.EnumMenuItem
	Value     int
}

func (EnumBootCommand) CommandType() CommandType  { return TypeEnumBoot }
func (c EnumBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c EnumBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c EnumBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, eq[int])
}
func (c EnumBootCommand) String() string {
	return describeBoot(TypeEnumBoot, c.SubMenuID, c.Item, c.Value)
}

// ActionBootCommand carries a stateless trigger; its value is always false.
type ActionBootCommand struct {
	SubMenuID int
	Item      menu.ActionMenuItem
}

func (ActionBootCommand) CommandType() CommandType  { return TypeActionBoot }
func (c ActionBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c ActionBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c ActionBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, false, prev, eq[bool])
}
func (c ActionBootCommand) String() string {
	return describeBoot(TypeActionBoot, c.SubMenuID, c.Item, false)
}

type SubMenuBootCommand struct {
	SubMenuID int
	Item      menu.SubMenuItem
}

func (SubMenuBootCommand) CommandType() CommandType  { return TypeSubMenuBoot }
func (c SubMenuBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c SubMenuBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c SubMenuBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, false, prev, eq[bool])
}
func (c SubMenuBootCommand) String() string {
	return describeBoot(TypeSubMenuBoot, c.SubMenuID, c.Item, false)
}

type TextBootCommand struct {
	SubMenuID int
	Item      menu.EditableTextMenuItem
	Value     string
}

func (TextBootCommand) CommandType() CommandType  { return TypeTextBoot }
func (c TextBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c TextBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c TextBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, eq[string])
}
func (c TextBootCommand) String() string {
	return describeBoot(TypeTextBoot, c.SubMenuID, c.Item, c.Value)
}

type LargeNumberBootCommand struct {
	SubMenuID int
	Item      menu.LargeNumberMenuItem
	Value     decimal.Decimal
}

func (LargeNumberBootCommand) CommandType() CommandType  { return TypeLargeNumberBoot }
func (c LargeNumberBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c LargeNumberBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c LargeNumberBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, decimal.Decimal.Equal)
}
func (c LargeNumberBootCommand) String() string {
	return describeBoot(TypeLargeNumberBoot, c.SubMenuID, c.Item, c.Value)
}

type FloatBootCommand struct {
	SubMenuID int
	Item      menu.FloatMenuItem
	Value     float64
}

func (FloatBootCommand) CommandType() CommandType  { return TypeFloatBoot }
func (c FloatBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c FloatBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c FloatBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, eq[float64])
}
func (c FloatBootCommand) String() string {
	return describeBoot(TypeFloatBoot, c.SubMenuID, c.Item, c.Value)
}

type RgbBootCommand struct {
	SubMenuID int
	Item      menu.Rgb32MenuItem
	Value     menu.PortableColor
}

func (RgbBootCommand) CommandType() CommandType  { return TypeRgbBoot }
func (c RgbBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c RgbBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c RgbBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, eq[menu.PortableColor])
}
func (c RgbBootCommand) String() string {
	return describeBoot(TypeRgbBoot, c.SubMenuID, c.Item, c.Value)
}

type ScrollChoiceBootCommand struct {
	SubMenuID int
	Item      menu.ScrollChoiceMenuItem
	Value     menu.ScrollPosition
}

func (ScrollChoiceBootCommand) CommandType() CommandType  { return TypeScrollChoiceBoot }
func (c ScrollChoiceBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c ScrollChoiceBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c ScrollChoiceBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, c.Value, prev, eq[menu.ScrollPosition])
}
func (c ScrollChoiceBootCommand) String() string {
	return describeBoot(TypeScrollChoiceBoot, c.SubMenuID, c.Item, c.Value)
}

// RuntimeListBootCommand carries list rows. Names is optional and, when
// present, annotates each row.
type RuntimeListBootCommand struct {
	SubMenuID int
	Item      menu.RuntimeListMenuItem
	Values    []string
	Names     []string
}

func (RuntimeListBootCommand) CommandType() CommandType  { return TypeRuntimeListBoot }
func (c RuntimeListBootCommand) ParentSubMenuID() int    { return c.SubMenuID }
func (c RuntimeListBootCommand) MenuItem() menu.MenuItem { return c.Item }
func (c RuntimeListBootCommand) NextState(prev menu.State) menu.State {
	return menu.NextState(c.Item, append([]string(nil), c.Values...), prev, slices.Equal[[]string, string])
}
func (c RuntimeListBootCommand) String() string {
	return describeBoot(TypeRuntimeListBoot, c.SubMenuID, c.Item, c.Values)
}
