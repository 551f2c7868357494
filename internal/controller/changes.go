package controller

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skobkin/menulink/internal/commands"
	"github.com/skobkin/menulink/internal/menu"
)

var errChangeUnsupported = errors.New("change not supported for item")

// nextStateForChange derives the state produced by applying cmd to item.
// Delta changes add to the previous value, absolute changes replace it and
// list changes replace the whole list.
func nextStateForChange(item menu.MenuItem, prev menu.State, cmd commands.ChangeCommand) (menu.State, error) {
	switch it := item.(type) {
	case menu.AnalogMenuItem:
		v, err := intChange(prev, cmd)
		if err != nil {
			return nil, err
		}
		if it.MaxValue > 0 {
			v = clamp(v, 0, it.MaxValue)
		}
		return menu.NextState(item, v, prev, eq[int]), nil
	case menu.EnumMenuItem:
		v, err := intChange(prev, cmd)
		if err != nil {
			return nil, err
		}
		if len(it.Entries) > 0 {
			v = clamp(v, 0, len(it.Entries)-1)
		}
		return menu.NextState(item, v, prev, eq[int]), nil
	case menu.BooleanMenuItem:
		v, err := boolChange(prev, cmd)
		if err != nil {
			return nil, err
		}
		return menu.NextState(item, v, prev, eq[bool]), nil
	case menu.ActionMenuItem:
		return menu.NextState(item, false, prev, eq[bool]), nil
	case menu.EditableTextMenuItem:
		if err := requireKind(cmd, commands.ChangeAbsolute); err != nil {
			return nil, err
		}
		return menu.NextState(item, cmd.Value, prev, eq[string]), nil
	case menu.LargeNumberMenuItem:
		v, err := decimalChange(prev, cmd)
		if err != nil {
			return nil, err
		}
		return menu.NextState(item, v.Round(int32(it.DecimalPlaces)), prev, decimal.Decimal.Equal), nil
	case menu.FloatMenuItem:
		if err := requireKind(cmd, commands.ChangeAbsolute); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cmd.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", cmd.Value, err)
		}
		return menu.NextState(item, v, prev, eq[float64]), nil
	case menu.Rgb32MenuItem:
		if err := requireKind(cmd, commands.ChangeAbsolute); err != nil {
			return nil, err
		}
		v, err := menu.ParsePortableColor(cmd.Value)
		if err != nil {
			return nil, err
		}
		return menu.NextState(item, v, prev, eq[menu.PortableColor]), nil
	case menu.ScrollChoiceMenuItem:
		v, err := scrollChange(it, prev, cmd)
		if err != nil {
			return nil, err
		}
		return menu.NextState(item, v, prev, eq[menu.ScrollPosition]), nil
	case menu.RuntimeListMenuItem:
		if err := requireKind(cmd, commands.ChangeAbsoluteList); err != nil {
			return nil, err
		}
		return menu.NextState(item, append([]string(nil), cmd.Values...), prev, slices.Equal[[]string, string]), nil
	default:
		return nil, fmt.Errorf("%w: %s", errChangeUnsupported, item.Kind())
	}
}

func requireKind(cmd commands.ChangeCommand, want commands.ChangeType) error {
	if cmd.ChangeType != want {
		return fmt.Errorf("%w: %s change", errChangeUnsupported, cmd.ChangeType)
	}

	return nil
}

func intChange(prev menu.State, cmd commands.ChangeCommand) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(cmd.Value))
	if err != nil {
		return 0, fmt.Errorf("parse integer %q: %w", cmd.Value, err)
	}
	switch cmd.ChangeType {
	case commands.ChangeDelta:
		old, _ := menu.ValueAs[int](prev)
		return old + v, nil
	case commands.ChangeAbsolute:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s change", errChangeUnsupported, cmd.ChangeType)
	}
}

func boolChange(prev menu.State, cmd commands.ChangeCommand) (bool, error) {
	switch cmd.ChangeType {
	case commands.ChangeAbsolute:
		return parseBool(cmd.Value)
	case commands.ChangeDelta:
		// Any non-zero step flips the value.
		step, err := strconv.Atoi(strings.TrimSpace(cmd.Value))
		if err != nil {
			return false, fmt.Errorf("parse integer %q: %w", cmd.Value, err)
		}
		old, _ := menu.ValueAs[bool](prev)
		if step == 0 {
			return old, nil
		}
		return !old, nil
	default:
		return false, fmt.Errorf("%w: %s change", errChangeUnsupported, cmd.ChangeType)
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	default:
		return false, fmt.Errorf("parse boolean %q", raw)
	}
}

func decimalChange(prev menu.State, cmd commands.ChangeCommand) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(cmd.Value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", cmd.Value, err)
	}
	switch cmd.ChangeType {
	case commands.ChangeDelta:
		old, _ := menu.ValueAs[decimal.Decimal](prev)
		return old.Add(v), nil
	case commands.ChangeAbsolute:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s change", errChangeUnsupported, cmd.ChangeType)
	}
}

func scrollChange(item menu.ScrollChoiceMenuItem, prev menu.State, cmd commands.ChangeCommand) (menu.ScrollPosition, error) {
	switch cmd.ChangeType {
	case commands.ChangeAbsolute:
		return menu.ParseScrollPosition(cmd.Value)
	case commands.ChangeDelta:
		step, err := strconv.Atoi(strings.TrimSpace(cmd.Value))
		if err != nil {
			return menu.ScrollPosition{}, fmt.Errorf("parse integer %q: %w", cmd.Value, err)
		}
		old, _ := menu.ValueAs[menu.ScrollPosition](prev)
		pos := old.Position + step
		if item.NumEntries > 0 {
			pos = clamp(pos, 0, item.NumEntries-1)
		}
		// The text for the new row is only known to the remote.
		return menu.ScrollPosition{Position: pos}, nil
	default:
		return menu.ScrollPosition{}, fmt.Errorf("%w: %s change", errChangeUnsupported, cmd.ChangeType)
	}
}

func eq[T comparable](a, b T) bool { return a == b }

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
