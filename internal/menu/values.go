package menu

import (
	"fmt"
	"strconv"
	"strings"
)

// PortableColor is an RGBA color as carried on the wire.
type PortableColor struct {
	Red   uint8
	Green uint8
	Blue  uint8
	Alpha uint8
}

// String renders the color as #RRGGBBAA.
func (c PortableColor) String() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.Red, c.Green, c.Blue, c.Alpha)
}

// ParsePortableColor accepts #RRGGBB or #RRGGBBAA; a missing alpha is opaque.
func ParsePortableColor(raw string) (PortableColor, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(s) != 6 && len(s) != 8 {
		return PortableColor{}, fmt.Errorf("invalid color %q", raw)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return PortableColor{}, fmt.Errorf("invalid color %q: %w", raw, err)
	}
	if len(s) == 6 {
		v = v<<8 | 0xFF
	}

	return PortableColor{
		Red:   uint8(v >> 24),
		Green: uint8(v >> 16),
		Blue:  uint8(v >> 8),
		Alpha: uint8(v),
	}, nil
}

// ScrollPosition is the current row of a scroll choice and its text.
type ScrollPosition struct {
	Position int
	Value    string
}

func (p ScrollPosition) String() string {
	return strconv.Itoa(p.Position) + "-" + p.Value
}

// ParseScrollPosition parses the "position-text" form. Text may itself
// contain dashes; only the first one separates.
func ParseScrollPosition(raw string) (ScrollPosition, error) {
	posText, value, found := strings.Cut(raw, "-")
	pos, err := strconv.Atoi(strings.TrimSpace(posText))
	if err != nil {
		return ScrollPosition{}, fmt.Errorf("invalid scroll position %q: %w", raw, err)
	}
	if !found {
		value = ""
	}

	return ScrollPosition{Position: pos, Value: value}, nil
}
