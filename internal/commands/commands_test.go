package commands

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skobkin/menulink/internal/clock"
	"github.com/skobkin/menulink/internal/menu"
)

func TestMakeCommandTypePacksHighByteFirst(t *testing.T) {
	ct := MakeCommandType('N', 'J')
	if uint16(ct) != 0x4E4A {
		t.Fatalf("unexpected packing: %#04x", uint16(ct))
	}
	if ct.String() != "NJ" {
		t.Fatalf("unexpected string: %q", ct.String())
	}
}

func TestCorrelationIDsIncreaseForFixedClock(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(1_700_000_123_456))
	gen := NewCorrelationGenerator(clk)

	prev := gen.Next()
	for i := 0; i < 50; i++ {
		next := gen.Next()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestCorrelationIDReproducibleAfterReset(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(1_700_000_123_456))
	gen := NewCorrelationGenerator(clk)

	first := gen.Next()
	_ = gen.Next()
	gen.Reset()

	if again := gen.Next(); again != first {
		t.Fatalf("expected %s after reset, got %s", first, again)
	}
}

func TestCorrelationIDHexRoundTrip(t *testing.T) {
	id := CorrelationID(0x1a2b3c)
	parsed, err := ParseCorrelationID(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, id)
	}
	if _, err := ParseCorrelationID("zz"); err == nil {
		t.Fatalf("expected error for non-hex input")
	}
}

func TestAckStatusIsError(t *testing.T) {
	if AckSuccess.IsError() || AckValueRangeWarning.IsError() {
		t.Fatalf("success and warning must not be errors")
	}
	if !AckIDNotFound.IsError() || !AckInvalidCredentials.IsError() {
		t.Fatalf("not found and invalid credentials must be errors")
	}
}

func TestBootCommandNextStateCarriesActiveAndDetectsChange(t *testing.T) {
	item := menu.AnalogMenuItem{ItemInfo: menu.ItemInfo{ID: 5, Name: "Volume"}, MaxValue: 255, Divisor: 1}
	prev := menu.NewMenuState[int](item, 40, false, true)

	next := AnalogBootCommand{SubMenuID: menu.RootID, Item: item, Value: 42}.NextState(prev)
	if !next.Changed() {
		t.Fatalf("expected changed state")
	}
	if !next.Active() {
		t.Fatalf("expected active flag to carry over")
	}
	if v, ok := menu.ValueAs[int](next); !ok || v != 42 {
		t.Fatalf("unexpected value: %v ok=%v", next.AnyValue(), ok)
	}

	same := AnalogBootCommand{Item: item, Value: 40}.NextState(prev)
	if same.Changed() {
		t.Fatalf("equal value must not be changed")
	}
}

func TestLargeNumberBootUsesDecimalEquality(t *testing.T) {
	item := menu.LargeNumberMenuItem{ItemInfo: menu.ItemInfo{ID: 9}, DecimalPlaces: 2, DigitsAllowed: 8}
	prev := menu.NewMenuState(menu.MenuItem(item), decimal.RequireFromString("12.5"), false, false)

	next := LargeNumberBootCommand{Item: item, Value: decimal.RequireFromString("12.50")}.NextState(prev)
	if next.Changed() {
		t.Fatalf("12.5 and 12.50 must compare equal")
	}
}

func TestRuntimeListBootComparesRows(t *testing.T) {
	item := menu.RuntimeListMenuItem{ItemInfo: menu.ItemInfo{ID: 3}, InitialRows: 2}
	prev := menu.NewMenuState[[]string](item, []string{"a", "b"}, false, false)

	if next := (RuntimeListBootCommand{Item: item, Values: []string{"a", "b"}}).NextState(prev); next.Changed() {
		t.Fatalf("identical rows must not be changed")
	}
	if next := (RuntimeListBootCommand{Item: item, Values: []string{"a", "c"}}).NextState(prev); !next.Changed() {
		t.Fatalf("different rows must be changed")
	}
}
