package commands

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/skobkin/menulink/internal/clock"
)

const (
	correlationMillisRange  = 1_000_000
	correlationCounterRange = 1_000
)

// CorrelationID links an outbound change with its later acknowledgement.
// It is only unique within a window of a few hours.
type CorrelationID uint32

// EmptyCorrelation is used where no acknowledgement is expected.
const EmptyCorrelation CorrelationID = 0

func (c CorrelationID) String() string {
	return fmt.Sprintf("%08x", uint32(c))
}

// ParseCorrelationID reads the hexadecimal text form.
func ParseCorrelationID(raw string) (CorrelationID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 16, 32)
	if err != nil {
		return EmptyCorrelation, fmt.Errorf("parse correlation id %q: %w", raw, err)
	}

	return CorrelationID(v), nil
}

// CorrelationGenerator mints ids from the clock's millisecond reading and
// a rolling counter.
type CorrelationGenerator struct {
	clock clock.Clock

	mu      sync.Mutex
	counter uint32
}

func NewCorrelationGenerator(c clock.Clock) *CorrelationGenerator {
	if c == nil {
		c = clock.System()
	}

	return &CorrelationGenerator{clock: c}
}

func (g *CorrelationGenerator) Next() CorrelationID {
	millis := uint32(g.clock.Now().UnixMilli() % correlationMillisRange)

	g.mu.Lock()
	g.counter = (g.counter + 1) % correlationCounterRange
	counter := g.counter
	g.mu.Unlock()

	return CorrelationID(millis*correlationCounterRange + counter)
}

// Reset restarts the counter.
func (g *CorrelationGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter = 0
}
