package journal

import "time"

// Kind classifies a journal entry.
type Kind string

const (
	KindValue  Kind = "value"
	KindAck    Kind = "ack"
	KindStatus Kind = "status"
	KindSend   Kind = "send"
)

// Entry is one recorded event. MenuID is -1 for entries not tied to an item.
type Entry struct {
	ID          int64
	At          time.Time
	Kind        Kind
	MenuID      int
	Value       string
	Correlation string
	Status      string
	Source      string
	Detail      string
}

// Query filters History. Empty filters match everything; Limit defaults
// to DefaultHistoryLimit.
type Query struct {
	MenuIDs []int
	Kinds   []Kind
	Since   time.Time
	Limit   int
}

const DefaultHistoryLimit = 100
