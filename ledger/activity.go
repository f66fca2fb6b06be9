package ledger

import (
	"time"
)

// Log types for activity entries.
const (
	ActivityInfo        = "Info"
	ActivityError       = "Error"
	ActivityPerformance = "Performance"
)

// ActivityEntry is one durable audit row: what happened, where, for whom,
// and how long it took. BorrowerID and DurationMS are optional.
type ActivityEntry struct {
	ID         int64
	LogType    string
	Message    string
	LoggedAt   time.Time
	Endpoint   string
	BorrowerID *int64
	DurationMS *int64
}
