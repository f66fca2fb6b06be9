package ledger

import (
	"time"
)

// Loan is one borrow-to-return lifecycle for one item/borrower pair.
//
// A loan is open while ReturnedAt is nil. The rental engine owns the
// lifecycle fields (creation and ReturnedAt); the overdue scheduler is the
// sole writer of the Overdue flag. Loans are historical records and are
// never deleted.
type Loan struct {
	ID         int64
	ItemID     int64
	BorrowerID int64
	StartedAt  time.Time
	ReturnedAt *time.Time
	Overdue    bool
	Version    uint64
}

// Open reports whether the loan has not been returned yet.
func (l Loan) Open() bool {
	return l.ReturnedAt == nil
}

// OverdueLoan is a loan joined with the borrower and item attributes the
// overdue scheduler needs to dispatch a notification.
type OverdueLoan struct {
	Loan
	BorrowerName  string
	BorrowerEmail string
	ItemTitle     string
}

// HistoryEntry is one row of rental history, joined with the item title and
// borrower name for display.
type HistoryEntry struct {
	LoanID       int64
	ItemID       int64
	ItemTitle    string
	BorrowerID   int64
	BorrowerName string
	StartedAt    time.Time
	ReturnedAt   *time.Time
	Overdue      bool
}

// ItemStatistics aggregates loan counts per item for the popularity and
// overdue read models.
type ItemStatistics struct {
	ItemID    int64
	Title     string
	Author    string
	LoanCount int
}
