package rental

import (
	"errors"
)

// Business rejections. These are final answers, never retried.
var (
	// ErrOutOfStock is returned by Borrow when no copy of the item is
	// currently available.
	ErrOutOfStock = errors.New("no copies of this item are available")

	// ErrNoActiveLoan is returned by Return when the borrower has no open
	// loan for the item.
	ErrNoActiveLoan = errors.New("no active loan for this item and borrower")

	// ErrResourceContention is returned when an operation kept colliding
	// with concurrent writers and exhausted its retry budget. The ledger is
	// consistent; the caller may simply try again.
	ErrResourceContention = errors.New("operation failed due to persistent contention, try again")
)
