package rental_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/memoryengine"
	"github.com/mhartlev/lending-ledger-go/rental"
)

func setupLedger(t *testing.T, totalCopies int) (*memoryengine.LedgerStore, int64, int64) {
	t.Helper()

	store := memoryengine.NewLedgerStore()

	item, err := ledger.BuildItem("The Go Programming Language", "Donovan, Kernighan", "978-0134190440", "Tech", totalCopies)
	require.NoError(t, err)

	itemID, err := store.InsertItem(context.Background(), item)
	require.NoError(t, err)

	borrowerID, err := store.InsertBorrower(context.Background(), ledger.Borrower{Name: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	return store, itemID, borrowerID
}

func Test_Borrow_CreatesOpenLoan_AndDecrementsAvailability(t *testing.T) {
	// arrange
	store, itemID, borrowerID := setupLedger(t, 2)
	engine := rental.NewEngine(store)

	// act
	loanID, err := engine.Borrow(context.Background(), itemID, borrowerID)

	// assert
	require.NoError(t, err)

	loan, err := store.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	assert.True(t, loan.Open())

	item, err := store.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.AvailableCopies)
}

func Test_Borrow_ReportsOutOfStock_WhenNoCopyIsAvailable(t *testing.T) {
	// arrange
	store, itemID, borrowerID := setupLedger(t, 1)
	engine := rental.NewEngine(store)

	_, err := engine.Borrow(context.Background(), itemID, borrowerID)
	require.NoError(t, err)

	// act
	_, err = engine.Borrow(context.Background(), itemID, borrowerID)

	// assert
	require.ErrorIs(t, err, rental.ErrOutOfStock)
}

func Test_Borrow_ReportsNotFound_ForUnknownItemOrBorrower(t *testing.T) {
	// arrange
	store, itemID, borrowerID := setupLedger(t, 1)
	engine := rental.NewEngine(store)

	// act + assert
	_, err := engine.Borrow(context.Background(), 999, borrowerID)
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)

	_, err = engine.Borrow(context.Background(), itemID, 999)
	assert.ErrorIs(t, err, ledger.ErrBorrowerNotFound)
}

func Test_Return_ClosesLoan_AndRestoresAvailability(t *testing.T) {
	// arrange
	store, itemID, borrowerID := setupLedger(t, 1)
	engine := rental.NewEngine(store)

	loanID, err := engine.Borrow(context.Background(), itemID, borrowerID)
	require.NoError(t, err)

	// act
	err = engine.Return(context.Background(), itemID, borrowerID)

	// assert
	require.NoError(t, err)

	loan, err := store.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	assert.False(t, loan.Open())

	item, err := store.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.AvailableCopies)
}

func Test_Return_ReportsNoActiveLoan_OnDoubleReturn(t *testing.T) {
	// arrange
	store, itemID, borrowerID := setupLedger(t, 1)
	engine := rental.NewEngine(store)

	_, err := engine.Borrow(context.Background(), itemID, borrowerID)
	require.NoError(t, err)

	require.NoError(t, engine.Return(context.Background(), itemID, borrowerID))

	// act
	err = engine.Return(context.Background(), itemID, borrowerID)

	// assert
	require.ErrorIs(t, err, rental.ErrNoActiveLoan)

	item, getErr := store.GetItem(context.Background(), itemID)
	require.NoError(t, getErr)
	assert.Equal(t, 1, item.AvailableCopies, "a rejected return must not change availability")
}

func Test_Return_ReportsNoActiveLoan_WithoutAnyBorrow(t *testing.T) {
	// arrange
	store, itemID, borrowerID := setupLedger(t, 1)
	engine := rental.NewEngine(store)

	// act
	err := engine.Return(context.Background(), itemID, borrowerID)

	// assert
	require.ErrorIs(t, err, rental.ErrNoActiveLoan)
}

func Test_ConcurrentBorrows_GrantExactlyTheAvailableCopies(t *testing.T) {
	// arrange
	const totalCopies = 3
	const concurrentBorrowers = 12

	store, itemID, _ := setupLedger(t, totalCopies)

	borrowerIDs := make([]int64, concurrentBorrowers)
	for i := range borrowerIDs {
		id, err := store.InsertBorrower(context.Background(), ledger.Borrower{Name: "reader", Email: "reader@example.com"})
		require.NoError(t, err)
		borrowerIDs[i] = id
	}

	// a generous retry budget so contention resolves instead of surfacing
	engine := rental.NewEngine(store, rental.WithRetryOptions(
		rental.WithMaxAttempts(100),
		rental.WithBaseDelay(time.Microsecond),
	))

	// act
	var wg sync.WaitGroup
	results := make([]error, concurrentBorrowers)

	for i := 0; i < concurrentBorrowers; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()
			_, results[i] = engine.Borrow(context.Background(), itemID, borrowerIDs[i])
		}()
	}

	wg.Wait()

	// assert
	successes := 0
	outOfStock := 0

	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, rental.ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected borrow outcome: %v", err)
		}
	}

	assert.Equal(t, totalCopies, successes, "exactly one borrow per available copy must succeed")
	assert.Equal(t, concurrentBorrowers-totalCopies, outOfStock)

	item, err := store.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, 0, item.AvailableCopies)

	openLoans, err := store.CountOpenLoans(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, totalCopies, openLoans, "total must equal available plus open loans")
}

func Test_SingleCopy_BorrowReturnBorrow_Lifecycle(t *testing.T) {
	// arrange
	store, itemID, aliceID := setupLedger(t, 1)

	bobID, err := store.InsertBorrower(context.Background(), ledger.Borrower{Name: "bob", Email: "bob@example.com"})
	require.NoError(t, err)

	engine := rental.NewEngine(store)

	// alice takes the only copy
	_, err = engine.Borrow(context.Background(), itemID, aliceID)
	require.NoError(t, err)

	// bob is rejected while the copy is out
	_, err = engine.Borrow(context.Background(), itemID, bobID)
	require.ErrorIs(t, err, rental.ErrOutOfStock)

	// alice returns, bob can borrow now
	require.NoError(t, engine.Return(context.Background(), itemID, aliceID))

	_, err = engine.Borrow(context.Background(), itemID, bobID)
	require.NoError(t, err)

	// bob cannot return for alice
	err = engine.Return(context.Background(), itemID, aliceID)
	require.ErrorIs(t, err, rental.ErrNoActiveLoan)
}

// conflictedLedger wraps the in-memory store and makes every CreateLoan
// attempt lose the conditional write.
type conflictedLedger struct {
	*memoryengine.LedgerStore
	attempts int
}

func (l *conflictedLedger) CreateLoan(context.Context, ledger.Item, int64, time.Time) (int64, error) {
	l.attempts++

	return 0, ledger.ErrConcurrencyConflict
}

func Test_Borrow_ReportsResourceContention_WhenRetriesAreExhausted(t *testing.T) {
	// arrange
	store, itemID, borrowerID := setupLedger(t, 5)
	conflicted := &conflictedLedger{LedgerStore: store}

	engine := rental.NewEngine(conflicted, rental.WithRetryOptions(
		rental.WithMaxAttempts(3),
		rental.WithBaseDelay(time.Microsecond),
	))

	// act
	_, err := engine.Borrow(context.Background(), itemID, borrowerID)

	// assert
	require.ErrorIs(t, err, rental.ErrResourceContention)
	assert.Equal(t, 3, conflicted.attempts, "every attempt in the budget must be used before giving up")
}
