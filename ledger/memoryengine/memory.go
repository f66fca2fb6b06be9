package memoryengine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

// LedgerStore keeps the whole lending ledger in process memory.
//
// It mirrors the Postgres engine's concurrency contract: item and loan
// mutations are compare-and-swap writes keyed on the row's version token,
// and a stale token reports ledger.ErrConcurrencyConflict. Intended for
// tests and local development, not for durable deployments.
type LedgerStore struct {
	mu sync.RWMutex

	items     map[int64]ledger.Item
	borrowers map[int64]ledger.Borrower
	loans     map[int64]ledger.Loan
	activity  []ledger.ActivityEntry

	nextItemID     int64
	nextBorrowerID int64
	nextLoanID     int64
	nextActivityID int64

	logger ledger.Logger
}

// Option defines a functional option for configuring the LedgerStore.
type Option func(*LedgerStore)

// WithLogger configures a logger for the store. Without it the store is silent.
func WithLogger(logger ledger.Logger) Option {
	return func(store *LedgerStore) {
		store.logger = logger
	}
}

// NewLedgerStore creates an empty in-memory ledger.
func NewLedgerStore(options ...Option) *LedgerStore {
	store := &LedgerStore{
		items:     make(map[int64]ledger.Item),
		borrowers: make(map[int64]ledger.Borrower),
		loans:     make(map[int64]ledger.Loan),
	}

	for _, option := range options {
		option(store)
	}

	return store
}

// InsertItem adds a new catalog item and returns its generated identifier.
// The row starts at version 1.
func (s *LedgerStore) InsertItem(_ context.Context, item ledger.Item) (int64, error) {
	if err := item.ValidateCopyCounts(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextItemID++
	item.ID = s.nextItemID
	item.Version = 1
	s.items[item.ID] = item

	return item.ID, nil
}

// GetItem retrieves a single item including its current version token.
func (s *LedgerStore) GetItem(_ context.Context, itemID int64) (ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, found := s.items[itemID]
	if !found {
		return ledger.Item{}, ledger.ErrItemNotFound
	}

	return item, nil
}

// SearchItems lists items whose title and/or genre match the given terms
// (case-insensitive substring match). Empty terms match everything.
func (s *LedgerStore) SearchItems(_ context.Context, title string, genre string) ([]ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titleTerm := strings.ToLower(title)
	genreTerm := strings.ToLower(genre)

	matches := make([]ledger.Item, 0)

	for _, item := range s.items {
		if titleTerm != "" && !strings.Contains(strings.ToLower(item.Title), titleTerm) {
			continue
		}

		if genreTerm != "" && !strings.Contains(strings.ToLower(item.Genre), genreTerm) {
			continue
		}

		matches = append(matches, item)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Title < matches[j].Title })

	return matches, nil
}

// InsertBorrower registers a new borrower and returns the generated identifier.
func (s *LedgerStore) InsertBorrower(_ context.Context, borrower ledger.Borrower) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBorrowerID++
	borrower.ID = s.nextBorrowerID
	s.borrowers[borrower.ID] = borrower

	return borrower.ID, nil
}

// GetBorrower retrieves a single borrower.
func (s *LedgerStore) GetBorrower(_ context.Context, borrowerID int64) (ledger.Borrower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	borrower, found := s.borrowers[borrowerID]
	if !found {
		return ledger.Borrower{}, ledger.ErrBorrowerNotFound
	}

	return borrower, nil
}

// CreateLoan atomically decrements the item's available copy count and adds
// a new open loan. The decrement is a compare-and-swap on the item's version
// token guarded by availability; a stale token or exhausted availability
// reports ledger.ErrConcurrencyConflict and leaves the ledger untouched.
func (s *LedgerStore) CreateLoan(
	_ context.Context,
	item ledger.Item,
	borrowerID int64,
	startedAt time.Time,
) (int64, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.items[item.ID]
	if !found || current.Version != item.Version || current.AvailableCopies <= 0 {
		return 0, ledger.ErrConcurrencyConflict
	}

	current.AvailableCopies--
	current.Version++
	s.items[current.ID] = current

	s.nextLoanID++
	loan := ledger.Loan{
		ID:         s.nextLoanID,
		ItemID:     item.ID,
		BorrowerID: borrowerID,
		StartedAt:  startedAt,
		Version:    1,
	}
	s.loans[loan.ID] = loan

	return loan.ID, nil
}

// CloseLoan atomically sets the loan's return timestamp and increments the
// item's available copy count. Both compare-and-swaps must succeed or the
// ledger is left untouched.
func (s *LedgerStore) CloseLoan(
	_ context.Context,
	loan ledger.Loan,
	item ledger.Item,
	returnedAt time.Time,
) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	currentLoan, loanFound := s.loans[loan.ID]
	if !loanFound || currentLoan.Version != loan.Version || !currentLoan.Open() {
		return ledger.ErrConcurrencyConflict
	}

	currentItem, itemFound := s.items[item.ID]
	if !itemFound || currentItem.Version != item.Version || currentItem.AvailableCopies >= currentItem.TotalCopies {
		return ledger.ErrConcurrencyConflict
	}

	currentLoan.ReturnedAt = &returnedAt
	currentLoan.Version++
	s.loans[currentLoan.ID] = currentLoan

	currentItem.AvailableCopies++
	currentItem.Version++
	s.items[currentItem.ID] = currentItem

	return nil
}

// MarkLoanOverdue flips the loan's overdue flag with a compare-and-swap on
// the loan's version token, guarded by the loan still being open.
func (s *LedgerStore) MarkLoanOverdue(_ context.Context, loanID int64, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, found := s.loans[loanID]
	if !found || loan.Version != expectedVersion || !loan.Open() {
		return ledger.ErrConcurrencyConflict
	}

	loan.Overdue = true
	loan.Version++
	s.loans[loan.ID] = loan

	return nil
}

// FindOpenLoan retrieves the oldest open loan for the given item/borrower pair.
func (s *LedgerStore) FindOpenLoan(_ context.Context, itemID int64, borrowerID int64) (ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest ledger.Loan
	found := false

	for _, loan := range s.loans {
		if loan.ItemID != itemID || loan.BorrowerID != borrowerID || !loan.Open() {
			continue
		}

		if !found || loan.StartedAt.Before(oldest.StartedAt) {
			oldest = loan
			found = true
		}
	}

	if !found {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}

	return oldest, nil
}

// GetLoan retrieves a single loan.
func (s *LedgerStore) GetLoan(_ context.Context, loanID int64) (ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, found := s.loans[loanID]
	if !found {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}

	return loan, nil
}

// ListOverdueCandidates lists open, not-yet-flagged loans that started
// before the cutoff, with the borrower and item attributes attached.
func (s *LedgerStore) ListOverdueCandidates(_ context.Context, cutoff time.Time) ([]ledger.OverdueLoan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]ledger.OverdueLoan, 0)

	for _, loan := range s.loans {
		if !loan.Open() || loan.Overdue || !loan.StartedAt.Before(cutoff) {
			continue
		}

		candidate := ledger.OverdueLoan{Loan: loan}

		if borrower, found := s.borrowers[loan.BorrowerID]; found {
			candidate.BorrowerName = borrower.Name
			candidate.BorrowerEmail = borrower.Email
		}

		if item, found := s.items[loan.ItemID]; found {
			candidate.ItemTitle = item.Title
		}

		candidates = append(candidates, candidate)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	return candidates, nil
}

// CountOpenLoans counts the open loans for one item.
func (s *LedgerStore) CountOpenLoans(_ context.Context, itemID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0

	for _, loan := range s.loans {
		if loan.ItemID == itemID && loan.Open() {
			count++
		}
	}

	return count, nil
}

// RecordActivity appends one audit row.
func (s *LedgerStore) RecordActivity(_ context.Context, entry ledger.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextActivityID++
	entry.ID = s.nextActivityID
	s.activity = append(s.activity, entry)

	return nil
}

// RecentActivity lists the most recent audit rows, newest first.
func (s *LedgerStore) RecentActivity(_ context.Context, limit uint) ([]ledger.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]ledger.ActivityEntry, len(s.activity))
	copy(entries, s.activity)

	sort.Slice(entries, func(i, j int) bool { return entries[i].LoggedAt.After(entries[j].LoggedAt) })

	if uint(len(entries)) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}
