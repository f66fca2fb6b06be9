package memoryengine

import (
	"context"
	"sort"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

// HistoryByBorrower lists every loan the borrower ever took, newest first.
func (s *LedgerStore) HistoryByBorrower(_ context.Context, borrowerID int64) ([]ledger.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectHistory(func(loan ledger.Loan) bool { return loan.BorrowerID == borrowerID }), nil
}

// HistoryByItem lists every loan ever taken on the item, newest first.
func (s *LedgerStore) HistoryByItem(_ context.Context, itemID int64) ([]ledger.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectHistory(func(loan ledger.Loan) bool { return loan.ItemID == itemID }), nil
}

// MostPopularItem returns the item with the highest all-time loan count.
func (s *LedgerStore) MostPopularItem(_ context.Context) (ledger.ItemStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pickByLoanCount(func(loan ledger.Loan) bool { return true }, true)
}

// LeastPopularItem returns the item with the lowest all-time loan count
// among items that were loaned at least once.
func (s *LedgerStore) LeastPopularItem(_ context.Context) (ledger.ItemStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pickByLoanCount(func(loan ledger.Loan) bool { return true }, false)
}

// MostOverdueItem returns the item whose loans were flagged overdue most often.
func (s *LedgerStore) MostOverdueItem(_ context.Context) (ledger.ItemStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pickByLoanCount(func(loan ledger.Loan) bool { return loan.Overdue }, true)
}

func (s *LedgerStore) collectHistory(include func(ledger.Loan) bool) []ledger.HistoryEntry {
	entries := make([]ledger.HistoryEntry, 0)

	for _, loan := range s.loans {
		if !include(loan) {
			continue
		}

		entry := ledger.HistoryEntry{
			LoanID:     loan.ID,
			ItemID:     loan.ItemID,
			BorrowerID: loan.BorrowerID,
			StartedAt:  loan.StartedAt,
			ReturnedAt: loan.ReturnedAt,
			Overdue:    loan.Overdue,
		}

		if item, found := s.items[loan.ItemID]; found {
			entry.ItemTitle = item.Title
		}

		if borrower, found := s.borrowers[loan.BorrowerID]; found {
			entry.BorrowerName = borrower.Name
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].StartedAt.After(entries[j].StartedAt) })

	return entries
}

func (s *LedgerStore) pickByLoanCount(include func(ledger.Loan) bool, highest bool) (ledger.ItemStatistics, error) {
	counts := make(map[int64]int)

	for _, loan := range s.loans {
		if include(loan) {
			counts[loan.ItemID]++
		}
	}

	if len(counts) == 0 {
		return ledger.ItemStatistics{}, ledger.ErrNoStatistics
	}

	var best ledger.ItemStatistics
	first := true

	for itemID, count := range counts {
		better := count > best.LoanCount
		if !highest {
			better = count < best.LoanCount
		}

		// deterministic tie-break on the lowest item id
		if first || better || (count == best.LoanCount && itemID < best.ItemID) {
			best = ledger.ItemStatistics{ItemID: itemID, LoanCount: count}
			first = false
		}
	}

	if item, found := s.items[best.ItemID]; found {
		best.Title = item.Title
		best.Author = item.Author
	}

	return best, nil
}
