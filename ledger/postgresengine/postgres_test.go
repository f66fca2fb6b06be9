package postgresengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine/internal/adapters"
)

// stubRows replays canned row values through the DBRows interface.
type stubRows struct {
	rows [][]any
	idx  int
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}

	r.idx++

	return true
}

func (r *stubRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]

	for i, value := range row {
		switch target := dest[i].(type) {
		case *int64:
			*target = value.(int64)
		case *int:
			*target = value.(int)
		case *uint64:
			*target = value.(uint64)
		case *string:
			*target = value.(string)
		case *bool:
			*target = value.(bool)
		case *time.Time:
			*target = value.(time.Time)
		case **time.Time:
			if value == nil {
				*target = nil
			} else {
				ts := value.(time.Time)
				*target = &ts
			}
		default:
			return errors.New("stubRows: unsupported scan target")
		}
	}

	return nil
}

func (r *stubRows) Close() error { return nil }

type stubResult struct {
	rowsAffected int64
}

func (r stubResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// stubAdapter records every statement it sees and replays scripted
// results in order, shared between pool-level and transaction-level calls.
type stubAdapter struct {
	queries      []string
	execs        []string
	queryResults []*stubRows
	execResults  []stubResult
	execErr      error

	begun      int
	committed  int
	rolledBack int
}

func (a *stubAdapter) Query(_ context.Context, query string) (adapters.DBRows, error) {
	a.queries = append(a.queries, query)

	if len(a.queryResults) == 0 {
		return &stubRows{}, nil
	}

	rows := a.queryResults[0]
	a.queryResults = a.queryResults[1:]

	return rows, nil
}

func (a *stubAdapter) Exec(_ context.Context, query string) (adapters.DBResult, error) {
	a.execs = append(a.execs, query)

	if a.execErr != nil {
		return nil, a.execErr
	}

	if len(a.execResults) == 0 {
		return stubResult{rowsAffected: 1}, nil
	}

	result := a.execResults[0]
	a.execResults = a.execResults[1:]

	return result, nil
}

func (a *stubAdapter) Begin(_ context.Context) (adapters.DBTx, error) {
	a.begun++

	return &stubTx{adapter: a}, nil
}

type stubTx struct {
	adapter  *stubAdapter
	finished bool
}

func (t *stubTx) Query(ctx context.Context, query string) (adapters.DBRows, error) {
	return t.adapter.Query(ctx, query)
}

func (t *stubTx) Exec(ctx context.Context, query string) (adapters.DBResult, error) {
	return t.adapter.Exec(ctx, query)
}

func (t *stubTx) Commit(_ context.Context) error {
	t.finished = true
	t.adapter.committed++

	return nil
}

func (t *stubTx) Rollback(_ context.Context) error {
	if t.finished {
		return nil
	}

	t.finished = true
	t.adapter.rolledBack++

	return nil
}

func newStoreWithStub(t *testing.T, adapter *stubAdapter) LedgerStore {
	t.Helper()

	store, err := newLedgerStore(adapter)
	require.NoError(t, err)

	return store
}

func Test_CreateLoan_DecrementsAvailability_AndInsertsLoan_InOneTransaction(t *testing.T) {
	// arrange
	adapter := &stubAdapter{
		execResults:  []stubResult{{rowsAffected: 1}},
		queryResults: []*stubRows{{rows: [][]any{{int64(77)}}}},
	}
	store := newStoreWithStub(t, adapter)
	item := ledger.Item{ID: 42, TotalCopies: 3, AvailableCopies: 2, Version: 5}

	// act
	loanID, err := store.CreateLoan(context.Background(), item, 7, time.Now())

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(77), loanID, "should return the generated loan id")
	assert.Equal(t, 1, adapter.begun, "should run inside a transaction")
	assert.Equal(t, 1, adapter.committed, "should commit the transaction")
	assert.Equal(t, 0, adapter.rolledBack)

	require.Len(t, adapter.execs, 1)
	assert.Contains(t, adapter.execs[0], `"id" = 42`)
	assert.Contains(t, adapter.execs[0], `"version" = 5`, "decrement must be guarded by the version token")
	assert.Contains(t, adapter.execs[0], `"available_copies" > 0`, "decrement must be guarded by availability")
}

func Test_CreateLoan_ReportsConcurrencyConflict_AndRollsBack_WhenNoRowMatches(t *testing.T) {
	// arrange
	adapter := &stubAdapter{execResults: []stubResult{{rowsAffected: 0}}}
	store := newStoreWithStub(t, adapter)
	item := ledger.Item{ID: 42, TotalCopies: 3, AvailableCopies: 2, Version: 5}

	// act
	_, err := store.CreateLoan(context.Background(), item, 7, time.Now())

	// assert
	require.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
	assert.Equal(t, 0, adapter.committed, "nothing must be committed")
	assert.Equal(t, 1, adapter.rolledBack)
	assert.Empty(t, adapter.queries, "the loan insert must not run after a conflict")
}

func Test_CloseLoan_AppliesBothWrites_InOneTransaction(t *testing.T) {
	// arrange
	adapter := &stubAdapter{
		execResults: []stubResult{{rowsAffected: 1}, {rowsAffected: 1}},
	}
	store := newStoreWithStub(t, adapter)
	loan := ledger.Loan{ID: 9, ItemID: 42, BorrowerID: 7, Version: 2}
	item := ledger.Item{ID: 42, TotalCopies: 3, AvailableCopies: 1, Version: 6}

	// act
	err := store.CloseLoan(context.Background(), loan, item, time.Now())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.committed)

	require.Len(t, adapter.execs, 2)
	assert.Contains(t, adapter.execs[0], `"returned_at" IS NULL`, "close must require the loan to still be open")
	assert.Contains(t, adapter.execs[0], `"version" = 2`)
	assert.Contains(t, adapter.execs[1], `"version" = 6`)
	assert.Contains(t, adapter.execs[1], `"available_copies" < "total_copies"`, "increment must never exceed total copies")
}

func Test_CloseLoan_RollsBack_WhenItemIncrementConflicts(t *testing.T) {
	// arrange
	adapter := &stubAdapter{
		execResults: []stubResult{{rowsAffected: 1}, {rowsAffected: 0}},
	}
	store := newStoreWithStub(t, adapter)
	loan := ledger.Loan{ID: 9, ItemID: 42, BorrowerID: 7, Version: 2}
	item := ledger.Item{ID: 42, TotalCopies: 3, AvailableCopies: 1, Version: 6}

	// act
	err := store.CloseLoan(context.Background(), loan, item, time.Now())

	// assert
	require.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
	assert.Equal(t, 0, adapter.committed, "a partial return must never be committed")
	assert.Equal(t, 1, adapter.rolledBack)
}

func Test_MarkLoanOverdue_GuardsOnVersionAndOpenLoan(t *testing.T) {
	// arrange
	adapter := &stubAdapter{execResults: []stubResult{{rowsAffected: 1}}}
	store := newStoreWithStub(t, adapter)

	// act
	err := store.MarkLoanOverdue(context.Background(), 9, 3)

	// assert
	require.NoError(t, err)
	require.Len(t, adapter.execs, 1)
	assert.Contains(t, adapter.execs[0], `"id" = 9`)
	assert.Contains(t, adapter.execs[0], `"version" = 3`)
	assert.Contains(t, adapter.execs[0], `"returned_at" IS NULL`, "a closed loan must never be flagged overdue")
}

func Test_MarkLoanOverdue_ReportsConcurrencyConflict_WhenLoanWasClosedMeanwhile(t *testing.T) {
	// arrange
	adapter := &stubAdapter{execResults: []stubResult{{rowsAffected: 0}}}
	store := newStoreWithStub(t, adapter)

	// act
	err := store.MarkLoanOverdue(context.Background(), 9, 3)

	// assert
	require.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
}

func Test_GetItem_ReturnsItemNotFound_WhenNoRowExists(t *testing.T) {
	// arrange
	adapter := &stubAdapter{queryResults: []*stubRows{{}}}
	store := newStoreWithStub(t, adapter)

	// act
	_, err := store.GetItem(context.Background(), 999)

	// assert
	require.ErrorIs(t, err, ledger.ErrItemNotFound)
}

func Test_FindOpenLoan_ReturnsLoanNotFound_WhenNoOpenLoanExists(t *testing.T) {
	// arrange
	adapter := &stubAdapter{queryResults: []*stubRows{{}}}
	store := newStoreWithStub(t, adapter)

	// act
	_, err := store.FindOpenLoan(context.Background(), 42, 7)

	// assert
	require.ErrorIs(t, err, ledger.ErrLoanNotFound)
	require.Len(t, adapter.queries, 1)
	assert.Contains(t, adapter.queries[0], `"returned_at" IS NULL`)
}

func Test_ListOverdueCandidates_FiltersOnOpenUnflaggedLoans(t *testing.T) {
	// arrange
	adapter := &stubAdapter{queryResults: []*stubRows{{}}}
	store := newStoreWithStub(t, adapter)

	// act
	candidates, err := store.ListOverdueCandidates(context.Background(), time.Now().AddDate(0, 0, -14))

	// assert
	require.NoError(t, err)
	assert.Empty(t, candidates)
	require.Len(t, adapter.queries, 1)
	assert.Contains(t, adapter.queries[0], `"l"."returned_at" IS NULL`)
	assert.Contains(t, adapter.queries[0], `"l"."overdue" IS FALSE`)
}

func Test_MostPopularItem_ReturnsNoStatistics_WhenNoLoansExist(t *testing.T) {
	// arrange
	adapter := &stubAdapter{queryResults: []*stubRows{{}}}
	store := newStoreWithStub(t, adapter)

	// act
	_, err := store.MostPopularItem(context.Background())

	// assert
	require.ErrorIs(t, err, ledger.ErrNoStatistics)
}

func Test_NewLedgerStore_RejectsNilConnections(t *testing.T) {
	_, err := NewLedgerStoreFromPGXPool(nil)
	assert.ErrorIs(t, err, ledger.ErrNilDatabaseConnection)

	_, err = NewLedgerStoreFromSQLDB(nil)
	assert.ErrorIs(t, err, ledger.ErrNilDatabaseConnection)

	_, err = NewLedgerStoreFromSQLX(nil)
	assert.ErrorIs(t, err, ledger.ErrNilDatabaseConnection)
}

func Test_Options_RejectEmptyTableNames(t *testing.T) {
	adapter := &stubAdapter{}

	_, err := newLedgerStore(adapter, WithItemsTableName(""))
	assert.ErrorIs(t, err, ledger.ErrEmptyTableName)

	_, err = newLedgerStore(adapter, WithLoansTableName(""))
	assert.ErrorIs(t, err, ledger.ErrEmptyTableName)

	_, err = newLedgerStore(adapter, WithBorrowersTableName(""))
	assert.ErrorIs(t, err, ledger.ErrEmptyTableName)

	_, err = newLedgerStore(adapter, WithActivityTableName(""))
	assert.ErrorIs(t, err, ledger.ErrEmptyTableName)
}
