package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine"
	"github.com/mhartlev/lending-ledger-go/rental"
	"github.com/mhartlev/lending-ledger-go/testutil/postgres"
)

// These tests need a running PostgreSQL instance, reachable through
// LENDINGD_TEST_DSN. They skip when no database answers.

func newStoreOrSkip(t *testing.T, adapterName string) postgresengine.LedgerStore {
	t.Helper()

	ctx := context.Background()
	dsn := postgres.TestDSN()

	var store postgresengine.LedgerStore

	switch adapterName {
	case "pgx":
		pool, err := postgres.ConnectPGXPool(ctx, dsn)
		if err != nil {
			t.Skipf("no test database available: %v", err)
		}
		t.Cleanup(pool.Close)

		store, err = postgresengine.NewLedgerStoreFromPGXPool(pool)
		require.NoError(t, err)

	case "database/sql":
		db, err := postgres.ConnectSQLDB(ctx, dsn)
		if err != nil {
			t.Skipf("no test database available: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		store, err = postgresengine.NewLedgerStoreFromSQLDB(db)
		require.NoError(t, err)

	case "sqlx":
		db, err := postgres.ConnectSQLX(ctx, dsn)
		if err != nil {
			t.Skipf("no test database available: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		store, err = postgresengine.NewLedgerStoreFromSQLX(db)
		require.NoError(t, err)
	}

	require.NoError(t, store.DropSchema(ctx))
	require.NoError(t, store.CreateSchema(ctx))
	t.Cleanup(func() { _ = store.DropSchema(context.Background()) })

	return store
}

func Test_Integration_BorrowAndReturn_AcrossAllAdapters(t *testing.T) {
	for _, adapterName := range []string{"pgx", "database/sql", "sqlx"} {
		t.Run(adapterName, func(t *testing.T) {
			// arrange
			ctx := context.Background()
			store := newStoreOrSkip(t, adapterName)
			engine := rental.NewEngine(store)

			item, err := ledger.BuildItem("Moby Dick", "Herman Melville", "978-1503280786", "Novel", 1)
			require.NoError(t, err)

			itemID, err := store.InsertItem(ctx, item)
			require.NoError(t, err)

			borrowerID, err := store.InsertBorrower(ctx, ledger.Borrower{Name: "alice", Email: "alice@example.com"})
			require.NoError(t, err)

			// act: full lifecycle
			loanID, err := engine.Borrow(ctx, itemID, borrowerID)
			require.NoError(t, err)

			_, err = engine.Borrow(ctx, itemID, borrowerID)
			require.ErrorIs(t, err, rental.ErrOutOfStock)

			require.NoError(t, engine.Return(ctx, itemID, borrowerID))

			err = engine.Return(ctx, itemID, borrowerID)
			require.ErrorIs(t, err, rental.ErrNoActiveLoan)

			// assert
			loan, err := store.GetLoan(ctx, loanID)
			require.NoError(t, err)
			assert.False(t, loan.Open())

			after, err := store.GetItem(ctx, itemID)
			require.NoError(t, err)
			assert.Equal(t, 1, after.AvailableCopies)
		})
	}
}

func Test_Integration_StaleVersionWrites_AreRejected(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newStoreOrSkip(t, "pgx")

	item, err := ledger.BuildItem("Moby Dick", "Herman Melville", "978-1503280786", "Novel", 2)
	require.NoError(t, err)

	itemID, err := store.InsertItem(ctx, item)
	require.NoError(t, err)

	borrowerID, err := store.InsertBorrower(ctx, ledger.Borrower{Name: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	snapshot, err := store.GetItem(ctx, itemID)
	require.NoError(t, err)

	_, err = store.CreateLoan(ctx, snapshot, borrowerID, time.Now())
	require.NoError(t, err)

	// act: the same snapshot again
	_, err = store.CreateLoan(ctx, snapshot, borrowerID, time.Now())

	// assert
	require.ErrorIs(t, err, ledger.ErrConcurrencyConflict)

	after, err := store.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.AvailableCopies, "the losing write must not change the ledger")
}
