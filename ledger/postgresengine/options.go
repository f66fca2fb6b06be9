package postgresengine

import (
	"github.com/mhartlev/lending-ledger-go/ledger"
)

// Option defines a functional option for configuring the LedgerStore.
type Option func(*LedgerStore) error

// WithItemsTableName overrides the default table name for catalog items.
func WithItemsTableName(name string) Option {
	return func(store *LedgerStore) error {
		if name == "" {
			return ledger.ErrEmptyTableName
		}

		store.itemsTableName = name

		return nil
	}
}

// WithLoansTableName overrides the default table name for loans.
func WithLoansTableName(name string) Option {
	return func(store *LedgerStore) error {
		if name == "" {
			return ledger.ErrEmptyTableName
		}

		store.loansTableName = name

		return nil
	}
}

// WithBorrowersTableName overrides the default table name for borrowers.
func WithBorrowersTableName(name string) Option {
	return func(store *LedgerStore) error {
		if name == "" {
			return ledger.ErrEmptyTableName
		}

		store.borrowersTableName = name

		return nil
	}
}

// WithActivityTableName overrides the default table name for the activity log.
func WithActivityTableName(name string) Option {
	return func(store *LedgerStore) error {
		if name == "" {
			return ledger.ErrEmptyTableName
		}

		store.activityTableName = name

		return nil
	}
}

// WithLogger configures a logger for the store. Without it the store is silent.
func WithLogger(logger ledger.Logger) Option {
	return func(store *LedgerStore) error {
		store.logger = logger

		return nil
	}
}

// WithMetrics configures a metrics collector for the store.
func WithMetrics(metrics ledger.MetricsCollector) Option {
	return func(store *LedgerStore) error {
		store.metrics = metrics

		return nil
	}
}
