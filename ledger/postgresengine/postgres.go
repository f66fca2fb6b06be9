package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine/internal/adapters"
)

const (
	defaultItemsTableName     = "items"
	defaultLoansTableName     = "loans"
	defaultBorrowersTableName = "borrowers"
	defaultActivityTableName  = "activity_log"

	logMsgBuildQueryFailed    = "failed to build sql query"
	logMsgDBQueryFailed       = "database query execution failed"
	logMsgDBExecFailed        = "database execution failed"
	logMsgCloseRowsFailed     = "failed to close database rows"
	logMsgScanRowFailed       = "failed to scan database row"
	logMsgRowsAffectedFailed  = "failed to get rows affected count"
	logMsgBeginTxFailed       = "failed to begin ledger transaction"
	logMsgCommitTxFailed      = "failed to commit ledger transaction"
	logMsgRollbackTxFailed    = "failed to roll back ledger transaction"
	logMsgConcurrencyConflict = "concurrency conflict detected"
	logMsgSQLExecuted         = "executed sql for: "
	logMsgOperation           = "ledger operation: "

	logAttrError       = "error"
	logAttrQuery       = "query"
	logAttrTable       = "table"
	logAttrItemID      = "item_id"
	logAttrLoanID      = "loan_id"
	logAttrVersion     = "expected_version"
	logAttrDurationMS  = "duration_ms"
	logAttrRowCount    = "row_count"
	logAttrRowsChanged = "rows_affected"

	colID              = "id"
	colTitle           = "title"
	colAuthor          = "author"
	colISBN            = "isbn"
	colGenre           = "genre"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colVersion         = "version"
	colItemID          = "item_id"
	colBorrowerID      = "borrower_id"
	colStartedAt       = "started_at"
	colReturnedAt      = "returned_at"
	colOverdue         = "overdue"
	colName            = "name"
	colEmail           = "email"

	dialectPostgres = "postgres"

	metricQueryDuration = "ledgerstore_query_duration_seconds"
	metricWriteDuration = "ledgerstore_write_duration_seconds"
	metricConflictCount = "ledgerstore_concurrency_conflicts_total"
	labelTable          = "table"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
)

// LedgerStore persists the lending catalog's items, borrowers, loans and
// activity entries in PostgreSQL.
//
// Every mutation of an item or loan row is a conditional write keyed on the
// row's version column: the UPDATE matches only when the version still equals
// the value the caller read, and a matched row advances it by one. A write
// that matches no row reports ledger.ErrConcurrencyConflict - that check,
// enforced by the database, is the sole serialization point for concurrent
// borrow/return/overdue operations.
type LedgerStore struct {
	db                 adapters.DBAdapter
	itemsTableName     string
	loansTableName     string
	borrowersTableName string
	activityTableName  string
	logger             ledger.Logger
	metrics            ledger.MetricsCollector
}

// NewLedgerStoreFromPGXPool creates a new LedgerStore using a pgx Pool with optional configuration.
func NewLedgerStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (LedgerStore, error) {
	if db == nil {
		return LedgerStore{}, ledger.ErrNilDatabaseConnection
	}

	return newLedgerStore(adapters.NewPGXAdapter(db), options...)
}

// NewLedgerStoreFromSQLDB creates a new LedgerStore using a sql.DB with optional configuration.
func NewLedgerStoreFromSQLDB(db *sql.DB, options ...Option) (LedgerStore, error) {
	if db == nil {
		return LedgerStore{}, ledger.ErrNilDatabaseConnection
	}

	return newLedgerStore(adapters.NewSQLAdapter(db), options...)
}

// NewLedgerStoreFromSQLX creates a new LedgerStore using a sqlx.DB with optional configuration.
func NewLedgerStoreFromSQLX(db *sqlx.DB, options ...Option) (LedgerStore, error) {
	if db == nil {
		return LedgerStore{}, ledger.ErrNilDatabaseConnection
	}

	return newLedgerStore(adapters.NewSQLXAdapter(db), options...)
}

func newLedgerStore(db adapters.DBAdapter, options ...Option) (LedgerStore, error) {
	store := LedgerStore{
		db:                 db,
		itemsTableName:     defaultItemsTableName,
		loansTableName:     defaultLoansTableName,
		borrowersTableName: defaultBorrowersTableName,
		activityTableName:  defaultActivityTableName,
	}

	for _, option := range options {
		if err := option(&store); err != nil {
			return LedgerStore{}, err
		}
	}

	return store, nil
}

// queryExecutor is satisfied by both the DBAdapter and an open DBTx.
type queryExecutor interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
}

// executeQuery executes the SQL query and returns rows with timing information.
func (s LedgerStore) executeQuery(ctx context.Context, db queryExecutor, sqlQuery sqlQueryString) (
	adapters.DBRows,
	time.Duration,
	error,
) {

	start := time.Now()
	rows, queryErr := db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, "query", duration)

	if queryErr != nil {
		s.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, duration, errors.Join(ledger.ErrQueryingLedgerFailed, queryErr)
	}

	s.recordDuration(metricQueryDuration, duration, nil)

	return rows, duration, nil
}

// executeConditionalWrite executes a version-guarded write and maps a zero
// rows-affected result to ledger.ErrConcurrencyConflict.
func (s LedgerStore) executeConditionalWrite(ctx context.Context, db writeExecutor, sqlQuery sqlQueryString) error {
	rowsAffected, err := s.executeWrite(ctx, db, sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		s.logOperation(logMsgConcurrencyConflict, logAttrRowsChanged, rowsAffected)

		if s.metrics != nil {
			s.metrics.IncrementCounter(metricConflictCount, nil)
		}

		return ledger.ErrConcurrencyConflict
	}

	return nil
}

// writeExecutor is satisfied by both the DBAdapter and an open DBTx.
type writeExecutor interface {
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// executeWrite executes the SQL write and returns the rows affected count.
func (s LedgerStore) executeWrite(ctx context.Context, db writeExecutor, sqlQuery sqlQueryString) (
	rowsAffectedInt64,
	error,
) {

	start := time.Now()
	result, execErr := db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, "write", duration)

	if execErr != nil {
		s.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(ledger.ErrExecutingWriteFailed, execErr)
	}

	s.recordDuration(metricWriteDuration, duration, nil)

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, errors.Join(ledger.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

// beginTx starts a ledger transaction for the cross-row conditional writes.
func (s LedgerStore) beginTx(ctx context.Context) (adapters.DBTx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logError(logMsgBeginTxFailed, err)
		return nil, errors.Join(ledger.ErrTransactionFailed, err)
	}

	return tx, nil
}

// rollback safely rolls back a transaction and logs any errors.
// Rolling back an already committed transaction is a no-op.
func (s LedgerStore) rollback(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgRollbackTxFailed, logAttrError, rollbackErr.Error())
		}
	}
}

// commit commits a transaction, wrapping failures with the ledger sentinel.
func (s LedgerStore) commit(ctx context.Context, tx adapters.DBTx) error {
	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(logMsgCommitTxFailed, commitErr)
		return errors.Join(ledger.ErrTransactionFailed, commitErr)
	}

	return nil
}

// closeRows safely closes database rows and logs any errors.
func (s LedgerStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL queries with execution time at debug level if the logger is configured.
func (s LedgerStore) logQueryWithDuration(sqlQuery sqlQueryString, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (s LedgerStore) logOperation(action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

// logError logs critical failures at error level if the logger is configured.
func (s LedgerStore) logError(msg string, err error, args ...any) {
	if s.logger != nil {
		allArgs := append([]any{logAttrError, err.Error()}, args...)
		s.logger.Error(msg, allArgs...)
	}
}

// recordDuration forwards a duration metric if a collector is configured.
func (s LedgerStore) recordDuration(metric string, duration time.Duration, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.RecordDuration(metric, duration, labels)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
