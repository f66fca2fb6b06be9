package ledger

import (
	"errors"
)

var ErrConcurrencyConflict = errors.New("concurrency conflict, no rows were affected")
var ErrItemNotFound = errors.New("item does not exist")
var ErrBorrowerNotFound = errors.New("borrower does not exist")
var ErrLoanNotFound = errors.New("no matching loan exists")
var ErrNoStatistics = errors.New("no loans recorded yet, statistics are empty")

var ErrNilDatabaseConnection = errors.New("database connection must not be nil")
var ErrEmptyTableName = errors.New("empty table name supplied")

var ErrBuildingQueryFailed = errors.New("building sql query failed")
var ErrQueryingLedgerFailed = errors.New("querying ledger failed")
var ErrExecutingWriteFailed = errors.New("executing ledger write failed")
var ErrScanningRowFailed = errors.New("scanning database row failed")
var ErrGettingRowsAffectedFailed = errors.New("getting rows affected count failed")
var ErrTransactionFailed = errors.New("ledger transaction failed")
