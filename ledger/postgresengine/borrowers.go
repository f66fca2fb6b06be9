package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

// InsertBorrower registers a new borrower and returns the generated identifier.
func (s LedgerStore) InsertBorrower(ctx context.Context, borrower ledger.Borrower) (int64, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(s.borrowersTableName).
		Rows(goqu.Record{
			colName:  borrower.Name,
			colEmail: borrower.Email,
		}).
		Returning(colID).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return s.queryGeneratedID(ctx, sqlQuery)
}

// GetBorrower retrieves a single borrower row.
// Returns ledger.ErrBorrowerNotFound when no such borrower exists.
func (s LedgerStore) GetBorrower(ctx context.Context, borrowerID int64) (ledger.Borrower, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(s.borrowersTableName).
		Select(colID, colName, colEmail).
		Where(goqu.Ex{colID: borrowerID}).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return ledger.Borrower{}, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return ledger.Borrower{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return ledger.Borrower{}, ledger.ErrBorrowerNotFound
	}

	var borrower ledger.Borrower
	if scanErr := rows.Scan(&borrower.ID, &borrower.Name, &borrower.Email); scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return ledger.Borrower{}, errors.Join(ledger.ErrScanningRowFailed, scanErr)
	}

	return borrower, nil
}
