package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine/internal/adapters"
)

// CreateLoan atomically decrements the item's available copy count and
// inserts a new open loan, in one database transaction.
//
// The decrement is conditioned on the item's version token being unchanged
// since the caller's read AND on at least one copy still being available.
// When the condition does not hold the whole transaction is rolled back and
// ledger.ErrConcurrencyConflict is returned - the caller must re-read the
// item and decide again. Returns the generated loan identifier on success.
func (s LedgerStore) CreateLoan(
	ctx context.Context,
	item ledger.Item,
	borrowerID int64,
	startedAt time.Time,
) (int64, error) {

	decrementQuery, buildErr := s.buildItemDecrementQuery(item)
	if buildErr != nil {
		return 0, buildErr
	}

	insertQuery, buildErr := s.buildLoanInsertQuery(item.ID, borrowerID, startedAt)
	if buildErr != nil {
		return 0, buildErr
	}

	tx, txErr := s.beginTx(ctx)
	if txErr != nil {
		return 0, txErr
	}
	defer s.rollback(ctx, tx)

	if writeErr := s.executeConditionalWrite(ctx, tx, decrementQuery); writeErr != nil {
		return 0, writeErr
	}

	loanID, insertErr := s.queryGeneratedIDOn(ctx, tx, insertQuery)
	if insertErr != nil {
		return 0, insertErr
	}

	if commitErr := s.commit(ctx, tx); commitErr != nil {
		return 0, commitErr
	}

	s.logOperation("loan created", logAttrItemID, item.ID, logAttrLoanID, loanID)

	return loanID, nil
}

// CloseLoan atomically sets the loan's return timestamp and increments the
// item's available copy count, in one database transaction.
//
// Both writes are conditioned on the version tokens the caller read; the
// loan write additionally requires the loan to still be open and the item
// write requires available to stay at or below total. If either condition
// fails the transaction is rolled back and ledger.ErrConcurrencyConflict is
// returned, leaving both rows untouched.
func (s LedgerStore) CloseLoan(
	ctx context.Context,
	loan ledger.Loan,
	item ledger.Item,
	returnedAt time.Time,
) error {

	closeQuery, buildErr := s.buildLoanCloseQuery(loan, returnedAt)
	if buildErr != nil {
		return buildErr
	}

	incrementQuery, buildErr := s.buildItemIncrementQuery(item)
	if buildErr != nil {
		return buildErr
	}

	tx, txErr := s.beginTx(ctx)
	if txErr != nil {
		return txErr
	}
	defer s.rollback(ctx, tx)

	if writeErr := s.executeConditionalWrite(ctx, tx, closeQuery); writeErr != nil {
		return writeErr
	}

	if writeErr := s.executeConditionalWrite(ctx, tx, incrementQuery); writeErr != nil {
		return writeErr
	}

	if commitErr := s.commit(ctx, tx); commitErr != nil {
		return commitErr
	}

	s.logOperation("loan closed", logAttrItemID, item.ID, logAttrLoanID, loan.ID)

	return nil
}

// MarkLoanOverdue flips the loan's overdue flag with a conditional write
// keyed on the loan's version token and on the loan still being open.
//
// A concurrent Return closing the loan between the scheduler's scan and this
// write makes the condition fail with ledger.ErrConcurrencyConflict; the
// overdue flag is never set on a closed loan.
func (s LedgerStore) MarkLoanOverdue(ctx context.Context, loanID int64, expectedVersion uint64) error {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(s.loansTableName).
		Set(goqu.Record{
			colOverdue: true,
			colVersion: goqu.L(colVersion + " + 1"),
		}).
		Where(
			goqu.C(colID).Eq(loanID),
			goqu.C(colVersion).Eq(expectedVersion),
			goqu.C(colReturnedAt).IsNull(),
		).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return s.executeConditionalWrite(ctx, s.db, sqlQuery)
}

// FindOpenLoan retrieves the oldest open loan for the given item/borrower
// pair. Returns ledger.ErrLoanNotFound when the pair has no open loan.
func (s LedgerStore) FindOpenLoan(ctx context.Context, itemID int64, borrowerID int64) (ledger.Loan, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(s.loansTableName).
		Select(colID, colItemID, colBorrowerID, colStartedAt, colReturnedAt, colOverdue, colVersion).
		Where(
			goqu.C(colItemID).Eq(itemID),
			goqu.C(colBorrowerID).Eq(borrowerID),
			goqu.C(colReturnedAt).IsNull(),
		).
		Order(goqu.C(colStartedAt).Asc()).
		Limit(1).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return ledger.Loan{}, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return ledger.Loan{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}

	return s.scanLoan(rows)
}

// GetLoan retrieves a single loan row by identifier.
func (s LedgerStore) GetLoan(ctx context.Context, loanID int64) (ledger.Loan, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(s.loansTableName).
		Select(colID, colItemID, colBorrowerID, colStartedAt, colReturnedAt, colOverdue, colVersion).
		Where(goqu.Ex{colID: loanID}).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return ledger.Loan{}, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return ledger.Loan{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}

	return s.scanLoan(rows)
}

// ListOverdueCandidates lists open, not-yet-flagged loans that started
// before the cutoff, joined with the borrower contact data and item title
// the scheduler needs for notifications.
func (s LedgerStore) ListOverdueCandidates(ctx context.Context, cutoff time.Time) ([]ledger.OverdueLoan, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(goqu.T(s.loansTableName).As("l")).
		Join(
			goqu.T(s.borrowersTableName).As("b"),
			goqu.On(goqu.I("b."+colID).Eq(goqu.I("l."+colBorrowerID))),
		).
		Join(
			goqu.T(s.itemsTableName).As("i"),
			goqu.On(goqu.I("i."+colID).Eq(goqu.I("l."+colItemID))),
		).
		Select(
			goqu.I("l."+colID),
			goqu.I("l."+colItemID),
			goqu.I("l."+colBorrowerID),
			goqu.I("l."+colStartedAt),
			goqu.I("l."+colReturnedAt),
			goqu.I("l."+colOverdue),
			goqu.I("l."+colVersion),
			goqu.I("b."+colName),
			goqu.I("b."+colEmail),
			goqu.I("i."+colTitle),
		).
		Where(
			goqu.I("l."+colReturnedAt).IsNull(),
			goqu.I("l."+colOverdue).Eq(false),
			goqu.I("l."+colStartedAt).Lt(cutoff),
		).
		Order(goqu.I("l." + colID).Asc()).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return nil, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	candidates := make([]ledger.OverdueLoan, 0)

	for rows.Next() {
		var candidate ledger.OverdueLoan

		scanErr := rows.Scan(
			&candidate.ID,
			&candidate.ItemID,
			&candidate.BorrowerID,
			&candidate.StartedAt,
			&candidate.ReturnedAt,
			&candidate.Overdue,
			&candidate.Version,
			&candidate.BorrowerName,
			&candidate.BorrowerEmail,
			&candidate.ItemTitle,
		)
		if scanErr != nil {
			s.logError(logMsgScanRowFailed, scanErr)
			return nil, errors.Join(ledger.ErrScanningRowFailed, scanErr)
		}

		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// CountOpenLoans counts the open loans for one item.
func (s LedgerStore) CountOpenLoans(ctx context.Context, itemID int64) (int, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(s.loansTableName).
		Select(goqu.COUNT(colID)).
		Where(
			goqu.C(colItemID).Eq(itemID),
			goqu.C(colReturnedAt).IsNull(),
		).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return 0, ledger.ErrQueryingLedgerFailed
	}

	var count int
	if scanErr := rows.Scan(&count); scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return 0, errors.Join(ledger.ErrScanningRowFailed, scanErr)
	}

	return count, nil
}

func (s LedgerStore) buildItemDecrementQuery(item ledger.Item) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(s.itemsTableName).
		Set(goqu.Record{
			colAvailableCopies: goqu.L(colAvailableCopies + " - 1"),
			colVersion:         goqu.L(colVersion + " + 1"),
		}).
		Where(
			goqu.C(colID).Eq(item.ID),
			goqu.C(colVersion).Eq(item.Version),
			goqu.C(colAvailableCopies).Gt(0),
		).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s LedgerStore) buildItemIncrementQuery(item ledger.Item) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(s.itemsTableName).
		Set(goqu.Record{
			colAvailableCopies: goqu.L(colAvailableCopies + " + 1"),
			colVersion:         goqu.L(colVersion + " + 1"),
		}).
		Where(
			goqu.C(colID).Eq(item.ID),
			goqu.C(colVersion).Eq(item.Version),
			goqu.C(colAvailableCopies).Lt(goqu.C(colTotalCopies)),
		).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s LedgerStore) buildLoanInsertQuery(itemID int64, borrowerID int64, startedAt time.Time) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(s.loansTableName).
		Rows(goqu.Record{
			colItemID:     itemID,
			colBorrowerID: borrowerID,
			colStartedAt:  startedAt,
			colOverdue:    false,
			colVersion:    1,
		}).
		Returning(colID).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s LedgerStore) buildLoanCloseQuery(loan ledger.Loan, returnedAt time.Time) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Update(s.loansTableName).
		Set(goqu.Record{
			colReturnedAt: returnedAt,
			colVersion:    goqu.L(colVersion + " + 1"),
		}).
		Where(
			goqu.C(colID).Eq(loan.ID),
			goqu.C(colVersion).Eq(loan.Version),
			goqu.C(colReturnedAt).IsNull(),
		).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// queryGeneratedIDOn executes an INSERT ... RETURNING id query on the given
// executor (pool or open transaction) and scans the generated identifier.
func (s LedgerStore) queryGeneratedIDOn(ctx context.Context, db queryExecutor, sqlQuery sqlQueryString) (int64, error) {
	rows, _, queryErr := s.executeQuery(ctx, db, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer s.closeRows(rows)

	return s.scanGeneratedID(rows)
}

// scanLoan reads the canonical loan column set from the current row.
func (s LedgerStore) scanLoan(rows adapters.DBRows) (ledger.Loan, error) {
	var loan ledger.Loan

	scanErr := rows.Scan(
		&loan.ID,
		&loan.ItemID,
		&loan.BorrowerID,
		&loan.StartedAt,
		&loan.ReturnedAt,
		&loan.Overdue,
		&loan.Version,
	)
	if scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return ledger.Loan{}, errors.Join(ledger.ErrScanningRowFailed, scanErr)
	}

	return loan, nil
}
