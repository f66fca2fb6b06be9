package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine/internal/adapters"
)

// HistoryByBorrower lists every loan the borrower ever took, newest first.
func (s LedgerStore) HistoryByBorrower(ctx context.Context, borrowerID int64) ([]ledger.HistoryEntry, error) {
	selectStmt := s.historySelect().
		Where(goqu.I("l." + colBorrowerID).Eq(borrowerID))

	return s.queryHistory(ctx, selectStmt)
}

// HistoryByItem lists every loan ever taken on the item, newest first.
func (s LedgerStore) HistoryByItem(ctx context.Context, itemID int64) ([]ledger.HistoryEntry, error) {
	selectStmt := s.historySelect().
		Where(goqu.I("l." + colItemID).Eq(itemID))

	return s.queryHistory(ctx, selectStmt)
}

// MostPopularItem returns the item with the highest all-time loan count.
// Returns ledger.ErrNoStatistics when no loans were recorded yet.
func (s LedgerStore) MostPopularItem(ctx context.Context) (ledger.ItemStatistics, error) {
	return s.queryItemStatistics(ctx, s.popularitySelect().Order(goqu.COUNT(goqu.I("l."+colID)).Desc()))
}

// LeastPopularItem returns the item with the lowest all-time loan count
// among items that were loaned at least once.
// Returns ledger.ErrNoStatistics when no loans were recorded yet.
func (s LedgerStore) LeastPopularItem(ctx context.Context) (ledger.ItemStatistics, error) {
	return s.queryItemStatistics(ctx, s.popularitySelect().Order(goqu.COUNT(goqu.I("l."+colID)).Asc()))
}

// MostOverdueItem returns the item whose loans were flagged overdue most
// often. Returns ledger.ErrNoStatistics when no loan was ever flagged.
func (s LedgerStore) MostOverdueItem(ctx context.Context) (ledger.ItemStatistics, error) {
	selectStmt := s.popularitySelect().
		Where(goqu.I("l." + colOverdue).Eq(true)).
		Order(goqu.COUNT(goqu.I("l." + colID)).Desc())

	return s.queryItemStatistics(ctx, selectStmt)
}

func (s LedgerStore) historySelect() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(goqu.T(s.loansTableName).As("l")).
		Join(
			goqu.T(s.itemsTableName).As("i"),
			goqu.On(goqu.I("i."+colID).Eq(goqu.I("l."+colItemID))),
		).
		Join(
			goqu.T(s.borrowersTableName).As("b"),
			goqu.On(goqu.I("b."+colID).Eq(goqu.I("l."+colBorrowerID))),
		).
		Select(
			goqu.I("l."+colID),
			goqu.I("l."+colItemID),
			goqu.I("i."+colTitle),
			goqu.I("l."+colBorrowerID),
			goqu.I("b."+colName),
			goqu.I("l."+colStartedAt),
			goqu.I("l."+colReturnedAt),
			goqu.I("l."+colOverdue),
		).
		Order(goqu.I("l." + colStartedAt).Desc())
}

func (s LedgerStore) queryHistory(ctx context.Context, selectStmt *goqu.SelectDataset) ([]ledger.HistoryEntry, error) {
	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return nil, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	entries := make([]ledger.HistoryEntry, 0)

	for rows.Next() {
		entry, scanErr := s.scanHistoryEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (s LedgerStore) scanHistoryEntry(rows adapters.DBRows) (ledger.HistoryEntry, error) {
	var entry ledger.HistoryEntry

	scanErr := rows.Scan(
		&entry.LoanID,
		&entry.ItemID,
		&entry.ItemTitle,
		&entry.BorrowerID,
		&entry.BorrowerName,
		&entry.StartedAt,
		&entry.ReturnedAt,
		&entry.Overdue,
	)
	if scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return ledger.HistoryEntry{}, errors.Join(ledger.ErrScanningRowFailed, scanErr)
	}

	return entry, nil
}

func (s LedgerStore) popularitySelect() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(goqu.T(s.loansTableName).As("l")).
		Join(
			goqu.T(s.itemsTableName).As("i"),
			goqu.On(goqu.I("i."+colID).Eq(goqu.I("l."+colItemID))),
		).
		Select(
			goqu.I("i."+colID),
			goqu.I("i."+colTitle),
			goqu.I("i."+colAuthor),
			goqu.COUNT(goqu.I("l."+colID)),
		).
		GroupBy(
			goqu.I("i."+colID),
			goqu.I("i."+colTitle),
			goqu.I("i."+colAuthor),
		).
		Limit(1)
}

func (s LedgerStore) queryItemStatistics(ctx context.Context, selectStmt *goqu.SelectDataset) (ledger.ItemStatistics, error) {
	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return ledger.ItemStatistics{}, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return ledger.ItemStatistics{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return ledger.ItemStatistics{}, ledger.ErrNoStatistics
	}

	var stats ledger.ItemStatistics
	scanErr := rows.Scan(&stats.ItemID, &stats.Title, &stats.Author, &stats.LoanCount)
	if scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return ledger.ItemStatistics{}, errors.Join(ledger.ErrScanningRowFailed, scanErr)
	}

	return stats, nil
}
