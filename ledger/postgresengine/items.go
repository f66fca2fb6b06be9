package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine/internal/adapters"
)

// InsertItem adds a new catalog item and returns its generated identifier.
// The row starts at version 1 with all copies available.
func (s LedgerStore) InsertItem(ctx context.Context, item ledger.Item) (int64, error) {
	if err := item.ValidateCopyCounts(); err != nil {
		return 0, err
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(s.itemsTableName).
		Rows(goqu.Record{
			colTitle:           item.Title,
			colAuthor:          item.Author,
			colISBN:            item.ISBN,
			colGenre:           item.Genre,
			colTotalCopies:     item.TotalCopies,
			colAvailableCopies: item.AvailableCopies,
			colVersion:         1,
		}).
		Returning(colID).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return s.queryGeneratedID(ctx, sqlQuery)
}

// GetItem retrieves a single item row including its current version token.
// Returns ledger.ErrItemNotFound when no such item exists.
func (s LedgerStore) GetItem(ctx context.Context, itemID int64) (ledger.Item, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(s.itemsTableName).
		Select(colID, colTitle, colAuthor, colISBN, colGenre, colTotalCopies, colAvailableCopies, colVersion).
		Where(goqu.Ex{colID: itemID}).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return ledger.Item{}, errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return ledger.Item{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return ledger.Item{}, ledger.ErrItemNotFound
	}

	return s.scanItem(rows)
}

// SearchItems lists items whose title and/or genre match the given terms
// (case-insensitive substring match). Empty terms match everything.
func (s LedgerStore) SearchItems(ctx context.Context, title string, genre string) ([]ledger.Item, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.itemsTableName).
		Select(colID, colTitle, colAuthor, colISBN, colGenre, colTotalCopies, colAvailableCopies, colVersion).
		Order(goqu.C(colTitle).Asc())

	if title != "" {
		selectStmt = selectStmt.Where(goqu.C(colTitle).ILike("%" + title + "%"))
	}

	if genre != "" {
		selectStmt = selectStmt.Where(goqu.C(colGenre).ILike("%" + genre + "%"))
	}

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

	items := make([]ledger.Item, 0)

	for rows.Next() {
		item, scanErr := s.scanItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		items = append(items, item)
	}

	return items, nil
}

// scanItem reads the canonical item column set from the current row.
func (s LedgerStore) scanItem(rows adapters.DBRows) (ledger.Item, error) {
	var item ledger.Item

	scanErr := rows.Scan(
		&item.ID,
		&item.Title,
		&item.Author,
		&item.ISBN,
		&item.Genre,
		&item.TotalCopies,
		&item.AvailableCopies,
		&item.Version,
	)
	if scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return ledger.Item{}, errors.Join(ledger.ErrScanningRowFailed, scanErr)
	}

	return item, nil
}

// queryGeneratedID executes an INSERT ... RETURNING id query and scans the
// generated identifier.
func (s LedgerStore) queryGeneratedID(ctx context.Context, sqlQuery sqlQueryString) (int64, error) {
	rows, _, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer s.closeRows(rows)

	return s.scanGeneratedID(rows)
}

// scanGeneratedID reads a single generated identifier from RETURNING rows.
func (s LedgerStore) scanGeneratedID(rows adapters.DBRows) (int64, error) {
	if !rows.Next() {
		return 0, ledger.ErrQueryingLedgerFailed
	}

	var id int64
	if scanErr := rows.Scan(&id); scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return 0, errors.Join(ledger.ErrScanningRowFailed, scanErr)
	}

	return id, nil
}
