package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

const (
	colLogType    = "log_type"
	colMessage    = "message"
	colLoggedAt   = "logged_at"
	colEndpoint   = "endpoint"
	colDurationMS = "duration_ms"
)

// RecordActivity appends one audit row. Callers treat this as best-effort;
// the write is not part of any business transaction.
func (s LedgerStore) RecordActivity(ctx context.Context, entry ledger.ActivityEntry) error {
	record := goqu.Record{
		colLogType:  entry.LogType,
		colMessage:  entry.Message,
		colLoggedAt: entry.LoggedAt,
		colEndpoint: entry.Endpoint,
	}

	if entry.BorrowerID != nil {
		record[colBorrowerID] = *entry.BorrowerID
	}

	if entry.DurationMS != nil {
		record[colDurationMS] = *entry.DurationMS
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(s.activityTableName).
		Rows(record).
		ToSQL()

	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(ledger.ErrBuildingQueryFailed, toSQLErr)
	}

	_, execErr := s.executeWrite(ctx, s.db, sqlQuery)

	return execErr
}

// RecentActivity lists the most recent audit rows, newest first.
func (s LedgerStore) RecentActivity(ctx context.Context, limit uint) ([]ledger.ActivityEntry, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(s.activityTableName).
		Select(colID, colLogType, colMessage, colLoggedAt, colEndpoint, colBorrowerID, colDurationMS).
		Order(goqu.C(colLoggedAt).Desc()).
		Limit(limit).
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

	entries := make([]ledger.ActivityEntry, 0)

	for rows.Next() {
		var entry ledger.ActivityEntry

		scanErr := rows.Scan(
			&entry.ID,
			&entry.LogType,
			&entry.Message,
			&entry.LoggedAt,
			&entry.Endpoint,
			&entry.BorrowerID,
			&entry.DurationMS,
		)
		if scanErr != nil {
			s.logError(logMsgScanRowFailed, scanErr)
			return nil, errors.Join(ledger.ErrScanningRowFailed, scanErr)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
