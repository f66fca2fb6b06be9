package postgresengine

import (
	"context"
	"fmt"
)

// CreateSchema creates the ledger tables and supporting indexes if they do
// not exist yet. Meant for local setups and tests; production deployments
// run their own migrations.
func (s LedgerStore) CreateSchema(ctx context.Context) error {
	statements := []sqlQueryString{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			isbn TEXT NOT NULL DEFAULT '',
			genre TEXT NOT NULL DEFAULT '',
			total_copies INTEGER NOT NULL CHECK (total_copies >= 0),
			available_copies INTEGER NOT NULL
				CHECK (available_copies >= 0 AND available_copies <= total_copies),
			version BIGINT NOT NULL DEFAULT 1
		)`, s.itemsTableName),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL
		)`, s.borrowersTableName),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			item_id BIGINT NOT NULL REFERENCES %s (id),
			borrower_id BIGINT NOT NULL REFERENCES %s (id),
			started_at TIMESTAMPTZ NOT NULL,
			returned_at TIMESTAMPTZ,
			overdue BOOLEAN NOT NULL DEFAULT FALSE,
			version BIGINT NOT NULL DEFAULT 1
		)`, s.loansTableName, s.itemsTableName, s.borrowersTableName),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_open
			ON %s (item_id, borrower_id) WHERE returned_at IS NULL`,
			s.loansTableName, s.loansTableName),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_overdue_scan
			ON %s (started_at) WHERE returned_at IS NULL AND overdue = FALSE`,
			s.loansTableName, s.loansTableName),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			log_type TEXT NOT NULL,
			message TEXT NOT NULL,
			logged_at TIMESTAMPTZ NOT NULL,
			endpoint TEXT NOT NULL DEFAULT '',
			borrower_id BIGINT,
			duration_ms BIGINT
		)`, s.activityTableName),
	}

	for _, statement := range statements {
		if _, execErr := s.executeWrite(ctx, s.db, statement); execErr != nil {
			return execErr
		}
	}

	return nil
}

// DropSchema drops the ledger tables. Test helper, never used in production.
func (s LedgerStore) DropSchema(ctx context.Context) error {
	statements := []sqlQueryString{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.activityTableName),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.loansTableName),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.borrowersTableName),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.itemsTableName),
	}

	for _, statement := range statements {
		if _, execErr := s.executeWrite(ctx, s.db, statement); execErr != nil {
			return execErr
		}
	}

	return nil
}
