// Package postgresengine implements the lending ledger storage on
// PostgreSQL, with adapters for pgx, database/sql and sqlx connections.
//
// Item and loan rows carry a version column used as a concurrency token:
// every mutation is a conditional UPDATE that matches the row only at the
// expected version, and a zero rows-affected result surfaces as
// ledger.ErrConcurrencyConflict. Cross-row operations (creating a loan
// while decrementing availability, closing a loan while incrementing it)
// run both conditional writes inside one transaction so they apply
// all-or-nothing.
package postgresengine
