// Package adapters provides thin wrappers that let the Postgres ledger
// engine run on top of pgxpool.Pool, database/sql or sqlx.DB through one
// DBAdapter interface, including transaction support for the cross-row
// conditional writes.
package adapters
