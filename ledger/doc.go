// Package ledger defines the durable row types of the lending catalog -
// items, borrowers, loans and activity entries - together with the sentinel
// errors and observability interfaces shared by every ledger engine.
//
// The package is storage-agnostic: concrete engines live in the
// postgresengine and memoryengine sub-packages. Mutating operations on a
// ledger engine are conditional writes keyed on a row's version token, which
// strictly increases on every successful mutation. A conditional write that
// matches no row reports ErrConcurrencyConflict; callers are expected to
// re-read current state and decide again before retrying.
package ledger
