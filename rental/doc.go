// Package rental implements the borrow and return operations on top of the
// lending ledger, using optimistic concurrency with bounded retries instead
// of locks.
package rental
