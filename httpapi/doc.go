// Package httpapi exposes the lending catalog over HTTP: borrow and
// return, catalog management and search, rental history, statistics.
// Business rejections answer 422, unknown identifiers 404 and exhausted
// contention retries 409.
package httpapi
