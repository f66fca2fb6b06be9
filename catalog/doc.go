// Package catalog exposes item and borrower registration, catalog search,
// rental history and popularity statistics.
package catalog
