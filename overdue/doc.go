// Package overdue runs the daily sweep that flags loans held past the loan
// period and notifies their borrowers. A flag write that loses the race
// against a concurrent return is skipped, never retried.
package overdue
