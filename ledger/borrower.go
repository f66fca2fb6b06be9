package ledger

// Borrower is a registered user of the lending catalog. Email is the
// address the Notifier sends overdue notices to.
type Borrower struct {
	ID    int64
	Name  string
	Email string
}
