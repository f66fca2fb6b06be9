package overdue

import (
	"context"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

// LogNotifier writes overdue notices to the log instead of a delivery
// channel. It stands in wherever no mail or messaging transport is wired.
type LogNotifier struct {
	logger ledger.Logger
}

// NewLogNotifier creates a notifier that logs every notice.
func NewLogNotifier(logger ledger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the notice. It never fails.
func (n *LogNotifier) Send(_ context.Context, notice Notice) error {
	if n.logger != nil {
		n.logger.Info("overdue notice",
			"borrower", notice.BorrowerName,
			"email", notice.BorrowerEmail,
			"item", notice.ItemTitle,
			"started_at", notice.StartedAt,
		)
	}

	return nil
}
