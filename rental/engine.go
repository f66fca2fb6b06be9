package rental

import (
	"context"
	"errors"
	"time"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

const (
	logMsgBorrowSucceeded = "item borrowed"
	logMsgReturnSucceeded = "item returned"
	logMsgRetriesExceeded = "retries exhausted due to contention"

	logAttrItemID     = "item_id"
	logAttrBorrowerID = "borrower_id"
	logAttrLoanID     = "loan_id"
	logAttrOperation  = "operation"

	metricBorrowTotal     = "rental_borrow_total"
	metricReturnTotal     = "rental_return_total"
	metricContentionTotal = "rental_contention_exhausted_total"
	labelOperation        = "operation"
	operationBorrow       = "borrow"
	operationReturn       = "return"
)

// Ledger is the storage surface the rental engine needs. Both the Postgres
// and the in-memory engines satisfy it.
type Ledger interface {
	GetItem(ctx context.Context, itemID int64) (ledger.Item, error)
	GetBorrower(ctx context.Context, borrowerID int64) (ledger.Borrower, error)
	CreateLoan(ctx context.Context, item ledger.Item, borrowerID int64, startedAt time.Time) (int64, error)
	FindOpenLoan(ctx context.Context, itemID int64, borrowerID int64) (ledger.Loan, error)
	GetLoan(ctx context.Context, loanID int64) (ledger.Loan, error)
	CloseLoan(ctx context.Context, loan ledger.Loan, item ledger.Item, returnedAt time.Time) error
}

// Engine executes the borrow and return transactions against the ledger.
//
// Neither operation takes any lock: each attempt reads the current item
// (and loan) state including version tokens, decides on that snapshot, and
// lets the ledger's conditional write detect interleaved writers. A
// conflicting attempt is retried with backoff on a fresh snapshot; business
// rejections (ErrOutOfStock, ErrNoActiveLoan) are final and never retried.
type Engine struct {
	ledger       Ledger
	logger       ledger.Logger
	metrics      ledger.MetricsCollector
	clock        func() time.Time
	retryOptions []RetryOption
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger configures a logger for the engine. Without it the engine is silent.
func WithLogger(logger ledger.Logger) Option {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithMetrics configures a metrics collector for the engine.
func WithMetrics(metrics ledger.MetricsCollector) Option {
	return func(engine *Engine) {
		engine.metrics = metrics
	}
}

// WithClock overrides the engine's time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(engine *Engine) {
		engine.clock = clock
	}
}

// WithRetryOptions overrides the retry behavior for conflicting attempts.
func WithRetryOptions(options ...RetryOption) Option {
	return func(engine *Engine) {
		engine.retryOptions = options
	}
}

// NewEngine creates a rental engine on top of the given ledger.
func NewEngine(ledgerStore Ledger, options ...Option) *Engine {
	engine := &Engine{
		ledger: ledgerStore,
		clock:  time.Now,
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

// Borrow lends one copy of the item to the borrower and returns the new
// loan's identifier.
//
// Returns ErrOutOfStock when no copy is available, ErrResourceContention
// when concurrent borrowers kept winning the last copy race for the whole
// retry budget, and the ledger's not-found errors for unknown identifiers.
func (e *Engine) Borrow(ctx context.Context, itemID int64, borrowerID int64) (int64, error) {
	if _, err := e.ledger.GetBorrower(ctx, borrowerID); err != nil {
		return 0, err
	}

	var loanID int64

	attempt := func(ctx context.Context) error {
		item, err := e.ledger.GetItem(ctx, itemID)
		if err != nil {
			return err
		}

		if item.AvailableCopies == 0 {
			return ErrOutOfStock
		}

		loanID, err = e.ledger.CreateLoan(ctx, item, borrowerID, e.clock())

		return err
	}

	if err := retryOnConflict(ctx, attempt, e.retryOptions...); err != nil {
		return 0, e.mapRetryOutcome(err, operationBorrow, itemID, borrowerID)
	}

	e.logOperation(logMsgBorrowSucceeded, logAttrItemID, itemID, logAttrBorrowerID, borrowerID, logAttrLoanID, loanID)
	e.incrementCounter(metricBorrowTotal)

	return loanID, nil
}

// Return closes the borrower's open loan for the item and releases the copy.
//
// The loan close and the availability increment apply all-or-nothing.
// Returns ErrNoActiveLoan when the borrower has no open loan for the item,
// and ErrResourceContention when the retry budget is exhausted.
func (e *Engine) Return(ctx context.Context, itemID int64, borrowerID int64) error {
	attempt := func(ctx context.Context) error {
		loan, err := e.ledger.FindOpenLoan(ctx, itemID, borrowerID)
		if err != nil {
			if errors.Is(err, ledger.ErrLoanNotFound) {
				return ErrNoActiveLoan
			}

			return err
		}

		item, err := e.ledger.GetItem(ctx, itemID)
		if err != nil {
			return err
		}

		return e.ledger.CloseLoan(ctx, loan, item, e.clock())
	}

	if err := retryOnConflict(ctx, attempt, e.retryOptions...); err != nil {
		return e.mapRetryOutcome(err, operationReturn, itemID, borrowerID)
	}

	e.logOperation(logMsgReturnSucceeded, logAttrItemID, itemID, logAttrBorrowerID, borrowerID)
	e.incrementCounter(metricReturnTotal)

	return nil
}

// mapRetryOutcome translates an exhausted retry budget into
// ErrResourceContention and passes every other failure through unchanged.
func (e *Engine) mapRetryOutcome(err error, operation string, itemID int64, borrowerID int64) error {
	if !errors.Is(err, ledger.ErrConcurrencyConflict) {
		return err
	}

	if e.logger != nil {
		e.logger.Warn(logMsgRetriesExceeded,
			logAttrOperation, operation, logAttrItemID, itemID, logAttrBorrowerID, borrowerID)
	}

	if e.metrics != nil {
		e.metrics.IncrementCounter(metricContentionTotal, map[string]string{labelOperation: operation})
	}

	return errors.Join(ErrResourceContention, err)
}

func (e *Engine) logOperation(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) incrementCounter(metric string) {
	if e.metrics != nil {
		e.metrics.IncrementCounter(metric, nil)
	}
}
