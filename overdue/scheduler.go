package overdue

import (
	"context"
	"errors"
	"time"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

const (
	// DefaultLoanPeriod is how long a loan may stay open before it counts
	// as overdue.
	DefaultLoanPeriod = 14 * 24 * time.Hour

	logMsgSweepStarted       = "overdue sweep started"
	logMsgSweepFinished      = "overdue sweep finished"
	logMsgLoanFlagged        = "loan flagged overdue"
	logMsgLoanClosedMidSweep = "loan was closed concurrently, skipping"
	logMsgNotifyFailed       = "overdue notification failed"
	logMsgSchedulerStopped   = "overdue scheduler stopped"
	logMsgNextSweepScheduled = "next overdue sweep scheduled"

	logAttrLoanID   = "loan_id"
	logAttrItemID   = "item_id"
	logAttrBorrower = "borrower_id"
	logAttrCutoff   = "cutoff"
	logAttrNextRun  = "next_run"
	logAttrFlagged  = "flagged"
	logAttrSkipped  = "skipped"
	logAttrError    = "error"

	metricLoansFlagged   = "overdue_loans_flagged_total"
	metricSweepSkipped   = "overdue_sweep_skipped_total"
	metricNotifyFailures = "overdue_notify_failures_total"
	metricSweepDuration  = "overdue_sweep_duration_seconds"
)

// ErrInvalidLoanPeriod is returned when a non-positive loan period is configured.
var ErrInvalidLoanPeriod = errors.New("loan period must be positive")

// LoanLedger is the storage surface the scheduler needs. Both the Postgres
// and the in-memory engines satisfy it.
type LoanLedger interface {
	ListOverdueCandidates(ctx context.Context, cutoff time.Time) ([]ledger.OverdueLoan, error)
	MarkLoanOverdue(ctx context.Context, loanID int64, expectedVersion uint64) error
}

// Notice carries everything a notification channel needs to tell a borrower
// their loan is overdue.
type Notice struct {
	BorrowerName  string
	BorrowerEmail string
	ItemTitle     string
	StartedAt     time.Time
}

// Notifier dispatches one overdue notice. Delivery is best-effort: a failed
// send is logged and counted but never blocks or rolls back the sweep.
type Notifier interface {
	Send(ctx context.Context, notice Notice) error
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Flagged        int
	Skipped        int
	NotifyFailures int
}

// Scheduler flags loans as overdue once per day and notifies the borrowers.
//
// Each candidate's flag write is conditioned on the version token read
// during the scan and on the loan still being open, so a Return racing the
// sweep simply makes the write match nothing; that loan is skipped, not
// flagged, and never retried - a returned loan is not overdue. A loan that
// stays open is flagged by a later sweep, so the flag transition happens
// exactly once per loan.
type Scheduler struct {
	ledger     LoanLedger
	notifier   Notifier
	logger     ledger.Logger
	metrics    ledger.MetricsCollector
	loanPeriod time.Duration
	clock      func() time.Time
}

// Option defines a functional option for configuring the Scheduler.
type Option func(*Scheduler) error

// WithLogger configures a logger for the scheduler. Without it the scheduler is silent.
func WithLogger(logger ledger.Logger) Option {
	return func(scheduler *Scheduler) error {
		scheduler.logger = logger

		return nil
	}
}

// WithMetrics configures a metrics collector for the scheduler.
func WithMetrics(metrics ledger.MetricsCollector) Option {
	return func(scheduler *Scheduler) error {
		scheduler.metrics = metrics

		return nil
	}
}

// WithLoanPeriod overrides how long a loan may stay open before the sweep
// flags it.
func WithLoanPeriod(period time.Duration) Option {
	return func(scheduler *Scheduler) error {
		if period <= 0 {
			return ErrInvalidLoanPeriod
		}

		scheduler.loanPeriod = period

		return nil
	}
}

// WithClock overrides the scheduler's time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(scheduler *Scheduler) error {
		scheduler.clock = clock

		return nil
	}
}

// NewScheduler creates an overdue scheduler on top of the given ledger.
func NewScheduler(loanLedger LoanLedger, notifier Notifier, options ...Option) (*Scheduler, error) {
	scheduler := &Scheduler{
		ledger:     loanLedger,
		notifier:   notifier,
		loanPeriod: DefaultLoanPeriod,
		clock:      time.Now,
	}

	for _, option := range options {
		if err := option(scheduler); err != nil {
			return nil, err
		}
	}

	return scheduler, nil
}

// NextUTCMidnight returns the first instant of the next UTC day after now.
// Sweeps anchor here so the cadence never drifts with sweep duration.
func NextUTCMidnight(now time.Time) time.Time {
	utc := now.UTC()

	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// Run sweeps once per day, anchored at UTC midnight, until the context is
// canceled. It always returns the context's error.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		nextRun := NextUTCMidnight(s.clock())
		s.logInfo(logMsgNextSweepScheduled, logAttrNextRun, nextRun.Format(time.RFC3339))

		timer := time.NewTimer(nextRun.Sub(s.clock()))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logInfo(logMsgSchedulerStopped)

			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.RunSweep(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logInfo(logMsgSchedulerStopped)

				return err
			}

			// Infrastructure failures end this pass; the next anchored
			// sweep picks the remaining loans up again.
			s.logError(logMsgSweepFinished, err)
		}
	}
}

// RunSweep executes one sweep pass immediately: it flags every loan that
// started more than one loan period ago and notifies its borrower.
//
// Mid-sweep cancellation stops between loans; every loan processed before
// the stop stays flagged and notified.
func (s *Scheduler) RunSweep(ctx context.Context) (SweepResult, error) {
	start := s.clock()
	cutoff := start.Add(-s.loanPeriod)
	s.logInfo(logMsgSweepStarted, logAttrCutoff, cutoff.Format(time.RFC3339))

	var result SweepResult

	candidates, err := s.ledger.ListOverdueCandidates(ctx, cutoff)
	if err != nil {
		return result, err
	}

	for _, candidate := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		markErr := s.ledger.MarkLoanOverdue(ctx, candidate.ID, candidate.Version)
		if markErr != nil {
			if errors.Is(markErr, ledger.ErrConcurrencyConflict) {
				// The loan was returned (or already flagged) between the
				// scan and the write. Not an error.
				result.Skipped++
				s.logInfo(logMsgLoanClosedMidSweep, logAttrLoanID, candidate.ID)
				s.incrementCounter(metricSweepSkipped)

				continue
			}

			return result, markErr
		}

		result.Flagged++
		s.logInfo(logMsgLoanFlagged,
			logAttrLoanID, candidate.ID, logAttrItemID, candidate.ItemID, logAttrBorrower, candidate.BorrowerID)
		s.incrementCounter(metricLoansFlagged)

		s.notify(ctx, candidate, &result)
	}

	s.recordDuration(metricSweepDuration, time.Since(start))
	s.logInfo(logMsgSweepFinished, logAttrFlagged, result.Flagged, logAttrSkipped, result.Skipped)

	return result, nil
}

// notify dispatches one overdue notice; a failure is logged and counted,
// the flag write is never undone.
func (s *Scheduler) notify(ctx context.Context, candidate ledger.OverdueLoan, result *SweepResult) {
	if s.notifier == nil {
		return
	}

	notice := Notice{
		BorrowerName:  candidate.BorrowerName,
		BorrowerEmail: candidate.BorrowerEmail,
		ItemTitle:     candidate.ItemTitle,
		StartedAt:     candidate.StartedAt,
	}

	if sendErr := s.notifier.Send(ctx, notice); sendErr != nil {
		result.NotifyFailures++
		s.logWarn(logMsgNotifyFailed, logAttrLoanID, candidate.ID, logAttrError, sendErr.Error())
		s.incrementCounter(metricNotifyFailures)
	}
}

func (s *Scheduler) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scheduler) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Scheduler) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, logAttrError, err.Error())
	}
}

func (s *Scheduler) incrementCounter(metric string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(metric, nil)
	}
}

func (s *Scheduler) recordDuration(metric string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordDuration(metric, duration, nil)
	}
}
