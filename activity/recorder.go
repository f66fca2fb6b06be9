package activity

import (
	"context"
	"time"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

const (
	logMsgRecordFailed = "failed to record activity entry"

	logAttrError    = "error"
	logAttrEndpoint = "endpoint"

	metricRecordFailures = "activity_record_failures_total"
)

// Store is the storage surface the recorder needs.
type Store interface {
	RecordActivity(ctx context.Context, entry ledger.ActivityEntry) error
}

// Recorder writes audit entries to the activity log.
//
// Recording is best-effort: a failed write is logged and counted but never
// surfaces to the caller, so the audit trail cannot break a request.
type Recorder struct {
	store   Store
	logger  ledger.Logger
	metrics ledger.MetricsCollector
	clock   func() time.Time
}

// Option defines a functional option for configuring the Recorder.
type Option func(*Recorder)

// WithLogger configures a logger for the recorder. Without it the recorder is silent.
func WithLogger(logger ledger.Logger) Option {
	return func(recorder *Recorder) {
		recorder.logger = logger
	}
}

// WithMetrics configures a metrics collector for the recorder.
func WithMetrics(metrics ledger.MetricsCollector) Option {
	return func(recorder *Recorder) {
		recorder.metrics = metrics
	}
}

// WithClock overrides the recorder's time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(recorder *Recorder) {
		recorder.clock = clock
	}
}

// NewRecorder creates an activity recorder on top of the given store.
func NewRecorder(store Store, options ...Option) *Recorder {
	recorder := &Recorder{
		store: store,
		clock: time.Now,
	}

	for _, option := range options {
		option(recorder)
	}

	return recorder
}

// Info records an informational audit entry.
func (r *Recorder) Info(ctx context.Context, message string, endpoint string, borrowerID *int64) {
	r.record(ctx, ledger.ActivityEntry{
		LogType:    ledger.ActivityInfo,
		Message:    message,
		Endpoint:   endpoint,
		BorrowerID: borrowerID,
	})
}

// Error records a failure audit entry.
func (r *Recorder) Error(ctx context.Context, message string, endpoint string, borrowerID *int64) {
	r.record(ctx, ledger.ActivityEntry{
		LogType:    ledger.ActivityError,
		Message:    message,
		Endpoint:   endpoint,
		BorrowerID: borrowerID,
	})
}

// Performance records a request timing audit entry.
func (r *Recorder) Performance(ctx context.Context, message string, endpoint string, duration time.Duration) {
	durationMS := duration.Milliseconds()

	r.record(ctx, ledger.ActivityEntry{
		LogType:    ledger.ActivityPerformance,
		Message:    message,
		Endpoint:   endpoint,
		DurationMS: &durationMS,
	})
}

func (r *Recorder) record(ctx context.Context, entry ledger.ActivityEntry) {
	entry.LoggedAt = r.clock()

	if err := r.store.RecordActivity(ctx, entry); err != nil {
		if r.logger != nil {
			r.logger.Warn(logMsgRecordFailed, logAttrError, err.Error(), logAttrEndpoint, entry.Endpoint)
		}

		if r.metrics != nil {
			r.metrics.IncrementCounter(metricRecordFailures, nil)
		}
	}
}
