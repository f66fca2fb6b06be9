package activity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhartlev/lending-ledger-go/activity"
	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/ledger/memoryengine"
)

func Test_Recorder_WritesTypedEntries(t *testing.T) {
	// arrange
	store := memoryengine.NewLedgerStore()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Second)
	}

	recorder := activity.NewRecorder(store, activity.WithClock(clock))
	borrowerID := int64(7)

	// act
	recorder.Info(context.Background(), "item borrowed", "/rent", &borrowerID)
	recorder.Error(context.Background(), "borrow rejected", "/rent", &borrowerID)
	recorder.Performance(context.Background(), "request handled", "/rent", 42*time.Millisecond)

	// assert
	entries, err := store.RecentActivity(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// newest first: the performance entry was written last
	assert.Equal(t, ledger.ActivityPerformance, entries[0].LogType)
	require.NotNil(t, entries[0].DurationMS)
	assert.Equal(t, int64(42), *entries[0].DurationMS)
	assert.Nil(t, entries[0].BorrowerID)

	assert.Equal(t, ledger.ActivityError, entries[1].LogType)
	require.NotNil(t, entries[1].BorrowerID)
	assert.Equal(t, borrowerID, *entries[1].BorrowerID)

	assert.Equal(t, ledger.ActivityInfo, entries[2].LogType)
	assert.Equal(t, "/rent", entries[2].Endpoint)
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) RecordActivity(context.Context, ledger.ActivityEntry) error {
	return errors.New("connection reset")
}

// countingLogger counts warn-level messages.
type countingLogger struct {
	warns int
}

func (l *countingLogger) Debug(string, ...any) {}
func (l *countingLogger) Info(string, ...any)  {}
func (l *countingLogger) Warn(string, ...any)  { l.warns++ }
func (l *countingLogger) Error(string, ...any) {}

func Test_Recorder_SwallowsStoreFailures_AndLogsThem(t *testing.T) {
	// arrange
	logger := &countingLogger{}
	recorder := activity.NewRecorder(failingStore{}, activity.WithLogger(logger))

	// act: must not panic or surface the failure
	recorder.Info(context.Background(), "item borrowed", "/rent", nil)

	// assert
	assert.Equal(t, 1, logger.warns, "a failed audit write must be logged")
}
