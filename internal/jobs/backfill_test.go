package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/services"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	return log
}

type fakeAggregation struct {
	mu           sync.Mutex
	materialized []time.Time
	forced       []bool
	failOn       map[int64]bool
	gate         chan struct{}
}

func (f *fakeAggregation) AggregateAsOf(ctx context.Context, cutoff time.Time) (services.Totals, error) {
	return services.Totals{}, nil
}

func (f *fakeAggregation) MaterializeMinute(ctx context.Context, minute time.Time, force bool) (bool, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil && f.failOn[minute.Unix()] {
		return false, fmt.Errorf("store unavailable for %s", minute)
	}
	f.materialized = append(f.materialized, minute)
	f.forced = append(f.forced, force)
	return true, nil
}

func (f *fakeAggregation) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.materialized)
}

// fakeMinuteStore serves canned gap-detection results; the worker only reads
// FindMissingMinutes and ExistingMinutes.
type fakeMinuteStore struct {
	missing  []time.Time
	existing []time.Time

	mu       sync.Mutex
	entered  chan struct{}
	release  chan struct{}
	scanOnce sync.Once
}

func (f *fakeMinuteStore) FindMissingMinutes(ctx context.Context, tx *gorm.DB, now time.Time, lookbackHours int) ([]time.Time, error) {
	if f.entered != nil {
		f.scanOnce.Do(func() { close(f.entered) })
		<-f.release
	}
	return f.missing, nil
}

func (f *fakeMinuteStore) ExistingMinutes(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]time.Time, error) {
	return f.existing, nil
}

func (f *fakeMinuteStore) Exists(ctx context.Context, tx *gorm.DB, minute time.Time) (bool, error) {
	return false, nil
}

func (f *fakeMinuteStore) Upsert(ctx context.Context, tx *gorm.DB, minute time.Time, incrementCount, decrementCount int) (*types.MinuteStat, error) {
	return &types.MinuteStat{ID: uuid.New(), Minute: minute}, nil
}

func (f *fakeMinuteStore) BatchUpsert(ctx context.Context, tx *gorm.DB, stats []*types.MinuteStat, chunkSize int) error {
	return nil
}

func (f *fakeMinuteStore) Range(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]*types.MinuteStat, error) {
	return nil, nil
}

func (f *fakeMinuteStore) ActiveMinutes(ctx context.Context, tx *gorm.DB, day time.Time, lookbackHours int) ([]*types.MinuteStat, error) {
	return nil, nil
}

func (f *fakeMinuteStore) DeleteByDay(ctx context.Context, tx *gorm.DB, day time.Time) (int64, error) {
	return 0, nil
}

func fastOptions() BackfillOptions {
	opts := DefaultBackfillOptions()
	opts.BatchDelay = 0
	opts.RangeDelay = 0
	return opts
}

func minutesFrom(base time.Time, count int) []time.Time {
	out := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, base.Add(time.Duration(i)*time.Minute))
	}
	return out
}

func TestRunGapHeal_RecomputesEveryMissingMinute(t *testing.T) {
	base := utils.DayStart(time.Now()).Add(-3 * time.Hour)
	store := &fakeMinuteStore{missing: minutesFrom(base, 10)}
	agg := &fakeAggregation{}
	worker := NewBackfillWorker(testLogger(t), agg, store, fastOptions())

	summary, err := worker.RunGapHeal(context.Background())
	if err != nil {
		t.Fatalf("RunGapHeal: %v", err)
	}
	if summary.TotalMinutes != 10 || summary.ProcessedMinutes != 10 {
		t.Fatalf("expected all 10 gaps processed, got %+v", summary)
	}
	if summary.SuccessfulMinutes != 10 || summary.FailedMinutes != 0 {
		t.Fatalf("expected 10 successes, got %+v", summary)
	}
	if agg.count() != 10 {
		t.Fatalf("expected 10 recomputes, got %d", agg.count())
	}
	for _, force := range agg.forced {
		if !force {
			t.Fatalf("backfill must force recomputation")
		}
	}
}

func TestRunGapHeal_NoGapsIsNoop(t *testing.T) {
	store := &fakeMinuteStore{}
	agg := &fakeAggregation{}
	worker := NewBackfillWorker(testLogger(t), agg, store, fastOptions())

	summary, err := worker.RunGapHeal(context.Background())
	if err != nil {
		t.Fatalf("RunGapHeal: %v", err)
	}
	if summary.TotalMinutes != 0 || summary.ProcessedMinutes != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if agg.count() != 0 {
		t.Fatalf("expected no recomputes, got %d", agg.count())
	}
}

func TestRunGapHeal_FailuresDoNotAbortTheRun(t *testing.T) {
	base := utils.DayStart(time.Now()).Add(-2 * time.Hour)
	missing := minutesFrom(base, 10)
	store := &fakeMinuteStore{missing: missing}
	agg := &fakeAggregation{failOn: map[int64]bool{
		missing[2].Unix(): true,
		missing[7].Unix(): true,
	}}
	worker := NewBackfillWorker(testLogger(t), agg, store, fastOptions())

	summary, err := worker.RunGapHeal(context.Background())
	if err != nil {
		t.Fatalf("RunGapHeal: %v", err)
	}
	if summary.SuccessfulMinutes != 8 || summary.FailedMinutes != 2 {
		t.Fatalf("expected 8 successes and 2 failures, got %+v", summary)
	}
	if summary.ProcessedMinutes != 10 {
		t.Fatalf("failures must not shrink the processed count: %+v", summary)
	}
}

func TestBackfill_ConcurrentRunObservesGuard(t *testing.T) {
	store := &fakeMinuteStore{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	agg := &fakeAggregation{}
	worker := NewBackfillWorker(testLogger(t), agg, store, fastOptions())

	done := make(chan error, 1)
	go func() {
		_, err := worker.RunGapHeal(context.Background())
		done <- err
	}()

	<-store.entered
	if _, err := worker.RunGapHeal(context.Background()); !errors.Is(err, ErrBackfillRunning) {
		t.Fatalf("expected ErrBackfillRunning while a run is active, got %v", err)
	}
	day := utils.DayStart(time.Now())
	if _, err := worker.BackfillDateRange(context.Background(), day, day); !errors.Is(err, ErrBackfillRunning) {
		t.Fatalf("expected range backfill to observe the guard, got %v", err)
	}

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The guard releases once the run settles.
	store.entered = nil
	if _, err := worker.RunGapHeal(context.Background()); err != nil {
		t.Fatalf("expected guard release after completion, got %v", err)
	}
}

func TestBackfillDateRange_RejectsInvertedRange(t *testing.T) {
	worker := NewBackfillWorker(testLogger(t), &fakeAggregation{}, &fakeMinuteStore{}, fastOptions())

	start, _ := utils.ParseDay("2026-08-10")
	end, _ := utils.ParseDay("2026-08-01")
	_, err := worker.BackfillDateRange(context.Background(), start, end)
	if err == nil || !services.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBackfillDateRange_RecomputesOnlyMissingMinutes(t *testing.T) {
	day, _ := utils.ParseDay("2026-08-01")
	expected := utils.MinuteBoundaries(day, utils.DayEnd(day))

	// Everything but three scattered minutes is already materialized.
	gaps := map[int64]bool{
		expected[10].Unix():   true,
		expected[600].Unix():  true,
		expected[1439].Unix(): true,
	}
	existing := make([]time.Time, 0, len(expected)-len(gaps))
	for _, m := range expected {
		if !gaps[m.Unix()] {
			existing = append(existing, m)
		}
	}

	store := &fakeMinuteStore{existing: existing}
	agg := &fakeAggregation{}
	worker := NewBackfillWorker(testLogger(t), agg, store, fastOptions())

	summary, err := worker.BackfillDateRange(context.Background(), day, day)
	if err != nil {
		t.Fatalf("BackfillDateRange: %v", err)
	}
	if summary.TotalMinutes != len(expected) {
		t.Fatalf("expected total %d, got %d", len(expected), summary.TotalMinutes)
	}
	if summary.ProcessedMinutes != 3 || summary.SuccessfulMinutes != 3 {
		t.Fatalf("expected exactly the 3 gaps recomputed, got %+v", summary)
	}
	if agg.count() != 3 {
		t.Fatalf("expected 3 recomputes, got %d", agg.count())
	}
	for _, m := range agg.materialized {
		if !gaps[m.Unix()] {
			t.Fatalf("recomputed a minute that was not missing: %s", m)
		}
	}
}
