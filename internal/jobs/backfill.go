package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/repos"
	"github.com/ovationlabs/venuepulse-backend/internal/services"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

// ErrBackfillRunning is returned when a run is requested while another is
// still active. The caller is expected to drop the request, never queue it.
var ErrBackfillRunning = errors.New("backfill already running")

type BackfillSummary struct {
	TotalMinutes      int           `json:"totalMinutes"`
	ProcessedMinutes  int           `json:"processedMinutes"`
	SuccessfulMinutes int           `json:"successfulMinutes"`
	FailedMinutes     int           `json:"failedMinutes"`
	Duration          time.Duration `json:"duration"`
}

type BackfillOptions struct {
	Interval       time.Duration
	StartOffset    time.Duration
	LookbackHours  int
	BatchSize      int
	BatchDelay     time.Duration
	RangeDelay     time.Duration
	MaxConcurrency int
}

func DefaultBackfillOptions() BackfillOptions {
	return BackfillOptions{
		Interval:       5 * time.Minute,
		StartOffset:    90 * time.Second,
		LookbackHours:  6,
		BatchSize:      30,
		BatchDelay:     500 * time.Millisecond,
		RangeDelay:     time.Second,
		MaxConcurrency: 4,
	}
}

// BackfillWorker heals minute-stat gaps. The scheduled pass detects missing
// minutes in a lookback window; the operator entry point recovers explicit
// date ranges. Both recompute through the same aggregation as the compute
// engine and both settle every minute independently: one failure never
// aborts the rest of a batch or the run.
type BackfillWorker struct {
	log            *logger.Logger
	aggregation    services.AggregationService
	minuteStatRepo repos.MinuteStatRepo
	opts           BackfillOptions

	// Process-local reentrancy guard. A single running instance of this
	// worker is a documented deployment assumption.
	running atomic.Bool
}

func NewBackfillWorker(baseLog *logger.Logger, aggregation services.AggregationService, minuteStatRepo repos.MinuteStatRepo, opts BackfillOptions) *BackfillWorker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.LookbackHours <= 0 {
		opts.LookbackHours = 6
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 30
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	return &BackfillWorker{
		log:            baseLog.With("component", "BackfillWorker"),
		aggregation:    aggregation,
		minuteStatRepo: minuteStatRepo,
		opts:           opts,
	}
}

// Start schedules gap-heal runs. The initial offset keeps the first run off
// the compute engine's minute boundary.
func (w *BackfillWorker) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.StartOffset):
		}

		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()

		w.runScheduled(ctx)
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Backfill worker stopping")
				return
			case <-ticker.C:
				w.runScheduled(ctx)
			}
		}
	}()
}

func (w *BackfillWorker) runScheduled(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Backfill panic", "panic", r)
		}
	}()

	summary, err := w.RunGapHeal(ctx)
	if errors.Is(err, ErrBackfillRunning) {
		w.log.Warn("Skipping scheduled backfill, previous run still active")
		return
	}
	if err != nil {
		w.log.Error("Scheduled backfill failed", "error", err)
		return
	}
	if summary.ProcessedMinutes > 0 {
		w.log.Info("Gap heal completed",
			"processed", summary.ProcessedMinutes,
			"successful", summary.SuccessfulMinutes,
			"failed", summary.FailedMinutes,
			"duration", summary.Duration,
		)
	}
}

// RunGapHeal recomputes every missing minute inside the lookback window.
func (w *BackfillWorker) RunGapHeal(ctx context.Context) (*BackfillSummary, error) {
	if !w.running.CompareAndSwap(false, true) {
		return nil, ErrBackfillRunning
	}
	defer w.running.Store(false)

	ctx, span := otel.Tracer("backfill").Start(ctx, "RunGapHeal")
	defer span.End()

	started := time.Now()

	missing, err := w.minuteStatRepo.FindMissingMinutes(ctx, nil, time.Now(), w.opts.LookbackHours)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("gaps", len(missing)))

	summary := &BackfillSummary{TotalMinutes: len(missing)}
	if len(missing) == 0 {
		summary.Duration = time.Since(started)
		return summary, nil
	}

	successes, failures := w.settleBatches(ctx, missing, w.opts.BatchDelay)
	summary.ProcessedMinutes = len(missing)
	summary.SuccessfulMinutes = successes
	summary.FailedMinutes = failures
	summary.Duration = time.Since(started)
	return summary, nil
}

// BackfillDateRange recomputes the missing minutes of [start, end] inclusive.
// Ranges can be large, so batches back off longer than the scheduled heal.
func (w *BackfillWorker) BackfillDateRange(ctx context.Context, start, end time.Time) (*BackfillSummary, error) {
	startDay := utils.DayStart(start)
	endDay := utils.DayStart(end)
	if startDay.After(endDay) {
		return nil, services.NewValidationError("start date must not be after end date")
	}

	if !w.running.CompareAndSwap(false, true) {
		return nil, ErrBackfillRunning
	}
	defer w.running.Store(false)

	ctx, span := otel.Tracer("backfill").Start(ctx, "BackfillDateRange",
		trace.WithAttributes(
			attribute.String("start", utils.FormatDay(startDay)),
			attribute.String("end", utils.FormatDay(endDay)),
		))
	defer span.End()

	started := time.Now()

	rangeEnd := utils.DayEnd(endDay)
	if now := utils.TruncateToMinute(time.Now()); now.Before(rangeEnd) {
		rangeEnd = now
	}

	expected := utils.MinuteBoundaries(startDay, rangeEnd)
	existing, err := w.minuteStatRepo.ExistingMinutes(ctx, nil, startDay, rangeEnd)
	if err != nil {
		return nil, err
	}
	missing := utils.MissingMinutes(startDay, rangeEnd, existing)

	summary := &BackfillSummary{TotalMinutes: len(expected)}
	if len(missing) == 0 {
		summary.Duration = time.Since(started)
		return summary, nil
	}

	successes, failures := w.settleBatches(ctx, missing, w.opts.RangeDelay)
	summary.ProcessedMinutes = len(missing)
	summary.SuccessfulMinutes = successes
	summary.FailedMinutes = failures
	summary.Duration = time.Since(started)
	return summary, nil
}

// settleBatches processes minutes in chunks with bounded concurrency and
// settle-all semantics, sleeping between chunks to bound store load.
func (w *BackfillWorker) settleBatches(ctx context.Context, minutes []time.Time, delay time.Duration) (successes, failures int) {
	var mu sync.Mutex

	for batchStart := 0; batchStart < len(minutes); batchStart += w.opts.BatchSize {
		batchEnd := batchStart + w.opts.BatchSize
		if batchEnd > len(minutes) {
			batchEnd = len(minutes)
		}
		batch := minutes[batchStart:batchEnd]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.opts.MaxConcurrency)
		for _, minute := range batch {
			g.Go(func() error {
				if _, err := w.aggregation.MaterializeMinute(gctx, minute, true); err != nil {
					w.log.Warn("Failed to recompute minute", "minute", minute, "error", err)
					mu.Lock()
					failures++
					mu.Unlock()
					return nil
				}
				mu.Lock()
				successes++
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if batchEnd < len(minutes) && delay > 0 {
			select {
			case <-ctx.Done():
				return successes, failures
			case <-time.After(delay):
			}
		}
	}
	return successes, failures
}
