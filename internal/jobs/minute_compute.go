package jobs

import (
	"context"
	"time"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/services"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

// MinuteComputeWorker materializes the just-elapsed minute once per minute.
// Each tick targets a distinct minute boundary, so overlapping ticks cannot
// race on the same row and no reentrancy guard is needed. Errors are logged
// and swallowed; a failed minute stays unmaterialized until backfill heals it.
type MinuteComputeWorker struct {
	log         *logger.Logger
	aggregation services.AggregationService
	period      time.Duration
}

func NewMinuteComputeWorker(baseLog *logger.Logger, aggregation services.AggregationService) *MinuteComputeWorker {
	return &MinuteComputeWorker{
		log:         baseLog.With("component", "MinuteComputeWorker"),
		aggregation: aggregation,
		period:      time.Minute,
	}
}

func (w *MinuteComputeWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.period)
		defer ticker.Stop()

		// Cover the boundary that elapsed before the process came up.
		w.tick(ctx)

		for {
			select {
			case <-ctx.Done():
				w.log.Info("Minute compute worker stopping")
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

func (w *MinuteComputeWorker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Minute compute panic", "panic", r)
		}
	}()

	target := utils.TruncateToMinute(time.Now())
	started := time.Now()

	written, err := w.aggregation.MaterializeMinute(ctx, target, false)
	duration := time.Since(started)
	if err != nil {
		w.log.Error("Minute compute failed", "minute", target, "duration", duration, "error", err)
		return
	}
	if !written {
		w.log.Debug("Minute already materialized, skipping", "minute", target)
		return
	}
	w.log.Debug("Minute materialized", "minute", target, "duration", duration)
}
