package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/repos"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

// Totals is the venue-wide occupancy aggregate as of some cutoff.
type Totals struct {
	IncrementCount int
	DecrementCount int
	CurrentInside  int
}

// AggregationService is the single aggregation used by the live read path,
// the per-minute compute engine, and backfill. All three therefore converge
// on identical values for the same cutoff.
type AggregationService interface {
	// AggregateAsOf applies the last-write-wins rule: per user, only the most
	// recent event on cutoff's day with created_at <= cutoff counts; earlier
	// submissions from the same user are superseded, not summed.
	AggregateAsOf(ctx context.Context, cutoff time.Time) (Totals, error)
	// MaterializeMinute computes and upserts the stat row for one minute
	// boundary. When force is false an existing row short-circuits the call.
	// Returns whether a row was written.
	MaterializeMinute(ctx context.Context, minute time.Time, force bool) (bool, error)
}

type aggregationService struct {
	db             *gorm.DB
	log            *logger.Logger
	countEventRepo repos.CountEventRepo
	minuteStatRepo repos.MinuteStatRepo
}

func NewAggregationService(db *gorm.DB, log *logger.Logger, countEventRepo repos.CountEventRepo, minuteStatRepo repos.MinuteStatRepo) AggregationService {
	serviceLog := log.With("service", "AggregationService")
	return &aggregationService{
		db:             db,
		log:            serviceLog,
		countEventRepo: countEventRepo,
		minuteStatRepo: minuteStatRepo,
	}
}

func (s *aggregationService) AggregateAsOf(ctx context.Context, cutoff time.Time) (Totals, error) {
	latest, err := s.countEventRepo.LatestPerUserAsOf(ctx, nil, cutoff)
	if err != nil {
		return Totals{}, fmt.Errorf("error fetching latest events per user: %w", err)
	}
	return SumSnapshots(latest), nil
}

func (s *aggregationService) MaterializeMinute(ctx context.Context, minute time.Time, force bool) (bool, error) {
	boundary := utils.TruncateToMinute(minute)

	ctx, span := otel.Tracer("aggregation").Start(ctx, "MaterializeMinute",
		trace.WithAttributes(
			attribute.String("minute", boundary.Format(time.RFC3339)),
			attribute.Bool("force", force),
		))
	defer span.End()

	if !force {
		exists, err := s.minuteStatRepo.Exists(ctx, nil, boundary)
		if err != nil {
			return false, fmt.Errorf("error checking minute stat existence: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	totals, err := s.AggregateAsOf(ctx, boundary)
	if err != nil {
		return false, err
	}

	if _, err := s.minuteStatRepo.Upsert(ctx, nil, boundary, totals.IncrementCount, totals.DecrementCount); err != nil {
		return false, fmt.Errorf("error upserting minute stat: %w", err)
	}
	return true, nil
}

// SumSnapshots folds per-user latest snapshots into venue totals. Occupancy
// is clamped at zero; devices can report more exits than entries.
func SumSnapshots(latest []*types.CountEvent) Totals {
	var totals Totals
	for _, event := range latest {
		totals.IncrementCount += event.Increment
		totals.DecrementCount += event.Decrement
	}
	totals.CurrentInside = totals.IncrementCount - totals.DecrementCount
	if totals.CurrentInside < 0 {
		totals.CurrentInside = 0
	}
	return totals
}
