package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/repos"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
)

// MaxCountValue caps a single submission's cumulative entry or exit total.
const MaxCountValue = 1000

type UserStats struct {
	Increment int `json:"increment"`
	Decrement int `json:"decrement"`
	NetCount  int `json:"netCount"`
}

type TodayStats struct {
	TotalIncrement int `json:"totalIncrement"`
	TotalDecrement int `json:"totalDecrement"`
	CurrentInside  int `json:"currentInside"`
}

type CountResult struct {
	CurrentTotal int        `json:"currentTotal"`
	UserStats    UserStats  `json:"userStats"`
	TodayStats   TodayStats `json:"todayStats"`
}

// OccupancyPublisher broadcasts live totals after a successful submission.
// Best effort only; publish failures never fail the request.
type OccupancyPublisher interface {
	PublishTotal(ctx context.Context, total int, at time.Time) error
}

// CountService is the ingestion path. Every accepted submission appends
// exactly one immutable event; correctness of concurrent submissions is
// resolved at read time by last-write-wins aggregation, so there is nothing
// to lock here.
type CountService interface {
	RecordCount(ctx context.Context, userID uuid.UUID, increment, decrement *int) (*CountResult, error)
}

type countService struct {
	db             *gorm.DB
	log            *logger.Logger
	countEventRepo repos.CountEventRepo
	aggregation    AggregationService
	publisher      OccupancyPublisher
}

func NewCountService(db *gorm.DB, log *logger.Logger, countEventRepo repos.CountEventRepo, aggregation AggregationService, publisher OccupancyPublisher) CountService {
	serviceLog := log.With("service", "CountService")
	return &countService{
		db:             db,
		log:            serviceLog,
		countEventRepo: countEventRepo,
		aggregation:    aggregation,
		publisher:      publisher,
	}
}

func (s *countService) RecordCount(ctx context.Context, userID uuid.UUID, increment, decrement *int) (*CountResult, error) {
	if userID == uuid.Nil {
		return nil, NewValidationError("user id is required")
	}

	inc := 0
	if increment != nil {
		inc = *increment
	}
	dec := 0
	if decrement != nil {
		dec = *decrement
	}
	if inc < 0 || inc > MaxCountValue {
		return nil, NewValidationError("increment must be between 0 and %d", MaxCountValue)
	}
	if dec < 0 || dec > MaxCountValue {
		return nil, NewValidationError("decrement must be between 0 and %d", MaxCountValue)
	}

	now := time.Now().UTC()
	event := &types.CountEvent{
		UserID:    userID,
		Increment: inc,
		Decrement: dec,
		CreatedAt: now,
	}
	if _, err := s.countEventRepo.Create(ctx, nil, event); err != nil {
		return nil, fmt.Errorf("error recording count event: %w", err)
	}

	totals, err := s.aggregation.AggregateAsOf(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("error aggregating current totals: %w", err)
	}

	userEvent, err := s.countEventRepo.LatestForUserAsOf(ctx, nil, userID, now)
	if err != nil {
		return nil, fmt.Errorf("error fetching user snapshot: %w", err)
	}
	userStats := UserStats{}
	if userEvent != nil {
		userStats = UserStats{
			Increment: userEvent.Increment,
			Decrement: userEvent.Decrement,
			NetCount:  userEvent.NetCount(),
		}
	}

	if s.publisher != nil {
		if pubErr := s.publisher.PublishTotal(ctx, totals.CurrentInside, now); pubErr != nil {
			s.log.Warn("Failed to publish live total", "error", pubErr)
		}
	}

	return &CountResult{
		CurrentTotal: totals.CurrentInside,
		UserStats:    userStats,
		TodayStats: TodayStats{
			TotalIncrement: totals.IncrementCount,
			TotalDecrement: totals.DecrementCount,
			CurrentInside:  totals.CurrentInside,
		},
	}, nil
}
