package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

type MinuteStatRepo interface {
	Exists(ctx context.Context, tx *gorm.DB, minute time.Time) (bool, error)
	// Upsert inserts or overwrites the row for minute. current_inside is
	// always recomputed as max(0, incrementCount-decrementCount); concurrent
	// writers converge because both derive the same values from the same
	// source events.
	Upsert(ctx context.Context, tx *gorm.DB, minute time.Time, incrementCount, decrementCount int) (*types.MinuteStat, error)
	BatchUpsert(ctx context.Context, tx *gorm.DB, stats []*types.MinuteStat, chunkSize int) error
	Range(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]*types.MinuteStat, error)
	ActiveMinutes(ctx context.Context, tx *gorm.DB, day time.Time, lookbackHours int) ([]*types.MinuteStat, error)
	ExistingMinutes(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]time.Time, error)
	FindMissingMinutes(ctx context.Context, tx *gorm.DB, now time.Time, lookbackHours int) ([]time.Time, error)
	DeleteByDay(ctx context.Context, tx *gorm.DB, day time.Time) (int64, error)
}

type minuteStatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMinuteStatRepo(db *gorm.DB, baseLog *logger.Logger) MinuteStatRepo {
	repoLog := baseLog.With("repo", "MinuteStatRepo")
	return &minuteStatRepo{db: db, log: repoLog}
}

func (r *minuteStatRepo) Exists(ctx context.Context, tx *gorm.DB, minute time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.MinuteStat
	if err := transaction.WithContext(ctx).
		Where("minute = ?", utils.TruncateToMinute(minute)).
		Limit(1).
		Find(&results).Error; err != nil {
		return false, err
	}
	return len(results) > 0, nil
}

func (r *minuteStatRepo) Upsert(ctx context.Context, tx *gorm.DB, minute time.Time, incrementCount, decrementCount int) (*types.MinuteStat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	currentInside := incrementCount - decrementCount
	if currentInside < 0 {
		currentInside = 0
	}

	now := time.Now().UTC()
	stat := &types.MinuteStat{
		ID:             uuid.New(),
		Minute:         utils.TruncateToMinute(minute),
		CurrentInside:  currentInside,
		IncrementCount: incrementCount,
		DecrementCount: decrementCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "minute"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_inside", "increment_count", "decrement_count", "updated_at"}),
		}).
		Create(stat).Error; err != nil {
		return nil, err
	}
	return stat, nil
}

// BatchUpsert writes stats in chunks. A failed chunk falls back to per-item
// upserts so one bad row cannot lose the rest of its chunk.
func (r *minuteStatRepo) BatchUpsert(ctx context.Context, tx *gorm.DB, stats []*types.MinuteStat, chunkSize int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if chunkSize <= 0 {
		chunkSize = 50
	}

	var lastErr error
	for start := 0; start < len(stats); start += chunkSize {
		end := start + chunkSize
		if end > len(stats) {
			end = len(stats)
		}
		chunk := stats[start:end]

		err := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "minute"}},
				DoUpdates: clause.AssignmentColumns([]string{"current_inside", "increment_count", "decrement_count", "updated_at"}),
			}).
			Create(&chunk).Error
		if err == nil {
			continue
		}

		r.log.Warn("Chunk upsert failed, retrying per item", "chunk_start", start, "chunk_size", len(chunk), "error", err)
		for _, stat := range chunk {
			if _, itemErr := r.Upsert(ctx, transaction, stat.Minute, stat.IncrementCount, stat.DecrementCount); itemErr != nil {
				r.log.Warn("Per-item upsert failed", "minute", stat.Minute, "error", itemErr)
				lastErr = itemErr
			}
		}
	}
	return lastErr
}

func (r *minuteStatRepo) Range(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]*types.MinuteStat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.MinuteStat
	if err := transaction.WithContext(ctx).
		Where("minute >= ? AND minute < ?", start.UTC(), end.UTC()).
		Order("minute ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ActiveMinutes returns the day's minutes that had someone inside or inbound
// activity, bounded to the lookback window to keep chart payloads small.
func (r *minuteStatRepo) ActiveMinutes(ctx context.Context, tx *gorm.DB, day time.Time, lookbackHours int) ([]*types.MinuteStat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if lookbackHours <= 0 {
		lookbackHours = 6
	}

	start := utils.DayStart(day)
	end := utils.DayEnd(day)
	windowStart := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	if windowStart.After(start) && windowStart.Before(end) {
		start = utils.TruncateToMinute(windowStart)
	}

	var results []*types.MinuteStat
	if err := transaction.WithContext(ctx).
		Where("minute >= ? AND minute < ?", start, end).
		Where("current_inside > 0 OR increment_count > 0").
		Order("minute ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *minuteStatRepo) ExistingMinutes(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var minutes []time.Time
	if err := transaction.WithContext(ctx).
		Model(&types.MinuteStat{}).
		Where("minute >= ? AND minute < ?", start.UTC(), end.UTC()).
		Order("minute ASC").
		Pluck("minute", &minutes).Error; err != nil {
		return nil, err
	}
	return minutes, nil
}

// FindMissingMinutes compares every expected boundary in [now-lookback, now)
// against stored rows and returns the gaps.
func (r *minuteStatRepo) FindMissingMinutes(ctx context.Context, tx *gorm.DB, now time.Time, lookbackHours int) ([]time.Time, error) {
	if lookbackHours <= 0 {
		lookbackHours = 6
	}

	end := utils.TruncateToMinute(now)
	start := end.Add(-time.Duration(lookbackHours) * time.Hour)

	existing, err := r.ExistingMinutes(ctx, tx, start, end)
	if err != nil {
		return nil, err
	}
	return utils.MissingMinutes(start, end, existing), nil
}

func (r *minuteStatRepo) DeleteByDay(ctx context.Context, tx *gorm.DB, day time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := transaction.WithContext(ctx).
		Where("minute >= ? AND minute < ?", utils.DayStart(day), utils.DayEnd(day)).
		Delete(&types.MinuteStat{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
