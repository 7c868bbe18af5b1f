package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

type CountEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, event *types.CountEvent) (*types.CountEvent, error)
	// LatestPerUserAsOf returns, for every user with at least one event on the
	// day containing cutoff, the single most recent event with
	// created_at <= cutoff. Ties on created_at resolve to the larger id.
	LatestPerUserAsOf(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.CountEvent, error)
	LatestForUserAsOf(ctx context.Context, tx *gorm.DB, userID uuid.UUID, cutoff time.Time) (*types.CountEvent, error)
	GetByRange(ctx context.Context, tx *gorm.DB, start, end time.Time, userID *uuid.UUID) ([]*types.CountEvent, error)
	HasActivitySince(ctx context.Context, tx *gorm.DB, since time.Time) (bool, error)
	ActiveDaysForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]time.Time, error)
	DeleteByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	DeleteByDay(ctx context.Context, tx *gorm.DB, day time.Time) (int64, error)
}

type countEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCountEventRepo(db *gorm.DB, baseLog *logger.Logger) CountEventRepo {
	repoLog := baseLog.With("repo", "CountEventRepo")
	return &countEventRepo{db: db, log: repoLog}
}

func (r *countEventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.CountEvent) (*types.CountEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if event == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *countEventRepo) LatestPerUserAsOf(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.CountEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	dayStart := utils.DayStart(cutoff)

	var results []*types.CountEvent
	err := transaction.WithContext(ctx).Raw(`
		SELECT id, user_id, increment, decrement, created_at FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY user_id
				ORDER BY created_at DESC, id DESC
			) AS row_rank
			FROM count_events
			WHERE created_at >= ? AND created_at <= ?
		) ranked
		WHERE row_rank = 1`,
		dayStart, cutoff.UTC(),
	).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *countEventRepo) LatestForUserAsOf(ctx context.Context, tx *gorm.DB, userID uuid.UUID, cutoff time.Time) (*types.CountEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if userID == uuid.Nil {
		return nil, nil
	}

	var results []*types.CountEvent
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, utils.DayStart(cutoff), cutoff.UTC()).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *countEventRepo) GetByRange(ctx context.Context, tx *gorm.DB, start, end time.Time, userID *uuid.UUID) ([]*types.CountEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	query := transaction.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC())
	if userID != nil && *userID != uuid.Nil {
		query = query.Where("user_id = ?", *userID)
	}

	var results []*types.CountEvent
	if err := query.Order("created_at ASC, id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *countEventRepo) HasActivitySince(ctx context.Context, tx *gorm.DB, since time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CountEvent
	if err := transaction.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Limit(1).
		Find(&results).Error; err != nil {
		return false, err
	}
	return len(results) > 0, nil
}

func (r *countEventRepo) ActiveDaysForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var timestamps []time.Time
	if err := transaction.WithContext(ctx).
		Model(&types.CountEvent{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("created_at", &timestamps).Error; err != nil {
		return nil, err
	}

	seen := make(map[time.Time]struct{})
	var days []time.Time
	for _, ts := range timestamps {
		day := utils.DayStart(ts)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	return days, nil
}

func (r *countEventRepo) DeleteByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if userID == uuid.Nil {
		return 0, nil
	}

	result := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&types.CountEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *countEventRepo) DeleteByDay(ctx context.Context, tx *gorm.DB, day time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := transaction.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", utils.DayStart(day), utils.DayEnd(day)).
		Delete(&types.CountEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
