package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/repos"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

type ResetResult struct {
	EventsDeleted  int64 `json:"eventsDeleted"`
	MinutesDropped int64 `json:"minutesDropped"`
}

// MaxRecentResets caps a single audit-log page.
const MaxRecentResets = 200

// AdminService performs the destructive resets. Deleting raw events breaks
// the materialized minutes that covered them, so each reset also drops those
// minute rows; the backfill service recomputes them on its next pass.
type AdminService interface {
	ResetUser(ctx context.Context, actorID, userID uuid.UUID) (*ResetResult, error)
	ResetDate(ctx context.Context, actorID uuid.UUID, day time.Time) (*ResetResult, error)
	RecentResets(ctx context.Context, limit int) ([]*types.AdminResetLog, error)
}

type adminService struct {
	db             *gorm.DB
	log            *logger.Logger
	countEventRepo repos.CountEventRepo
	minuteStatRepo repos.MinuteStatRepo
	resetLogRepo   repos.AdminResetLogRepo
	cache          MinuteSeriesCache
}

func NewAdminService(db *gorm.DB, log *logger.Logger, countEventRepo repos.CountEventRepo, minuteStatRepo repos.MinuteStatRepo, resetLogRepo repos.AdminResetLogRepo, cache MinuteSeriesCache) AdminService {
	serviceLog := log.With("service", "AdminService")
	return &adminService{
		db:             db,
		log:            serviceLog,
		countEventRepo: countEventRepo,
		minuteStatRepo: minuteStatRepo,
		resetLogRepo:   resetLogRepo,
		cache:          cache,
	}
}

func (s *adminService) ResetUser(ctx context.Context, actorID, userID uuid.UUID) (*ResetResult, error) {
	if userID == uuid.Nil {
		return nil, NewValidationError("user id is required")
	}

	result := &ResetResult{}
	var affectedDays []time.Time

	err := s.db.Transaction(func(tx *gorm.DB) error {
		days, err := s.countEventRepo.ActiveDaysForUser(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("error finding affected days: %w", err)
		}
		affectedDays = days

		deleted, err := s.countEventRepo.DeleteByUserID(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("error deleting count events: %w", err)
		}
		result.EventsDeleted = deleted

		for _, day := range days {
			dropped, err := s.minuteStatRepo.DeleteByDay(ctx, tx, day)
			if err != nil {
				return fmt.Errorf("error dropping minute stats for %s: %w", utils.FormatDay(day), err)
			}
			result.MinutesDropped += dropped
		}

		return s.writeAuditLog(ctx, tx, actorID, types.ResetKindUser, map[string]interface{}{
			"user_id":         userID.String(),
			"events_deleted":  result.EventsDeleted,
			"minutes_dropped": result.MinutesDropped,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDays(affectedDays)
	s.log.Info("Reset user data", "user_id", userID, "events_deleted", result.EventsDeleted, "minutes_dropped", result.MinutesDropped)
	return result, nil
}

func (s *adminService) ResetDate(ctx context.Context, actorID uuid.UUID, day time.Time) (*ResetResult, error) {
	dayStart := utils.DayStart(day)
	result := &ResetResult{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		deleted, err := s.countEventRepo.DeleteByDay(ctx, tx, dayStart)
		if err != nil {
			return fmt.Errorf("error deleting count events: %w", err)
		}
		result.EventsDeleted = deleted

		dropped, err := s.minuteStatRepo.DeleteByDay(ctx, tx, dayStart)
		if err != nil {
			return fmt.Errorf("error dropping minute stats: %w", err)
		}
		result.MinutesDropped = dropped

		return s.writeAuditLog(ctx, tx, actorID, types.ResetKindDate, map[string]interface{}{
			"date":            utils.FormatDay(dayStart),
			"events_deleted":  result.EventsDeleted,
			"minutes_dropped": result.MinutesDropped,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDays([]time.Time{dayStart})
	s.log.Info("Reset date data", "date", utils.FormatDay(dayStart), "events_deleted", result.EventsDeleted, "minutes_dropped", result.MinutesDropped)
	return result, nil
}

func (s *adminService) RecentResets(ctx context.Context, limit int) ([]*types.AdminResetLog, error) {
	if limit > MaxRecentResets {
		limit = MaxRecentResets
	}
	entries, err := s.resetLogRepo.GetRecent(ctx, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("error fetching reset audit log: %w", err)
	}
	return entries, nil
}

func (s *adminService) writeAuditLog(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, kind string, details map[string]interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("error marshaling audit details: %w", err)
	}
	entry := &types.AdminResetLog{
		ID:        uuid.New(),
		ActorID:   actorID,
		Kind:      kind,
		Details:   datatypes.JSON(payload),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.resetLogRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("error writing audit log: %w", err)
	}
	return nil
}

func (s *adminService) invalidateDays(days []time.Time) {
	if s.cache == nil {
		return
	}
	for _, day := range days {
		s.cache.InvalidateDate(utils.FormatDay(day))
	}
}
