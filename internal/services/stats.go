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
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

// MaxHistoryRangeDays caps day-range history queries.
const MaxHistoryRangeDays = 90

type MinuteStatView struct {
	Minute        time.Time `json:"minute"`
	CurrentInside int       `json:"currentInside"`
	Increment     int       `json:"increment"`
	Decrement     int       `json:"decrement"`
}

type StatsResult struct {
	Date         string           `json:"date"`
	CurrentTotal int              `json:"currentTotal"`
	TodayStats   TodayStats       `json:"todayStats"`
	UserStats    UserStats        `json:"userStats"`
	MinuteStats  []MinuteStatView `json:"minuteStats"`
}

type DayHistory struct {
	Date           string `json:"date"`
	TotalIncrement int    `json:"totalIncrement"`
	TotalDecrement int    `json:"totalDecrement"`
	NetCount       int    `json:"netCount"`
}

type HistoryPeriod struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Days      int    `json:"days"`
}

type HistorySummary struct {
	TotalIncrement  int     `json:"totalIncrement"`
	TotalDecrement  int     `json:"totalDecrement"`
	AverageDailyNet float64 `json:"averageDailyNet"`
	PeakDay         string  `json:"peakDay"`
	PeakNetCount    int     `json:"peakNetCount"`
}

type HistoryResult struct {
	History []DayHistory   `json:"history"`
	Period  HistoryPeriod  `json:"period"`
	Summary HistorySummary `json:"summary"`
}

type HealthResult struct {
	Status         string `json:"status"`
	RecentActivity bool   `json:"recentActivity"`
	CurrentDate    string `json:"currentDate"`
	TotalToday     int    `json:"totalToday"`
}

// MinuteSeriesCache is the optional read accelerator for minute series.
// Never authoritative; a miss just falls through to the store.
type MinuteSeriesCache interface {
	Get(date string) ([]*types.MinuteStat, bool)
	Set(date string, stats []*types.MinuteStat)
	InvalidateDate(date string)
}

// StatsService composes the live (exact, event-store) and materialized
// (approximate until healed, minute-stat) read paths.
type StatsService interface {
	GetStats(ctx context.Context, day time.Time, userID uuid.UUID) (*StatsResult, error)
	GetHistory(ctx context.Context, start, end time.Time, userID *uuid.UUID) (*HistoryResult, error)
	Health(ctx context.Context) (*HealthResult, error)
}

type statsService struct {
	db             *gorm.DB
	log            *logger.Logger
	countEventRepo repos.CountEventRepo
	minuteStatRepo repos.MinuteStatRepo
	aggregation    AggregationService
	cache          MinuteSeriesCache
	recentWindow   time.Duration
}

func NewStatsService(db *gorm.DB, log *logger.Logger, countEventRepo repos.CountEventRepo, minuteStatRepo repos.MinuteStatRepo, aggregation AggregationService, cache MinuteSeriesCache, recentWindow time.Duration) StatsService {
	serviceLog := log.With("service", "StatsService")
	if recentWindow <= 0 {
		recentWindow = 30 * time.Minute
	}
	return &statsService{
		db:             db,
		log:            serviceLog,
		countEventRepo: countEventRepo,
		minuteStatRepo: minuteStatRepo,
		aggregation:    aggregation,
		cache:          cache,
		recentWindow:   recentWindow,
	}
}

func (s *statsService) GetStats(ctx context.Context, day time.Time, userID uuid.UUID) (*StatsResult, error) {
	dayStart := utils.DayStart(day)

	// Live totals come from the event store; for past days the cutoff is the
	// end of that day so superseded snapshots still resolve correctly. Future
	// days have no events and would otherwise alias today's live totals.
	cutoff := time.Now().UTC()
	if dayStart.After(utils.DayStart(cutoff)) {
		return nil, NewValidationError("date must not be in the future")
	}
	if dayStart.Before(utils.DayStart(cutoff)) {
		cutoff = utils.DayEnd(day).Add(-time.Nanosecond)
	}

	totals, err := s.aggregation.AggregateAsOf(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("error aggregating totals: %w", err)
	}

	userStats := UserStats{}
	if userID != uuid.Nil {
		userEvent, err := s.countEventRepo.LatestForUserAsOf(ctx, nil, userID, cutoff)
		if err != nil {
			return nil, fmt.Errorf("error fetching user snapshot: %w", err)
		}
		if userEvent != nil {
			userStats = UserStats{
				Increment: userEvent.Increment,
				Decrement: userEvent.Decrement,
				NetCount:  userEvent.NetCount(),
			}
		}
	}

	minuteStats, err := s.minuteSeries(ctx, dayStart)
	if err != nil {
		return nil, err
	}

	return &StatsResult{
		Date:         utils.FormatDay(dayStart),
		CurrentTotal: totals.CurrentInside,
		TodayStats: TodayStats{
			TotalIncrement: totals.IncrementCount,
			TotalDecrement: totals.DecrementCount,
			CurrentInside:  totals.CurrentInside,
		},
		UserStats:   userStats,
		MinuteStats: minuteStats,
	}, nil
}

func (s *statsService) minuteSeries(ctx context.Context, dayStart time.Time) ([]MinuteStatView, error) {
	dateKey := utils.FormatDay(dayStart)

	var stats []*types.MinuteStat
	if s.cache != nil {
		if cached, ok := s.cache.Get(dateKey); ok {
			stats = cached
		}
	}
	if stats == nil {
		fresh, err := s.minuteStatRepo.ActiveMinutes(ctx, nil, dayStart, 6)
		if err != nil {
			return nil, fmt.Errorf("error fetching minute stats: %w", err)
		}
		stats = fresh
		if s.cache != nil {
			s.cache.Set(dateKey, stats)
		}
	}

	views := make([]MinuteStatView, 0, len(stats))
	for _, stat := range stats {
		views = append(views, MinuteStatView{
			Minute:        stat.Minute,
			CurrentInside: stat.CurrentInside,
			Increment:     stat.IncrementCount,
			Decrement:     stat.DecrementCount,
		})
	}
	return views, nil
}

func (s *statsService) GetHistory(ctx context.Context, start, end time.Time, userID *uuid.UUID) (*HistoryResult, error) {
	startDay := utils.DayStart(start)
	endDay := utils.DayStart(end)

	if startDay.After(endDay) {
		return nil, NewValidationError("start date must not be after end date")
	}
	rangeDays := int(endDay.Sub(startDay)/(24*time.Hour)) + 1
	if rangeDays > MaxHistoryRangeDays {
		return nil, NewValidationError("date range must not exceed %d days", MaxHistoryRangeDays)
	}

	events, err := s.countEventRepo.GetByRange(ctx, nil, startDay, utils.DayEnd(endDay), userID)
	if err != nil {
		return nil, fmt.Errorf("error fetching events for history: %w", err)
	}

	history := GroupEventsByDay(events)

	summary := HistorySummary{}
	for _, day := range history {
		summary.TotalIncrement += day.TotalIncrement
		summary.TotalDecrement += day.TotalDecrement
		if summary.PeakDay == "" || day.NetCount > summary.PeakNetCount {
			summary.PeakDay = day.Date
			summary.PeakNetCount = day.NetCount
		}
	}
	if len(history) > 0 {
		summary.AverageDailyNet = float64(summary.TotalIncrement-summary.TotalDecrement) / float64(len(history))
	}

	return &HistoryResult{
		History: history,
		Period: HistoryPeriod{
			StartDate: utils.FormatDay(startDay),
			EndDate:   utils.FormatDay(endDay),
			Days:      rangeDays,
		},
		Summary: summary,
	}, nil
}

func (s *statsService) Health(ctx context.Context) (*HealthResult, error) {
	now := time.Now().UTC()

	recent, err := s.countEventRepo.HasActivitySince(ctx, nil, now.Add(-s.recentWindow))
	if err != nil {
		return nil, fmt.Errorf("error checking recent activity: %w", err)
	}

	totals, err := s.aggregation.AggregateAsOf(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("error aggregating today's totals: %w", err)
	}

	return &HealthResult{
		Status:         "ok",
		RecentActivity: recent,
		CurrentDate:    utils.FormatDay(now),
		TotalToday:     totals.CurrentInside,
	}, nil
}

// GroupEventsByDay buckets events into UTC days and applies the per-user
// last-write-wins rule inside each day. Events must be ordered ascending by
// (created_at, id); the final snapshot per user then wins by overwrite.
func GroupEventsByDay(events []*types.CountEvent) []DayHistory {
	latestByDayUser := make(map[time.Time]map[uuid.UUID]*types.CountEvent)
	var dayOrder []time.Time
	for _, event := range events {
		day := utils.DayStart(event.CreatedAt)
		byUser, ok := latestByDayUser[day]
		if !ok {
			byUser = make(map[uuid.UUID]*types.CountEvent)
			latestByDayUser[day] = byUser
			dayOrder = append(dayOrder, day)
		}
		byUser[event.UserID] = event
	}

	history := make([]DayHistory, 0, len(dayOrder))
	for _, day := range dayOrder {
		entry := DayHistory{Date: utils.FormatDay(day)}
		for _, event := range latestByDayUser[day] {
			entry.TotalIncrement += event.Increment
			entry.TotalDecrement += event.Decrement
		}
		entry.NetCount = entry.TotalIncrement - entry.TotalDecrement
		history = append(history, entry)
	}
	return history
}
