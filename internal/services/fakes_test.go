package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ovationlabs/venuepulse-backend/internal/types"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

type fakeCountEventRepo struct {
	mu     sync.Mutex
	nextID int64
	events []*types.CountEvent
}

func newFakeCountEventRepo() *fakeCountEventRepo {
	return &fakeCountEventRepo{nextID: 1}
}

func (f *fakeCountEventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.CountEvent) (*types.CountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *event
	stored.ID = f.nextID
	f.nextID++
	f.events = append(f.events, &stored)
	event.ID = stored.ID
	return event, nil
}

func (f *fakeCountEventRepo) LatestPerUserAsOf(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.CountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dayStart := utils.DayStart(cutoff)
	latest := make(map[uuid.UUID]*types.CountEvent)
	for _, e := range f.events {
		if e.CreatedAt.Before(dayStart) || e.CreatedAt.After(cutoff.UTC()) {
			continue
		}
		prev, ok := latest[e.UserID]
		if !ok || e.CreatedAt.After(prev.CreatedAt) || (e.CreatedAt.Equal(prev.CreatedAt) && e.ID > prev.ID) {
			latest[e.UserID] = e
		}
	}
	var out []*types.CountEvent
	for _, e := range latest {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeCountEventRepo) LatestForUserAsOf(ctx context.Context, tx *gorm.DB, userID uuid.UUID, cutoff time.Time) (*types.CountEvent, error) {
	all, _ := f.LatestPerUserAsOf(ctx, tx, cutoff)
	for _, e := range all {
		if e.UserID == userID {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeCountEventRepo) GetByRange(ctx context.Context, tx *gorm.DB, start, end time.Time, userID *uuid.UUID) ([]*types.CountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.CountEvent
	for _, e := range f.events {
		if e.CreatedAt.Before(start.UTC()) || !e.CreatedAt.Before(end.UTC()) {
			continue
		}
		if userID != nil && e.UserID != *userID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeCountEventRepo) HasActivitySince(ctx context.Context, tx *gorm.DB, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if !e.CreatedAt.Before(since.UTC()) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCountEventRepo) ActiveDaysForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[time.Time]struct{})
	var days []time.Time
	for _, e := range f.events {
		if e.UserID != userID {
			continue
		}
		day := utils.DayStart(e.CreatedAt)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	return days, nil
}

func (f *fakeCountEventRepo) DeleteByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*types.CountEvent
	var deleted int64
	for _, e := range f.events {
		if e.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

func (f *fakeCountEventRepo) DeleteByDay(ctx context.Context, tx *gorm.DB, day time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := utils.DayStart(day)
	end := utils.DayEnd(day)
	var kept []*types.CountEvent
	var deleted int64
	for _, e := range f.events {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

type fakeMinuteStatRepo struct {
	mu   sync.Mutex
	rows map[int64]*types.MinuteStat
}

func newFakeMinuteStatRepo() *fakeMinuteStatRepo {
	return &fakeMinuteStatRepo{rows: make(map[int64]*types.MinuteStat)}
}

func (f *fakeMinuteStatRepo) Exists(ctx context.Context, tx *gorm.DB, minute time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[utils.TruncateToMinute(minute).Unix()]
	return ok, nil
}

func (f *fakeMinuteStatRepo) Upsert(ctx context.Context, tx *gorm.DB, minute time.Time, incrementCount, decrementCount int) (*types.MinuteStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	boundary := utils.TruncateToMinute(minute)
	inside := incrementCount - decrementCount
	if inside < 0 {
		inside = 0
	}
	now := time.Now().UTC()
	key := boundary.Unix()
	if existing, ok := f.rows[key]; ok {
		existing.IncrementCount = incrementCount
		existing.DecrementCount = decrementCount
		existing.CurrentInside = inside
		existing.UpdatedAt = now
		return existing, nil
	}
	stat := &types.MinuteStat{
		ID:             uuid.New(),
		Minute:         boundary,
		CurrentInside:  inside,
		IncrementCount: incrementCount,
		DecrementCount: decrementCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.rows[key] = stat
	return stat, nil
}

func (f *fakeMinuteStatRepo) BatchUpsert(ctx context.Context, tx *gorm.DB, stats []*types.MinuteStat, chunkSize int) error {
	for _, s := range stats {
		if _, err := f.Upsert(ctx, tx, s.Minute, s.IncrementCount, s.DecrementCount); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMinuteStatRepo) Range(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]*types.MinuteStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.MinuteStat
	for _, row := range f.rows {
		if !row.Minute.Before(start.UTC()) && row.Minute.Before(end.UTC()) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minute.Before(out[j].Minute) })
	return out, nil
}

func (f *fakeMinuteStatRepo) ActiveMinutes(ctx context.Context, tx *gorm.DB, day time.Time, lookbackHours int) ([]*types.MinuteStat, error) {
	all, err := f.Range(ctx, tx, utils.DayStart(day), utils.DayEnd(day))
	if err != nil {
		return nil, err
	}
	var out []*types.MinuteStat
	for _, row := range all {
		if row.CurrentInside > 0 || row.IncrementCount > 0 {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeMinuteStatRepo) ExistingMinutes(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]time.Time, error) {
	all, err := f.Range(ctx, tx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(all))
	for _, row := range all {
		out = append(out, row.Minute)
	}
	return out, nil
}

func (f *fakeMinuteStatRepo) FindMissingMinutes(ctx context.Context, tx *gorm.DB, now time.Time, lookbackHours int) ([]time.Time, error) {
	end := utils.TruncateToMinute(now)
	start := end.Add(-time.Duration(lookbackHours) * time.Hour)
	existing, err := f.ExistingMinutes(ctx, tx, start, end)
	if err != nil {
		return nil, err
	}
	return utils.MissingMinutes(start, end, existing), nil
}

func (f *fakeMinuteStatRepo) DeleteByDay(ctx context.Context, tx *gorm.DB, day time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := utils.DayStart(day)
	end := utils.DayEnd(day)
	var deleted int64
	for key, row := range f.rows {
		if !row.Minute.Before(start) && row.Minute.Before(end) {
			delete(f.rows, key)
			deleted++
		}
	}
	return deleted, nil
}
