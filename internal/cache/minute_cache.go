package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
)

// MinuteCache is a best-effort in-process cache of minute-stat series, keyed
// by calendar date. It is never authoritative; expired or missing entries
// fall through to the store. The sweeper is an explicit ticker tied to the
// process context, not a fire-and-forget timer.
type MinuteCache struct {
	log           *logger.Logger
	ttl           time.Duration
	sweepInterval time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type cacheEntry struct {
	stats     []*types.MinuteStat
	expiresAt time.Time
}

func NewMinuteCache(log *logger.Logger, ttl, sweepInterval time.Duration) *MinuteCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &MinuteCache{
		log:           log.With("component", "MinuteCache"),
		ttl:           ttl,
		sweepInterval: sweepInterval,
		entries:       make(map[string]cacheEntry),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the eviction sweeper. It exits on context cancellation or
// Stop, whichever comes first.
func (c *MinuteCache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweep(time.Now())
			}
		}
	}()
}

func (c *MinuteCache) Stop() {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	if started {
		<-c.done
	}
}

func (c *MinuteCache) Get(date string) ([]*types.MinuteStat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[date]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.stats, true
}

func (c *MinuteCache) Set(date string, stats []*types.MinuteStat) {
	copied := make([]*types.MinuteStat, len(stats))
	copy(copied, stats)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[date] = cacheEntry{stats: copied, expiresAt: time.Now().Add(c.ttl)}
}

func (c *MinuteCache) InvalidateDate(date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, date)
}

func (c *MinuteCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *MinuteCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		c.log.Debug("Swept expired cache entries", "evicted", evicted, "remaining", len(c.entries))
	}
}
