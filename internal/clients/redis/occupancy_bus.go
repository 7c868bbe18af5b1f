package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
)

// OccupancyUpdate is the payload broadcast after each accepted submission so
// dashboard instances can push live totals without polling.
type OccupancyUpdate struct {
	CurrentInside int       `json:"current_inside"`
	At            time.Time `json:"at"`
}

type OccupancyBus interface {
	PublishTotal(ctx context.Context, total int, at time.Time) error
	StartForwarder(ctx context.Context, onUpdate func(u OccupancyUpdate)) error
	Close() error
}

type occupancyBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewOccupancyBus(log *logger.Logger) (OccupancyBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "occupancy"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &occupancyBus{
		log:     log.With("service", "RedisOccupancyBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *occupancyBus) PublishTotal(ctx context.Context, total int, at time.Time) error {
	payload, err := json.Marshal(OccupancyUpdate{CurrentInside: total, At: at.UTC()})
	if err != nil {
		return fmt.Errorf("marshal occupancy update: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish occupancy update: %w", err)
	}
	return nil
}

// StartForwarder subscribes to the occupancy channel and invokes onUpdate for
// each decoded message until ctx is cancelled.
func (b *occupancyBus) StartForwarder(ctx context.Context, onUpdate func(u OccupancyUpdate)) error {
	if onUpdate == nil {
		return fmt.Errorf("onUpdate callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var update OccupancyUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					b.log.Warn("Dropping malformed occupancy message", "error", err)
					continue
				}
				onUpdate(update)
			}
		}
	}()
	return nil
}

func (b *occupancyBus) Close() error {
	return b.rdb.Close()
}
