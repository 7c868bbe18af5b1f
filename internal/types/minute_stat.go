package types

import (
	"time"

	"github.com/google/uuid"
)

// MinuteStat is the materialized occupancy aggregate for one UTC minute.
// Rows are written only through upsert keyed on Minute; the compute engine
// and the backfill service both produce them from the same aggregation, so
// rewriting a minute is idempotent.
type MinuteStat struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Minute         time.Time `gorm:"not null;uniqueIndex;index:idx_minute_stats_minute_inside,priority:1" json:"minute"`
	CurrentInside  int       `gorm:"not null;default:0;index:idx_minute_stats_minute_inside,priority:2" json:"current_inside"`
	IncrementCount int       `gorm:"not null;default:0" json:"increment_count"`
	DecrementCount int       `gorm:"not null;default:0" json:"decrement_count"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (MinuteStat) TableName() string { return "minute_stats" }
