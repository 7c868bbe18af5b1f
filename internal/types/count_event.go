package types

import (
	"time"

	"github.com/google/uuid"
)

// CountEvent is an append-only record of the cumulative entry/exit totals a
// safety user reported as of CreatedAt. Rows are never updated; for a given
// user and day the row with the greatest CreatedAt supersedes all earlier
// ones. The integer primary key is strictly increasing and serves as the
// deterministic tie-break when two rows share an exact CreatedAt.
type CountEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_count_events_user_created,priority:1" json:"user_id"`
	Increment int       `gorm:"not null;default:0" json:"increment"`
	Decrement int       `gorm:"not null;default:0" json:"decrement"`
	CreatedAt time.Time `gorm:"not null;index;index:idx_count_events_user_created,priority:2" json:"created_at"`
}

func (CountEvent) TableName() string { return "count_events" }

// NetCount is the occupancy delta this snapshot represents.
func (e *CountEvent) NetCount() int {
	return e.Increment - e.Decrement
}
