package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AdminResetLog records a destructive reset of raw count data. The details
// payload carries the target (user id or day) and the number of rows removed.
type AdminResetLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"actor_id"`
	Kind      string         `gorm:"not null" json:"kind"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (AdminResetLog) TableName() string { return "admin_reset_logs" }

const (
	ResetKindUser = "user"
	ResetKindDate = "date"
)
