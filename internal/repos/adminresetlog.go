package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
)

type AdminResetLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.AdminResetLog) (*types.AdminResetLog, error)
	GetRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.AdminResetLog, error)
}

type adminResetLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdminResetLogRepo(db *gorm.DB, baseLog *logger.Logger) AdminResetLogRepo {
	repoLog := baseLog.With("repo", "AdminResetLogRepo")
	return &adminResetLogRepo{db: db, log: repoLog}
}

func (r *adminResetLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.AdminResetLog) (*types.AdminResetLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if entry == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *adminResetLogRepo) GetRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.AdminResetLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if limit <= 0 {
		limit = 50
	}

	var results []*types.AdminResetLog
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
