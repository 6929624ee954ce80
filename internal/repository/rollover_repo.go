package repository

import (
	"context"
	"time"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RolloverRepository struct {
	db *gorm.DB
}

func NewRolloverRepository(db *gorm.DB) *RolloverRepository {
	return &RolloverRepository{db: db}
}

func (r *RolloverRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *RolloverRepository) Create(ctx context.Context, tx *gorm.DB, req *model.RolloverRequirement) error {
	return r.conn(tx).WithContext(ctx).Create(req).Error
}

// ListActive 按创建顺序返回 ACTIVE 要求；传入事务时加行锁
func (r *RolloverRepository) ListActive(ctx context.Context, tx *gorm.DB, accountID int64) ([]*model.RolloverRequirement, error) {
	q := r.conn(tx).WithContext(ctx)
	if tx != nil {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var reqs []*model.RolloverRequirement
	err := q.Where("account_id = ? AND status = ?", accountID, model.RolloverStatusActive).
		Order("created_at ASC, id ASC").
		Find(&reqs).Error
	return reqs, err
}

// SetProgress 更新已完成流水，达到要求时同时标记 COMPLETED
func (r *RolloverRepository) SetProgress(ctx context.Context, tx *gorm.DB, req *model.RolloverRequirement, completed decimal.Decimal, now time.Time) error {
	updates := map[string]interface{}{
		"amount_completed": completed,
	}
	if completed.GreaterThanOrEqual(req.AmountRequired) {
		updates["status"] = model.RolloverStatusCompleted
		updates["completed_at"] = now
	}
	return r.conn(tx).WithContext(ctx).
		Model(&model.RolloverRequirement{}).
		Where("id = ? AND status = ?", req.ID, model.RolloverStatusActive).
		Updates(updates).Error
}

func (r *RolloverRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*model.RolloverRequirement, error) {
	var reqs []*model.RolloverRequirement
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}
