package repository

import (
	"context"
	"time"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AffiliateRepository struct {
	db *gorm.DB
}

func NewAffiliateRepository(db *gorm.DB) *AffiliateRepository {
	return &AffiliateRepository{db: db}
}

func (r *AffiliateRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AffiliateRepository) Create(ctx context.Context, tx *gorm.DB, rec *model.AffiliateCommission) error {
	return r.conn(tx).WithContext(ctx).Create(rec).Error
}

// HasCommission 下级是否已产生过该类型佣金
func (r *AffiliateRepository) HasCommission(ctx context.Context, tx *gorm.DB, userID int64, typ string) (bool, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.AffiliateCommission{}).
		Where("user_id = ? AND type = ?", userID, typ).
		Count(&n).Error
	return n > 0, err
}

// LevelSummary 某一层级的佣金汇总
type LevelSummary struct {
	Level int             `json:"level"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func (r *AffiliateRepository) SummaryByLevel(ctx context.Context, affiliateID int64, from, to time.Time) ([]LevelSummary, error) {
	var rows []LevelSummary
	q := r.db.WithContext(ctx).
		Model(&model.AffiliateCommission{}).
		Select("level, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_user_id = ?", affiliateID)
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to)
	}
	err := q.Group("level").Order("level ASC").Scan(&rows).Error
	return rows, err
}
