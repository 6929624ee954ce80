package repository

import (
	"context"
	"time"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type VipRepository struct {
	db *gorm.DB
}

func NewVipRepository(db *gorm.DB) *VipRepository {
	return &VipRepository{db: db}
}

func (r *VipRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Levels 全部等级，tier 升序
func (r *VipRepository) Levels(ctx context.Context, tx *gorm.DB) ([]*model.VipLevel, error) {
	var levels []*model.VipLevel
	err := r.conn(tx).WithContext(ctx).Order("tier ASC").Find(&levels).Error
	return levels, err
}

func (r *VipRepository) CreateHistory(ctx context.Context, tx *gorm.DB, h *model.VipHistory) error {
	return r.conn(tx).WithContext(ctx).Create(h).Error
}

// HasHistorySince 窗口内是否已有该等级该类型的发放记录
func (r *VipRepository) HasHistorySince(ctx context.Context, tx *gorm.DB, accountID, levelID int64, kind string, since time.Time) (bool, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.VipHistory{}).
		Where("account_id = ? AND vip_level_id = ? AND kind = ? AND created_at >= ?", accountID, levelID, kind, since).
		Count(&n).Error
	return n > 0, err
}

// HasUpgrade 升级奖金每个等级只发一次
func (r *VipRepository) HasUpgrade(ctx context.Context, tx *gorm.DB, accountID, levelID int64) (bool, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.VipHistory{}).
		Where("account_id = ? AND vip_level_id = ? AND kind = ?", accountID, levelID, model.VipKindUpgrade).
		Count(&n).Error
	return n > 0, err
}

func (r *VipRepository) ListHistory(ctx context.Context, accountID int64, limit int) ([]*model.VipHistory, error) {
	var hs []*model.VipHistory
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&hs).Error
	return hs, err
}

// KindTotals 按类型汇总的金额
type KindTotals map[string]decimal.Decimal

type kindRow struct {
	Kind  string
	Total decimal.Decimal
}

func (r *VipRepository) GrantedByKind(ctx context.Context, tx *gorm.DB, accountID int64) (KindTotals, error) {
	var rows []kindRow
	err := r.conn(tx).WithContext(ctx).
		Model(&model.VipHistory{}).
		Select("kind, COALESCE(SUM(bonus), 0) AS total").
		Where("account_id = ?", accountID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTotals(rows), nil
}

func (r *VipRepository) RedeemedByKind(ctx context.Context, tx *gorm.DB, accountID int64) (KindTotals, error) {
	var rows []kindRow
	err := r.conn(tx).WithContext(ctx).
		Model(&model.VipBonusRedemption{}).
		Select("kind, COALESCE(SUM(amount), 0) AS total").
		Where("account_id = ?", accountID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTotals(rows), nil
}

func (r *VipRepository) CreateRedemption(ctx context.Context, tx *gorm.DB, rec *model.VipBonusRedemption) error {
	return r.conn(tx).WithContext(ctx).Create(rec).Error
}

func toTotals(rows []kindRow) KindTotals {
	out := KindTotals{}
	for _, row := range rows {
		out[row.Kind] = row.Total
	}
	return out
}

// Get 缺失的类型返回 0
func (t KindTotals) Get(kind string) decimal.Decimal {
	if v, ok := t[kind]; ok {
		return v
	}
	return decimal.Zero
}
