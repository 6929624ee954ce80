package repository

import (
	"context"
	"errors"
	"time"

	"gamewallet/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRedeemCodeNotFound  = errors.New("兑换码不存在")
	ErrRedeemCodeExhausted = errors.New("兑换码已领完")
)

type PromotionRepository struct {
	db *gorm.DB
}

func NewPromotionRepository(db *gorm.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

func (r *PromotionRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// ---------------------------------------------------------------- 兑换码

func (r *PromotionRepository) GetActiveRedeemCode(ctx context.Context, tx *gorm.DB, code string) (*model.RedeemCode, error) {
	var rc model.RedeemCode
	err := r.conn(tx).WithContext(ctx).Where("code = ? AND is_active = ?", code, true).First(&rc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRedeemCodeNotFound
		}
		return nil, err
	}
	return &rc, nil
}

// CollectRedeemCode 条件自增领取次数，达到上限时不更新
func (r *PromotionRepository) CollectRedeemCode(ctx context.Context, tx *gorm.DB, id int64) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.RedeemCode{}).
		Where("id = ? AND collected < max_collect", id).
		UpdateColumn("collected", gorm.Expr("collected + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRedeemCodeExhausted
	}
	return nil
}

func (r *PromotionRepository) HasRedeemed(ctx context.Context, tx *gorm.DB, codeID, accountID int64) (bool, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.RedeemCodeHistory{}).
		Where("redeem_code_id = ? AND account_id = ?", codeID, accountID).
		Count(&n).Error
	return n > 0, err
}

func (r *PromotionRepository) CreateRedeemHistory(ctx context.Context, tx *gorm.DB, h *model.RedeemCodeHistory) error {
	return r.conn(tx).WithContext(ctx).Create(h).Error
}

// ---------------------------------------------------------------- 返水

// ActiveRakebackSettings min_volume 升序
func (r *PromotionRepository) ActiveRakebackSettings(ctx context.Context) ([]*model.RakebackSetting, error) {
	var ss []*model.RakebackSetting
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("min_volume ASC").
		Find(&ss).Error
	return ss, err
}

func (r *PromotionRepository) HasRakebackSince(ctx context.Context, tx *gorm.DB, accountID, settingID int64, since time.Time) (bool, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.RakebackHistory{}).
		Where("account_id = ? AND rakeback_setting_id = ? AND created_at >= ?", accountID, settingID, since).
		Count(&n).Error
	return n > 0, err
}

func (r *PromotionRepository) CreateRakebackHistory(ctx context.Context, tx *gorm.DB, h *model.RakebackHistory) error {
	return r.conn(tx).WithContext(ctx).Create(h).Error
}

// ---------------------------------------------------------------- 充值活动

// ActiveDepositEvents 带档位的生效活动
func (r *PromotionRepository) ActiveDepositEvents(ctx context.Context, tx *gorm.DB) ([]*model.DepositPromoEvent, error) {
	var es []*model.DepositPromoEvent
	err := r.conn(tx).WithContext(ctx).
		Preload("Tiers").
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&es).Error
	return es, err
}

func (r *PromotionRepository) CreateParticipation(ctx context.Context, tx *gorm.DB, p *model.DepositPromoParticipation) error {
	return r.conn(tx).WithContext(ctx).Create(p).Error
}
