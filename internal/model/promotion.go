package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RedeemCode 兑换码
type RedeemCode struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	MaxCollect int             `gorm:"not null" json:"max_collect"`
	Collected  int             `gorm:"not null;default:0" json:"collected"`
	Bonus      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"bonus"`
	FreeSpins  int             `gorm:"not null;default:0" json:"free_spins"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (RedeemCode) TableName() string {
	return "redeem_code"
}

type RedeemCodeHistory struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RedeemCodeID int64           `gorm:"uniqueIndex:uk_redeem_code_account,priority:1;not null" json:"redeem_code_id"`
	AccountID    int64           `gorm:"uniqueIndex:uk_redeem_code_account,priority:2;not null" json:"account_id"`
	Bonus        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"bonus"`
	FreeSpins    int             `gorm:"not null;default:0" json:"free_spins"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (RedeemCodeHistory) TableName() string {
	return "redeem_code_history"
}

// RakebackSetting 返水档位，按 min_volume 升序匹配
type RakebackSetting struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	MinVolume  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"min_volume"`
	Percentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"percentage"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
}

func (RakebackSetting) TableName() string {
	return "rakeback_setting"
}

type RakebackHistory struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID         int64           `gorm:"index:idx_rakeback_lookup,priority:1;not null" json:"account_id"`
	RakebackSettingID int64           `gorm:"index:idx_rakeback_lookup,priority:2;not null" json:"rakeback_setting_id"`
	Volume            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"volume"`
	Percentage        decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"percentage"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	CreatedAt         time.Time       `gorm:"index:idx_rakeback_lookup,priority:3" json:"created_at"`
}

func (RakebackHistory) TableName() string {
	return "rakeback_history"
}

// DepositPromoEvent 充值赠送活动
type DepositPromoEvent struct {
	ID        int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string             `gorm:"type:varchar(128);not null" json:"name"`
	IsActive  bool               `gorm:"not null;default:true;index" json:"is_active"`
	StartsAt  *time.Time         `json:"starts_at"`
	EndsAt    *time.Time         `json:"ends_at"`
	Tiers     []DepositPromoTier `gorm:"foreignKey:EventID" json:"tiers"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func (DepositPromoEvent) TableName() string {
	return "deposit_promo_event"
}

// Running 活动在 now 时刻是否生效
func (e *DepositPromoEvent) Running(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	if e.StartsAt != nil && now.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && now.After(*e.EndsAt) {
		return false
	}
	return true
}

type DepositPromoTier struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID        int64           `gorm:"index;not null" json:"event_id"`
	DepositAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"deposit_amount"`
	BonusAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"bonus_amount"`
	RolloverAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"rollover_amount"`
}

func (DepositPromoTier) TableName() string {
	return "deposit_promo_tier"
}

type DepositPromoParticipation struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID       int64           `gorm:"index;not null" json:"event_id"`
	TierID        int64           `gorm:"not null" json:"tier_id"`
	AccountID     int64           `gorm:"index;not null" json:"account_id"`
	DepositID     int64           `gorm:"uniqueIndex;not null" json:"deposit_id"`
	DepositAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"deposit_amount"`
	BonusAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"bonus_amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (DepositPromoParticipation) TableName() string {
	return "deposit_promo_participation"
}
