package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettingID 系统配置只有一行
const SettingID = 1

// Setting 运营可调整的系统配置
type Setting struct {
	ID                        int64           `gorm:"primaryKey" json:"id"`
	MinWithdrawal             decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"min_withdrawal"`
	MinDeposit                decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"min_deposit"`
	DefaultRolloverActive     bool            `gorm:"not null;default:true" json:"default_rollover_active"`
	DefaultRolloverMultiplier decimal.Decimal `gorm:"type:decimal(10,2);not null;default:2" json:"default_rollover_multiplier"`
	UpdatedAt                 time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string {
	return "setting"
}

// All 需要迁移的全部表
func All() []interface{} {
	return []interface{}{
		&Account{},
		&LedgerEntry{},
		&RolloverRequirement{},
		&AffiliateCommission{},
		&VipLevel{},
		&VipHistory{},
		&VipBonusRedemption{},
		&Deposit{},
		&Withdrawal{},
		&RedeemCode{},
		&RedeemCodeHistory{},
		&RakebackSetting{},
		&RakebackHistory{},
		&DepositPromoEvent{},
		&DepositPromoTier{},
		&DepositPromoParticipation{},
		&Setting{},
		&OutboxMessage{},
	}
}
