package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const CommissionTypeCpa = "cpa"

// MaxAffiliateLevel 邀请链最多向上追溯的层数
const MaxAffiliateLevel = 3

// AffiliateCommission 上级佣金记录
// 每个下级最多一组 CPA 记录：首充触发，之后的充值不再发放
type AffiliateCommission struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"uniqueIndex:uk_commission_user_level_type,priority:1;not null" json:"user_id"`
	AffiliateUserID int64           `gorm:"index;not null" json:"affiliate_user_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Level           int             `gorm:"uniqueIndex:uk_commission_user_level_type,priority:2;not null" json:"level"`
	Type            string          `gorm:"type:varchar(16);uniqueIndex:uk_commission_user_level_type,priority:3;not null" json:"type"`
	DepositID       int64           `gorm:"not null" json:"deposit_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AffiliateCommission) TableName() string {
	return "affiliate_history"
}
