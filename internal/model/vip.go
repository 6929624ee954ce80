package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	VipKindUpgrade = "upgrade"
	VipKindWeekly  = "weekly"
	VipKindMonthly = "monthly"
)

// VipLevel VIP 等级配置，按 tier 升序
type VipLevel struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Tier         int             `gorm:"uniqueIndex;not null" json:"tier"`
	Name         string          `gorm:"type:varchar(64)" json:"name"`
	Goal         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"goal"`
	UpgradeBonus decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"upgrade_bonus"`
	WeeklyBonus  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"weekly_bonus"`
	MonthlyBonus decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"monthly_bonus"`
}

func (VipLevel) TableName() string {
	return "vip_level"
}

// BonusFor 按类型取奖金
func (l *VipLevel) BonusFor(kind string) decimal.Decimal {
	switch kind {
	case VipKindUpgrade:
		return l.UpgradeBonus
	case VipKindWeekly:
		return l.WeeklyBonus
	case VipKindMonthly:
		return l.MonthlyBonus
	}
	return decimal.Zero
}

// VipHistory VIP 奖金发放记录
type VipHistory struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID  int64           `gorm:"index:idx_vip_history_lookup,priority:1;not null" json:"account_id"`
	VipLevelID int64           `gorm:"index:idx_vip_history_lookup,priority:2;not null" json:"vip_level_id"`
	Kind       string          `gorm:"type:varchar(16);index:idx_vip_history_lookup,priority:3;not null" json:"kind"`
	Tier       int             `gorm:"not null" json:"tier"`
	Goal       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"goal"`
	Bonus      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"bonus"`
	CreatedAt  time.Time       `gorm:"index:idx_vip_history_lookup,priority:4" json:"created_at"`
}

func (VipHistory) TableName() string {
	return "vip_history"
}

// VipBonusRedemption VIP 奖金提取到主余额的记录
type VipBonusRedemption struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64           `gorm:"index;not null" json:"account_id"`
	Kind      string          `gorm:"type:varchar(16);not null" json:"kind"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (VipBonusRedemption) TableName() string {
	return "vip_bonus_redemption"
}
