package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 玩家账户
// 三个余额字段只通过原子增减修改；账户不删除，禁用通过 status/banned 标记
type Account struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Username         string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Balance          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	AffiliateBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"affiliate_balance"`
	VipBalance       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"vip_balance"`
	Status           bool            `gorm:"not null;default:true" json:"status"`
	Banned           bool            `gorm:"not null;default:false" json:"banned"`
	Vip              int             `gorm:"not null;default:0;index" json:"vip"`

	// 邀请关系，只是引用
	InvitedByID *int64 `gorm:"index" json:"invited_by_id"`

	// CPA 配置（作为上级时生效）
	CpaAvailable     bool            `gorm:"not null;default:false" json:"cpa_available"`
	MinDepositForCpa decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"min_deposit_for_cpa"`
	CpaLevel1        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cpa_level_1"`
	CpaLevel2        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cpa_level_2"`
	CpaLevel3        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cpa_level_3"`

	// 流水要求覆盖配置，为空时使用系统默认
	RolloverActive     *bool               `json:"rollover_active"`
	RolloverMultiplier decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"rollover_multiplier"`

	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// Active 未禁用且未封禁
func (a *Account) Active() bool {
	return a.Status && !a.Banned
}

// CpaAmount 返回指定层级的 CPA 金额，层级超出范围返回 0
func (a *Account) CpaAmount(level int) decimal.Decimal {
	switch level {
	case 1:
		return a.CpaLevel1
	case 2:
		return a.CpaLevel2
	case 3:
		return a.CpaLevel3
	}
	return decimal.Zero
}

// 余额列
const (
	BalanceMain      = "balance"
	BalanceAffiliate = "affiliate_balance"
	BalanceVip       = "vip_balance"
)
