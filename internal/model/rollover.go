package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RolloverStatusActive    = "ACTIVE"
	RolloverStatusCompleted = "COMPLETED"
)

const (
	RolloverSourceDeposit      = "deposit"
	RolloverSourceDepositBonus = "deposit_bonus"
)

// RolloverRequirement 流水要求
// 同一账户可同时存在多条 ACTIVE 记录，按创建顺序先进先出消耗
type RolloverRequirement struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID       int64           `gorm:"index:idx_rollover_account_status,priority:1;not null" json:"account_id"`
	SourceType      string          `gorm:"type:varchar(32);not null" json:"source_type"`
	SourceID        string          `gorm:"type:varchar(64);not null" json:"source_id"`
	AmountRequired  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount_required"`
	AmountCompleted decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount_completed"`
	Multiplier      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"multiplier"`
	Status          string          `gorm:"type:varchar(16);index:idx_rollover_account_status,priority:2;not null" json:"status"`
	CompletedAt     *time.Time      `json:"completed_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RolloverRequirement) TableName() string {
	return "rollover_requirement"
}

// Remaining 剩余未完成的流水
func (r *RolloverRequirement) Remaining() decimal.Decimal {
	left := r.AmountRequired.Sub(r.AmountCompleted)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
