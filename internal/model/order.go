package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 充值/提现单状态
const (
	OrderStatusPending  = "PENDING"
	OrderStatusPaid     = "PAID"
	OrderStatusExpired  = "EXPIRED"
	OrderStatusFailed   = "FAILED"
	OrderStatusRejected = "REJECTED"
)

// 超时关闭后网关仍可能确认到账，EXPIRED/FAILED 允许补记 PAID
var depositTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusExpired, OrderStatusFailed},
	OrderStatusExpired: {OrderStatusPaid},
	OrderStatusFailed:  {OrderStatusPaid},
}

var withdrawalTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusRejected},
}

func canTransition(table map[string][]string, from, to string) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

func DepositCanTransition(from, to string) bool {
	return canTransition(depositTransitions, from, to)
}

func WithdrawalCanTransition(from, to string) bool {
	return canTransition(withdrawalTransitions, from, to)
}

// Deposit 充值单，由支付网关回调确认
type Deposit struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DepositNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"deposit_no"`
	Reference string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"reference"`
	AccountID int64           `gorm:"index;not null" json:"account_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status    string          `gorm:"type:varchar(20);index;not null" json:"status"`
	ExpiredAt time.Time       `gorm:"not null" json:"expired_at"`
	PaidAt    *time.Time      `json:"paid_at"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Deposit) TableName() string {
	return "deposit"
}

// Withdrawal 提现单，创建时已从余额扣除，拒绝时退回
type Withdrawal struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	AccountID    int64           `gorm:"index;not null" json:"account_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Destination  string          `gorm:"type:varchar(128)" json:"destination"`
	Status       string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Reason       string          `gorm:"type:varchar(256)" json:"reason"`
	ProcessedAt  *time.Time      `json:"processed_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawal"
}
