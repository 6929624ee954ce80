package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 游戏结算动作
// ============================================================================

const (
	ActionBalance  = "balance"
	ActionBet      = "bet"
	ActionWin      = "win"
	ActionRefund   = "refund"
	ActionRollback = "rollback"
)

// LedgerEntry 游戏流水表
//
// 只追加：除创建后立即回写 internal_transaction_id，以及被回滚时记录 rolled_back_by_id 外不再修改。
// (provider, action, provider_transaction_id) 唯一，是回调幂等的唯一依据。
// 余额查询没有供应商流水号，provider_transaction_id 为 NULL，不参与唯一约束。
type LedgerEntry struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID             int64           `gorm:"index:idx_account_action_created,priority:1;not null" json:"account_id"`
	Provider              string          `gorm:"type:varchar(32);uniqueIndex:uk_provider_action_tx,priority:1;not null" json:"provider"`
	Action                string          `gorm:"type:varchar(16);uniqueIndex:uk_provider_action_tx,priority:2;index:idx_account_action_created,priority:2;not null" json:"action"`
	ProviderTransactionID *string         `gorm:"type:varchar(128);uniqueIndex:uk_provider_action_tx,priority:3" json:"provider_transaction_id"`
	InternalTransactionID *string         `gorm:"type:varchar(64);uniqueIndex" json:"internal_transaction_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	BalanceAfter          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance_after"`
	Currency              string          `gorm:"type:varchar(8);not null" json:"currency"`
	SessionID             string          `gorm:"type:varchar(128)" json:"session_id"`
	GameReference         string          `gorm:"type:varchar(128)" json:"game_reference"`
	RoundID               string          `gorm:"type:varchar(128)" json:"round_id"`
	BetTransactionID      string          `gorm:"type:varchar(128)" json:"bet_transaction_id"`
	// 冲正该记录的回滚或退款流水 id，每条只能冲正一次
	RolledBackByID        *int64          `gorm:"index" json:"rolled_back_by_id"`
	RawPayload            string          `gorm:"type:text" json:"-"`
	CreatedAt             time.Time       `gorm:"autoCreateTime;index:idx_account_action_created,priority:3" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "game_transaction"
}

// Completed 已回写内部流水号，可以直接作为重放结果返回
func (e *LedgerEntry) Completed() bool {
	return e.InternalTransactionID != nil && *e.InternalTransactionID != ""
}
