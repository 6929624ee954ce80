package repository

import (
	"context"
	"errors"
	"time"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	return r.conn(tx).WithContext(ctx).Create(entry).Error
}

// FindByKey 按幂等键查找，不存在返回 nil
func (r *LedgerRepository) FindByKey(ctx context.Context, tx *gorm.DB, provider, action, providerTxID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.conn(tx).WithContext(ctx).
		Where("provider = ? AND action = ? AND provider_transaction_id = ?", provider, action, providerTxID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// AttachInternalID 回写内部流水号与变动后余额
func (r *LedgerRepository) AttachInternalID(ctx context.Context, tx *gorm.DB, id int64, internalID string, balanceAfter decimal.Decimal) error {
	return r.conn(tx).WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id = ? AND internal_transaction_id IS NULL", id).
		Updates(map[string]interface{}{
			"internal_transaction_id": internalID,
			"balance_after":           balanceAfter,
		}).Error
}

// MarkRolledBack 只标记尚未被回滚的记录，返回是否标记成功
func (r *LedgerRepository) MarkRolledBack(ctx context.Context, tx *gorm.DB, id, rollbackID int64) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id = ? AND rolled_back_by_id IS NULL", id).
		Update("rolled_back_by_id", rollbackID)
	return result.RowsAffected > 0, result.Error
}

type sumRow struct {
	Total decimal.Decimal
}

// SumAmount 指定动作的金额合计，since 为零值时不限时间
func (r *LedgerRepository) SumAmount(ctx context.Context, tx *gorm.DB, accountID int64, action string, since time.Time) (decimal.Decimal, error) {
	q := r.conn(tx).WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("account_id = ? AND action = ?", accountID, action)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var row sumRow
	if err := q.Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// VolumeRow 账户在窗口内的下注量
type VolumeRow struct {
	AccountID int64
	Total     decimal.Decimal
}

// SumBetsByAccount 时间窗口内每个账户的下注合计
func (r *LedgerRepository) SumBetsByAccount(ctx context.Context, since, until time.Time) ([]VolumeRow, error) {
	var rows []VolumeRow
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("account_id, COALESCE(SUM(amount), 0) AS total").
		Where("action = ? AND created_at >= ? AND created_at < ?", model.ActionBet, since, until).
		Group("account_id").
		Order("account_id ASC").
		Scan(&rows).Error
	return rows, err
}

// GameStats 游戏记录汇总
type GameStats struct {
	Bets      int64           `json:"bets"`
	BetTotal  decimal.Decimal `json:"bet_total"`
	WinTotal  decimal.Decimal `json:"win_total"`
	Refunds   decimal.Decimal `json:"refunds"`
	Rollbacks decimal.Decimal `json:"rollbacks"`
}

func (r *LedgerRepository) Stats(ctx context.Context, accountID int64) (*GameStats, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("account_id = ? AND action = ?", accountID, model.ActionBet).
		Count(&count).Error; err != nil {
		return nil, err
	}
	stats := &GameStats{Bets: count}
	sums := []struct {
		action string
		dst    *decimal.Decimal
	}{
		{model.ActionBet, &stats.BetTotal},
		{model.ActionWin, &stats.WinTotal},
		{model.ActionRefund, &stats.Refunds},
		{model.ActionRollback, &stats.Rollbacks},
	}
	for _, s := range sums {
		total, err := r.SumAmount(ctx, nil, accountID, s.action, time.Time{})
		if err != nil {
			return nil, err
		}
		*s.dst = total
	}
	return stats, nil
}

func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("account_id = ?", accountID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}
