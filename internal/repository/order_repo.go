package repository

import (
	"context"
	"errors"
	"time"

	"gamewallet/internal/model"

	"gorm.io/gorm"
)

var (
	ErrDepositNotFound    = errors.New("充值单不存在")
	ErrWithdrawalNotFound = errors.New("提现单不存在")
	ErrOrderStatusInvalid = errors.New("订单状态不合法")
)

// DepositRepository 充值单
type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *DepositRepository) Create(ctx context.Context, tx *gorm.DB, d *model.Deposit) error {
	return r.conn(tx).WithContext(ctx).Create(d).Error
}

func (r *DepositRepository) GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.Deposit, error) {
	var d model.Deposit
	err := r.conn(tx).WithContext(ctx).Where("reference = ?", reference).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &d, nil
}

// UpdateStatus 条件状态流转，并发回调只有一个能成功
func (r *DepositRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, now time.Time) error {
	if !model.DepositCanTransition(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}
	updates := map[string]interface{}{"status": toStatus}
	if toStatus == model.OrderStatusPaid {
		updates["paid_at"] = now
	}
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Deposit{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}
	return nil
}

func (r *DepositRepository) GetExpired(ctx context.Context, now time.Time, limit int) ([]*model.Deposit, error) {
	var ds []*model.Deposit
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.OrderStatusPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&ds).Error
	return ds, err
}

// CountPaid 已到账充值笔数
func (r *DepositRepository) CountPaid(ctx context.Context, tx *gorm.DB, accountID int64) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.Deposit{}).
		Where("account_id = ? AND status = ?", accountID, model.OrderStatusPaid).
		Count(&n).Error
	return n, err
}

// WithdrawalRepository 提现单
type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, w *model.Withdrawal) error {
	return r.conn(tx).WithContext(ctx).Create(w).Error
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus, reason string, now time.Time) error {
	if !model.WithdrawalCanTransition(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":       toStatus,
			"reason":       reason,
			"processed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}
	return nil
}

func (r *WithdrawalRepository) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	var ws []*model.Withdrawal
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Withdrawal{}).Where("account_id = ?", accountID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&ws).Error
	return ws, total, err
}
