package repository

import (
	"context"
	"errors"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrInvalidColumn    = errors.New("非法余额字段")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	return r.conn(tx).WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByIDForUpdate 行锁读取，锁的范围只是这个账户
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func checkColumn(column string) error {
	switch column {
	case model.BalanceMain, model.BalanceAffiliate, model.BalanceVip:
		return nil
	}
	return ErrInvalidColumn
}

// Deduct 条件扣减：余额不足时不更新，一条 UPDATE 完成判断与扣减
func (r *AccountRepository) Deduct(ctx context.Context, tx *gorm.DB, id int64, column string, amount decimal.Decimal) error {
	if err := checkColumn(column); err != nil {
		return err
	}
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND "+column+" >= ?", id, amount).
		Updates(map[string]interface{}{
			column:    gorm.Expr(column+" - ?", amount),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
		return ErrBalanceNotEnough
	}
	return nil
}

// Increase 原子增加，amount 可以为负（回滚净额为负时）
func (r *AccountRepository) Increase(ctx context.Context, tx *gorm.DB, id int64, column string, amount decimal.Decimal) error {
	if err := checkColumn(column); err != nil {
		return err
	}
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			column:    gorm.Expr(column+" + ?", amount),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Transfer 在同一账户的两个余额字段之间划转，源余额不足时失败
func (r *AccountRepository) Transfer(ctx context.Context, tx *gorm.DB, id int64, from, to string, amount decimal.Decimal) error {
	if err := checkColumn(from); err != nil {
		return err
	}
	if err := checkColumn(to); err != nil {
		return err
	}
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND "+from+" >= ?", id, amount).
		Updates(map[string]interface{}{
			from:      gorm.Expr(from+" - ?", amount),
			to:        gorm.Expr(to+" + ?", amount),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
		return ErrBalanceNotEnough
	}
	return nil
}

// PromoteVip 只允许等级上升
func (r *AccountRepository) PromoteVip(ctx context.Context, tx *gorm.DB, id int64, target int) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND vip < ?", id, target).
		Update("vip", target)
	return result.RowsAffected > 0, result.Error
}

func (r *AccountRepository) SetStatus(ctx context.Context, id int64, status, banned bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "banned": banned})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListVipIDs 游标分页取 vip > 0 且可用的账户 ID
func (r *AccountRepository) ListVipIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id > ? AND vip > 0 AND status = ? AND banned = ?", afterID, true, false).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// CountInvited 直属下级数量
func (r *AccountRepository) CountInvited(ctx context.Context, affiliateID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("invited_by_id = ?", affiliateID).
		Count(&n).Error
	return n, err
}
