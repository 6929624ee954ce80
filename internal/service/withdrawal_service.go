package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/lock"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"
	"gamewallet/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawalService 提现申请与审核
type WithdrawalService struct {
	db             *gorm.DB
	redisClient    redis.UniversalClient
	cfg            *config.Config
	withdrawalRepo *repository.WithdrawalRepository
	accountRepo    *repository.AccountRepository
	settings       *SettingService
	rollover       *RolloverService
	events         eventWriter
	clock          clock.Clock
}

// NewWithdrawalService redisClient 可以为 nil，此时只依赖数据库行锁
func NewWithdrawalService(db *gorm.DB, redisClient redis.UniversalClient, cfg *config.Config, settings *SettingService, rollover *RolloverService, clk clock.Clock) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		accountRepo:    repository.NewAccountRepository(db),
		settings:       settings,
		rollover:       rollover,
		events:         eventWriter{repo: repository.NewOutboxRepository(db)},
		clock:          clk,
	}
}

type WithdrawalRequest struct {
	AccountID   int64  `json:"-"`
	Amount      string `json:"amount" binding:"required"`
	Destination string `json:"destination"`
}

type WithdrawalResponse struct {
	WithdrawalNo string          `json:"withdrawal_no"`
	ID           int64           `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	Balance      decimal.Decimal `json:"balance"`
}

// RequestWithdrawal 流水校验、扣款、建单在同一事务
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, req *WithdrawalRequest) (*WithdrawalResponse, error) {
	amount, err := parseAmount(flexString(req.Amount))
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(settings.MinWithdrawal) {
		return nil, ErrBelowMinimum
	}

	if s.redisClient != nil {
		l := lock.NewWithdrawLock(s.redisClient, req.AccountID, uuid.NewString())
		if err := l.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			if errors.Is(err, lock.ErrLockFailed) {
				return nil, ErrBusy
			}
			return nil, fmt.Errorf("获取提现锁失败: %w", err)
		}
		defer l.Unlock(ctx)
	}

	var resp *WithdrawalResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if !account.Active() {
			return ErrAccountInactive
		}
		if account.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		if _, err := s.rollover.CheckWithdrawalEligibility(ctx, tx, account.ID, amount); err != nil {
			return err
		}

		if err := s.accountRepo.Deduct(ctx, tx, account.ID, model.BalanceMain, amount); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientFunds
			}
			return err
		}

		now := s.clock.Now()
		w := &model.Withdrawal{
			WithdrawalNo: idgen.GenerateWithdrawalNo(),
			AccountID:    account.ID,
			Amount:       amount,
			Destination:  req.Destination,
			Status:       model.OrderStatusPending,
			CreatedAt:    now,
		}
		if err := s.withdrawalRepo.Create(ctx, tx, w); err != nil {
			return fmt.Errorf("创建提现单失败: %w", err)
		}

		balance := account.Balance.Sub(amount)
		err = s.events.write(ctx, tx, s.cfg.Kafka.Topic.Withdrawal, model.EventWithdrawal, account.ID, w.WithdrawalNo, map[string]interface{}{
			"withdrawal_no": w.WithdrawalNo,
			"status":        w.Status,
			"amount":        amount.String(),
			"balance":       balance.String(),
		})
		if err != nil {
			return err
		}
		resp = &WithdrawalResponse{WithdrawalNo: w.WithdrawalNo, ID: w.ID, Amount: amount, Status: w.Status, Balance: balance}
		return nil
	})
	if err != nil {
		logger.Warn(ctx, "[Withdrawal] 提现申请失败", "account_id", req.AccountID, "amount", amount.String(), "err", err)
		return nil, err
	}

	logger.Info(ctx, "[Withdrawal] 提现申请成功", "withdrawal_no", resp.WithdrawalNo, "account_id", req.AccountID, "amount", amount.String())
	return resp, nil
}

// Approve 审核通过，款项已在申请时扣除
func (s *WithdrawalService) Approve(ctx context.Context, id int64) (*model.Withdrawal, error) {
	return s.process(ctx, id, model.OrderStatusPaid, "")
}

// Reject 审核拒绝，金额退回主余额
func (s *WithdrawalService) Reject(ctx context.Context, id int64, reason string) (*model.Withdrawal, error) {
	return s.process(ctx, id, model.OrderStatusRejected, reason)
}

func (s *WithdrawalService) process(ctx context.Context, id int64, to, reason string) (*model.Withdrawal, error) {
	var out *model.Withdrawal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.withdrawalRepo.GetByID(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrWithdrawalNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}
		now := s.clock.Now()
		if err := s.withdrawalRepo.UpdateStatus(ctx, tx, w.ID, w.Status, to, reason, now); err != nil {
			if errors.Is(err, repository.ErrOrderStatusInvalid) {
				return ErrOrderStatusInvalid
			}
			return err
		}
		if to == model.OrderStatusRejected {
			if err := s.accountRepo.Increase(ctx, tx, w.AccountID, model.BalanceMain, w.Amount); err != nil {
				return fmt.Errorf("退回提现金额失败: %w", err)
			}
		}
		w.Status = to
		w.Reason = reason
		w.ProcessedAt = &now
		out = w
		return s.events.write(ctx, tx, s.cfg.Kafka.Topic.Withdrawal, model.EventWithdrawal, w.AccountID, "", map[string]interface{}{
			"withdrawal_no": w.WithdrawalNo,
			"status":        to,
			"amount":        w.Amount.String(),
			"reason":        reason,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "[Withdrawal] 提现审核", "withdrawal_no", out.WithdrawalNo, "status", to)
	return out, nil
}

func (s *WithdrawalService) List(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	return s.withdrawalRepo.ListByAccount(ctx, accountID, page, pageSize)
}
