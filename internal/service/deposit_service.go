package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"
	"gamewallet/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DepositService 充值单生命周期
type DepositService struct {
	db          *gorm.DB
	cfg         *config.Config
	depositRepo *repository.DepositRepository
	accountRepo *repository.AccountRepository
	promoRepo   *repository.PromotionRepository
	settings    *SettingService
	rollover    *RolloverService
	affiliate   *AffiliateService
	events      eventWriter
	clock       clock.Clock
}

func NewDepositService(db *gorm.DB, cfg *config.Config, settings *SettingService, rollover *RolloverService, affiliate *AffiliateService, clk clock.Clock) *DepositService {
	return &DepositService{
		db:          db,
		cfg:         cfg,
		depositRepo: repository.NewDepositRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		promoRepo:   repository.NewPromotionRepository(db),
		settings:    settings,
		rollover:    rollover,
		affiliate:   affiliate,
		events:      eventWriter{repo: repository.NewOutboxRepository(db)},
		clock:       clk,
	}
}

type DepositRequest struct {
	AccountID int64  `json:"-"`
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

type DepositResponse struct {
	DepositNo string          `json:"deposit_no"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Balance   decimal.Decimal `json:"balance,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// CreateDeposit 创建待支付充值单，reference 为空时用充值单号
func (s *DepositService) CreateDeposit(ctx context.Context, req *DepositRequest) (*DepositResponse, error) {
	amount, err := parseAmount(flexString(req.Amount))
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(settings.MinDeposit) {
		return nil, ErrBelowMinimum
	}

	account, err := s.accountRepo.GetByID(ctx, nil, req.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !account.Active() {
		return nil, ErrAccountInactive
	}

	now := s.clock.Now()
	d := &model.Deposit{
		DepositNo: idgen.GenerateDepositNo(),
		Reference: req.Reference,
		AccountID: account.ID,
		Amount:    amount,
		Status:    model.OrderStatusPending,
		ExpiredAt: now.Add(time.Duration(s.cfg.Business.DepositTimeoutMinutes) * time.Minute),
		CreatedAt: now,
	}
	if d.Reference == "" {
		d.Reference = d.DepositNo
	}
	if err := s.depositRepo.Create(ctx, nil, d); err != nil {
		return nil, fmt.Errorf("创建充值单失败: %w", err)
	}

	logger.Info(ctx, "[Deposit] 创建充值单", "deposit_no", d.DepositNo, "account_id", account.ID, "amount", amount.String())
	return &DepositResponse{DepositNo: d.DepositNo, Reference: d.Reference, Amount: amount, Status: d.Status}, nil
}

// ConfirmDeposit 支付网关回调确认到账
//
// 同一事务内：余额入账、创建流水要求、首充 CPA、充值赠送、写 outbox。
// 已到账的单重复回调直接返回当前状态。
func (s *DepositService) ConfirmDeposit(ctx context.Context, reference string) (*DepositResponse, error) {
	if reference == "" {
		return nil, invalid("invalid_reference")
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	d, err := s.depositRepo.GetByReference(ctx, nil, reference)
	if err != nil {
		if errors.Is(err, repository.ErrDepositNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	if d.Status == model.OrderStatusPaid {
		return &DepositResponse{DepositNo: d.DepositNo, Reference: d.Reference, Amount: d.Amount, Status: d.Status, Message: "充值已到账"}, nil
	}

	var resp *DepositResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, d.AccountID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		// 持锁后重读，并发回调只有一个能走到入账
		current, err := s.depositRepo.GetByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		if current.Status == model.OrderStatusPaid {
			resp = &DepositResponse{DepositNo: current.DepositNo, Reference: current.Reference, Amount: current.Amount, Status: current.Status, Message: "充值已到账"}
			return nil
		}

		now := s.clock.Now()
		if err := s.depositRepo.UpdateStatus(ctx, tx, current.ID, current.Status, model.OrderStatusPaid, now); err != nil {
			if errors.Is(err, repository.ErrOrderStatusInvalid) {
				return ErrOrderStatusInvalid
			}
			return err
		}
		if err := s.accountRepo.Increase(ctx, tx, account.ID, model.BalanceMain, current.Amount); err != nil {
			return fmt.Errorf("充值入账失败: %w", err)
		}

		active, multiplier := s.rolloverPolicy(account, settings)
		if active {
			_, err := s.rollover.CreateRequirement(ctx, tx, account.ID, model.RolloverSourceDeposit, current.DepositNo,
				current.Amount.Mul(multiplier), multiplier)
			if err != nil {
				return err
			}
		}

		if _, err := s.affiliate.RunCascade(ctx, tx, account.ID, current.ID, current.Amount); err != nil {
			return err
		}

		bonus, err := s.applyPromo(ctx, tx, account.ID, current, now)
		if err != nil {
			return err
		}

		after, err := s.accountRepo.GetByID(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		err = s.events.write(ctx, tx, s.cfg.Kafka.Topic.Deposit, model.EventDepositPaid, account.ID, current.DepositNo, map[string]interface{}{
			"deposit_no": current.DepositNo,
			"reference":  current.Reference,
			"amount":     current.Amount.String(),
			"bonus":      bonus.String(),
			"balance":    after.Balance.String(),
		})
		if err != nil {
			return err
		}

		resp = &DepositResponse{
			DepositNo: current.DepositNo,
			Reference: current.Reference,
			Amount:    current.Amount,
			Status:    model.OrderStatusPaid,
			Balance:   after.Balance,
		}
		return nil
	})
	if err != nil {
		logger.Error(ctx, "[Deposit] 充值确认失败", "reference", reference, "err", err)
		return nil, err
	}

	logger.Info(ctx, "[Deposit] 充值到账", "deposit_no", resp.DepositNo, "account_id", d.AccountID, "amount", resp.Amount.String())
	return resp, nil
}

// rolloverPolicy 账户覆盖配置优先，否则使用系统默认
func (s *DepositService) rolloverPolicy(account *model.Account, settings *Settings) (bool, decimal.Decimal) {
	active := settings.DefaultRolloverActive
	if account.RolloverActive != nil {
		active = *account.RolloverActive
	}
	multiplier := settings.DefaultRolloverMultiplier
	if account.RolloverMultiplier.Valid {
		multiplier = account.RolloverMultiplier.Decimal
	}
	return active, multiplier
}

// applyPromo 命中第一个进行中的充值活动：取充值金额能达到的最高档位
func (s *DepositService) applyPromo(ctx context.Context, tx *gorm.DB, accountID int64, d *model.Deposit, now time.Time) (decimal.Decimal, error) {
	events, err := s.promoRepo.ActiveDepositEvents(ctx, tx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询充值活动失败: %w", err)
	}
	for _, ev := range events {
		if !ev.Running(now) {
			continue
		}
		var tier *model.DepositPromoTier
		for i := range ev.Tiers {
			t := &ev.Tiers[i]
			if t.DepositAmount.GreaterThan(d.Amount) {
				continue
			}
			if tier == nil || t.DepositAmount.GreaterThan(tier.DepositAmount) {
				tier = t
			}
		}
		if tier == nil || !tier.BonusAmount.IsPositive() {
			return decimal.Zero, nil
		}

		p := &model.DepositPromoParticipation{
			EventID:       ev.ID,
			TierID:        tier.ID,
			AccountID:     accountID,
			DepositID:     d.ID,
			DepositAmount: d.Amount,
			BonusAmount:   tier.BonusAmount,
			CreatedAt:     now,
		}
		if err := s.promoRepo.CreateParticipation(ctx, tx, p); err != nil {
			return decimal.Zero, fmt.Errorf("写入活动参与记录失败: %w", err)
		}
		if err := s.accountRepo.Increase(ctx, tx, accountID, model.BalanceMain, tier.BonusAmount); err != nil {
			return decimal.Zero, err
		}
		if tier.RolloverAmount.IsPositive() {
			multiplier := tier.RolloverAmount.Div(tier.BonusAmount).Round(2)
			_, err := s.rollover.CreateRequirement(ctx, tx, accountID, model.RolloverSourceDepositBonus, d.DepositNo,
				tier.RolloverAmount, multiplier)
			if err != nil {
				return decimal.Zero, err
			}
		}
		logger.Info(ctx, "[Deposit] 充值赠送", "event_id", ev.ID, "account_id", accountID, "bonus", tier.BonusAmount.String())
		return tier.BonusAmount, nil
	}
	return decimal.Zero, nil
}

// ExpirePending 关闭超时未支付的充值单，返回关闭数量
func (s *DepositService) ExpirePending(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	ds, err := s.depositRepo.GetExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, d := range ds {
		err := s.depositRepo.UpdateStatus(ctx, nil, d.ID, model.OrderStatusPending, model.OrderStatusExpired, now)
		if err != nil {
			if !errors.Is(err, repository.ErrOrderStatusInvalid) {
				logger.Error(ctx, "[Deposit] 关闭超时充值单失败", "deposit_no", d.DepositNo, "err", err)
			}
			continue
		}
		closed++
	}
	return closed, nil
}
