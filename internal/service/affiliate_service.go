package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/infrastructure/metrics"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AffiliateService 上级 CPA 佣金
type AffiliateService struct {
	cfg           *config.Config
	accountRepo   *repository.AccountRepository
	affiliateRepo *repository.AffiliateRepository
	events        eventWriter
	metrics       *metrics.Metrics
	clock         clock.Clock
}

func NewAffiliateService(db *gorm.DB, cfg *config.Config, m *metrics.Metrics, clk clock.Clock) *AffiliateService {
	return &AffiliateService{
		cfg:           cfg,
		accountRepo:   repository.NewAccountRepository(db),
		affiliateRepo: repository.NewAffiliateRepository(db),
		events:        eventWriter{repo: repository.NewOutboxRepository(db)},
		metrics:       m,
		clock:         clk,
	}
}

// RunCascade 充值确认事务内调用，沿邀请链向上最多 3 级发放 CPA
//
// 下级已有 CPA 记录时直接返回；某一级不满足条件只跳过该级的发放，继续向上。
// 邀请链出现环时停止。
func (s *AffiliateService) RunCascade(ctx context.Context, tx *gorm.DB, depositorID, depositID int64, amount decimal.Decimal) ([]*model.AffiliateCommission, error) {
	paid, err := s.affiliateRepo.HasCommission(ctx, tx, depositorID, model.CommissionTypeCpa)
	if err != nil {
		return nil, fmt.Errorf("查询佣金记录失败: %w", err)
	}
	if paid {
		return nil, nil
	}

	depositor, err := s.accountRepo.GetByID(ctx, tx, depositorID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	visited := map[int64]bool{depositorID: true}
	var created []*model.AffiliateCommission

	next := depositor.InvitedByID
	for level := 1; level <= model.MaxAffiliateLevel && next != nil; level++ {
		if visited[*next] {
			logger.Warn(ctx, "[Affiliate] 邀请链存在环，停止追溯", "depositor_id", depositorID, "account_id", *next)
			break
		}
		visited[*next] = true

		affiliate, err := s.accountRepo.GetByID(ctx, tx, *next)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				break
			}
			return nil, err
		}
		next = affiliate.InvitedByID

		cpa := affiliate.CpaAmount(level)
		if !affiliate.CpaAvailable || amount.LessThan(affiliate.MinDepositForCpa) || !cpa.IsPositive() {
			continue
		}

		if err := s.accountRepo.Increase(ctx, tx, affiliate.ID, model.BalanceAffiliate, cpa); err != nil {
			return nil, fmt.Errorf("发放佣金失败: %w", err)
		}
		rec := &model.AffiliateCommission{
			UserID:          depositorID,
			AffiliateUserID: affiliate.ID,
			Amount:          cpa,
			Level:           level,
			Type:            model.CommissionTypeCpa,
			DepositID:       depositID,
			CreatedAt:       now,
		}
		if err := s.affiliateRepo.Create(ctx, tx, rec); err != nil {
			return nil, fmt.Errorf("写入佣金记录失败: %w", err)
		}
		err = s.events.write(ctx, tx, s.cfg.Kafka.Topic.Affiliate, model.EventCommission, affiliate.ID, "", map[string]interface{}{
			"user_id":    depositorID,
			"deposit_id": depositID,
			"level":      level,
			"amount":     cpa.String(),
		})
		if err != nil {
			return nil, err
		}
		s.metrics.IncCommission(strconv.Itoa(level))
		created = append(created, rec)

		logger.Info(ctx, "[Affiliate] CPA 发放",
			"depositor_id", depositorID, "affiliate_id", affiliate.ID, "level", level, "amount", cpa.String())
	}
	return created, nil
}

// AffiliateStats 上级视角的统计
type AffiliateStats struct {
	Invited          int64                     `json:"invited"`
	AffiliateBalance decimal.Decimal           `json:"affiliate_balance"`
	Levels           []repository.LevelSummary `json:"levels"`
}

// Stats from/to 为零值时不限时间
func (s *AffiliateService) Stats(ctx context.Context, affiliateID int64, from, to time.Time) (*AffiliateStats, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, affiliateID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	invited, err := s.accountRepo.CountInvited(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	levels, err := s.affiliateRepo.SummaryByLevel(ctx, affiliateID, from, to)
	if err != nil {
		return nil, err
	}
	return &AffiliateStats{Invited: invited, AffiliateBalance: account.AffiliateBalance, Levels: levels}, nil
}

// WithdrawCommission 佣金余额转入主余额
func (s *AffiliateService) WithdrawCommission(ctx context.Context, accountID int64, rawAmount string) error {
	amount, err := parseAmount(flexString(rawAmount))
	if err != nil {
		return err
	}
	err = s.accountRepo.Transfer(ctx, nil, accountID, model.BalanceAffiliate, model.BalanceMain, amount)
	if errors.Is(err, repository.ErrBalanceNotEnough) {
		return ErrInsufficientFunds
	}
	if errors.Is(err, repository.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	logger.Info(ctx, "[Affiliate] 佣金转入主余额", "account_id", accountID, "amount", amount.String())
	return nil
}
