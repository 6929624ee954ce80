package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/infrastructure/metrics"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PromotionService 兑换码与每日返水
type PromotionService struct {
	db          *gorm.DB
	accountRepo *repository.AccountRepository
	promoRepo   *repository.PromotionRepository
	ledgerRepo  *repository.LedgerRepository
	metrics     *metrics.Metrics
	clock       clock.Clock
}

func NewPromotionService(db *gorm.DB, m *metrics.Metrics, clk clock.Clock) *PromotionService {
	return &PromotionService{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		promoRepo:   repository.NewPromotionRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		metrics:     m,
		clock:       clk,
	}
}

type RedeemResult struct {
	Code      string          `json:"code"`
	Bonus     decimal.Decimal `json:"bonus"`
	FreeSpins int             `json:"free_spins"`
	Balance   decimal.Decimal `json:"balance"`
}

// Redeem 领取兑换码，次数上限通过条件自增保证
func (s *PromotionService) Redeem(ctx context.Context, accountID int64, code string) (*RedeemResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("invalid_code")
	}

	var res *RedeemResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if !account.Active() {
			return ErrAccountInactive
		}

		rc, err := s.promoRepo.GetActiveRedeemCode(ctx, tx, code)
		if err != nil {
			if errors.Is(err, repository.ErrRedeemCodeNotFound) {
				return ErrRedeemCodeInvalid
			}
			return err
		}
		used, err := s.promoRepo.HasRedeemed(ctx, tx, rc.ID, accountID)
		if err != nil {
			return err
		}
		if used {
			return ErrAlreadyRedeemed
		}
		if err := s.promoRepo.CollectRedeemCode(ctx, tx, rc.ID); err != nil {
			if errors.Is(err, repository.ErrRedeemCodeExhausted) {
				return ErrRedeemCodeLimitReached
			}
			return err
		}

		h := &model.RedeemCodeHistory{
			RedeemCodeID: rc.ID,
			AccountID:    accountID,
			Bonus:        rc.Bonus,
			FreeSpins:    rc.FreeSpins,
			CreatedAt:    s.clock.Now(),
		}
		if err := s.promoRepo.CreateRedeemHistory(ctx, tx, h); err != nil {
			return fmt.Errorf("写入兑换记录失败: %w", err)
		}
		balance := account.Balance
		if rc.Bonus.IsPositive() {
			if err := s.accountRepo.Increase(ctx, tx, accountID, model.BalanceMain, rc.Bonus); err != nil {
				return err
			}
			balance = balance.Add(rc.Bonus)
		}
		res = &RedeemResult{Code: rc.Code, Bonus: rc.Bonus, FreeSpins: rc.FreeSpins, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "[Promotion] 兑换码领取", "account_id", accountID, "code", code, "bonus", res.Bonus.String())
	return res, nil
}

// RunDailyRakeback 统计过去 24 小时下注，按最高可达档位生成返水记录
//
// 只生成记录，不入账。同一账户同一档位 24 小时内只生成一次。
func (s *PromotionService) RunDailyRakeback(ctx context.Context) (*JobReport, error) {
	const job = "rakeback_daily"
	report := &JobReport{}

	settings, err := s.promoRepo.ActiveRakebackSettings(ctx)
	if err != nil {
		s.metrics.ObserveJob(job, 0, 0, 0, err)
		return nil, err
	}
	if len(settings) == 0 {
		s.metrics.ObserveJob(job, 0, 0, 0, nil)
		return report, nil
	}

	now := s.clock.Now()
	since := windowStart(now, 24*time.Hour)
	rows, err := s.ledgerRepo.SumBetsByAccount(ctx, since, now)
	if err != nil {
		s.metrics.ObserveJob(job, 0, 0, 0, err)
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	for _, row := range rows {
		report.Processed++
		var matched *model.RakebackSetting
		for _, st := range settings {
			if st.MinVolume.LessThanOrEqual(row.Total) {
				matched = st
			}
		}
		if matched == nil {
			continue
		}
		exists, err := s.promoRepo.HasRakebackSince(ctx, nil, row.AccountID, matched.ID, since)
		if err != nil {
			report.Failed++
			logger.Error(ctx, "[Promotion] 查询返水记录失败", "account_id", row.AccountID, "err", err)
			continue
		}
		if exists {
			continue
		}
		h := &model.RakebackHistory{
			AccountID:         row.AccountID,
			RakebackSettingID: matched.ID,
			Volume:            row.Total,
			Percentage:        matched.Percentage,
			Amount:            row.Total.Mul(matched.Percentage).Div(hundred).Round(2),
			CreatedAt:         now,
		}
		if err := s.promoRepo.CreateRakebackHistory(ctx, nil, h); err != nil {
			report.Failed++
			logger.Error(ctx, "[Promotion] 写入返水记录失败", "account_id", row.AccountID, "err", err)
			continue
		}
		report.Created++
	}

	s.metrics.ObserveJob(job, report.Processed, report.Created, report.Failed, nil)
	logger.Info(ctx, "[Promotion] 每日返水完成", "processed", report.Processed, "created", report.Created, "failed", report.Failed)
	return report, nil
}
