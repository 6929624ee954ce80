package service

import (
	"context"
	"errors"
	"fmt"
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

// 周期奖金的滚动窗口
var periodWindows = map[string]time.Duration{
	model.VipKindWeekly:  7 * 24 * time.Hour,
	model.VipKindMonthly: 30 * 24 * time.Hour,
}

const vipBatchSize = 200

// VipService VIP 等级与奖金
type VipService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	vipRepo     *repository.VipRepository
	ledgerRepo  *repository.LedgerRepository
	events      eventWriter
	metrics     *metrics.Metrics
	clock       clock.Clock
}

func NewVipService(db *gorm.DB, cfg *config.Config, m *metrics.Metrics, clk clock.Clock) *VipService {
	return &VipService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		vipRepo:     repository.NewVipRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		events:      eventWriter{repo: repository.NewOutboxRepository(db)},
		metrics:     m,
		clock:       clk,
	}
}

// Reevaluate 根据累计下注重新计算等级，在下注事务内调用
//
// 从当前等级的下一级到目标等级逐级写 upgrade 记录，跨级时不漏发中间等级的奖金。
func (s *VipService) Reevaluate(ctx context.Context, tx *gorm.DB, accountID int64) ([]*model.VipHistory, error) {
	account, err := s.accountRepo.GetByID(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	volume, err := s.ledgerRepo.SumAmount(ctx, tx, accountID, model.ActionBet, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("统计累计下注失败: %w", err)
	}
	levels, err := s.vipRepo.Levels(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("查询 VIP 等级失败: %w", err)
	}

	target := account.Vip
	for _, l := range levels {
		if l.Goal.LessThanOrEqual(volume) && l.Tier > target {
			target = l.Tier
		}
	}
	if target <= account.Vip {
		return nil, nil
	}

	now := s.clock.Now()
	total := decimal.Zero
	var granted []*model.VipHistory
	for _, l := range levels {
		if l.Tier <= account.Vip || l.Tier > target {
			continue
		}
		done, err := s.vipRepo.HasUpgrade(ctx, tx, accountID, l.ID)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		h := &model.VipHistory{
			AccountID:  accountID,
			VipLevelID: l.ID,
			Kind:       model.VipKindUpgrade,
			Tier:       l.Tier,
			Goal:       l.Goal,
			Bonus:      l.UpgradeBonus,
			CreatedAt:  now,
		}
		if err := s.vipRepo.CreateHistory(ctx, tx, h); err != nil {
			return nil, fmt.Errorf("写入升级记录失败: %w", err)
		}
		granted = append(granted, h)
		total = total.Add(l.UpgradeBonus)
	}

	if total.IsPositive() {
		if err := s.accountRepo.Increase(ctx, tx, accountID, model.BalanceVip, total); err != nil {
			return nil, fmt.Errorf("发放升级奖金失败: %w", err)
		}
	}
	if _, err := s.accountRepo.PromoteVip(ctx, tx, accountID, target); err != nil {
		return nil, fmt.Errorf("更新 VIP 等级失败: %w", err)
	}

	err = s.events.write(ctx, tx, s.cfg.Kafka.Topic.Vip, model.EventVipUpgrade, accountID, "", map[string]interface{}{
		"from_tier": account.Vip,
		"to_tier":   target,
		"bonus":     total.String(),
		"volume":    volume.String(),
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "[Vip] 等级提升",
		"account_id", accountID, "from", account.Vip, "to", target, "bonus", total.String())
	return granted, nil
}

// JobReport 批处理结果
type JobReport struct {
	Processed int `json:"processed_users"`
	Created   int `json:"created_histories"`
	Failed    int `json:"failed"`
}

// RunPeriodicBonus 周/月奖金批处理
//
// 每个账户独立事务，单个账户失败只计数，不影响其余账户。
func (s *VipService) RunPeriodicBonus(ctx context.Context, kind string) (*JobReport, error) {
	window, ok := periodWindows[kind]
	if !ok {
		return nil, invalidf("unsupported_bonus_kind:%s", kind)
	}

	levels, err := s.vipRepo.Levels(ctx, nil)
	if err != nil {
		s.metrics.ObserveJob("vip_"+kind, 0, 0, 0, err)
		return nil, fmt.Errorf("查询 VIP 等级失败: %w", err)
	}
	byTier := make(map[int]*model.VipLevel, len(levels))
	for _, l := range levels {
		byTier[l.Tier] = l
	}

	now := s.clock.Now()
	since := windowStart(now, window)
	report := &JobReport{}

	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveJob("vip_"+kind, report.Processed, report.Created, report.Failed, err)
			return report, err
		}
		ids, err := s.accountRepo.ListVipIDs(ctx, cursor, vipBatchSize)
		if err != nil {
			s.metrics.ObserveJob("vip_"+kind, report.Processed, report.Created, report.Failed, err)
			return report, fmt.Errorf("查询 VIP 账户失败: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			cursor = id
			report.Processed++
			created, err := s.grantPeriodic(ctx, id, kind, byTier, since, now)
			if err != nil {
				report.Failed++
				logger.Error(ctx, "[Vip] 周期奖金发放失败", "account_id", id, "kind", kind, "err", err)
				continue
			}
			if created {
				report.Created++
			}
		}
	}

	s.metrics.ObserveJob("vip_"+kind, report.Processed, report.Created, report.Failed, nil)
	logger.Info(ctx, "[Vip] 周期奖金任务完成",
		"kind", kind, "processed", report.Processed, "created", report.Created, "failed", report.Failed)
	return report, nil
}

func (s *VipService) grantPeriodic(ctx context.Context, accountID int64, kind string, byTier map[int]*model.VipLevel, since, now time.Time) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account.Vip <= 0 || !account.Active() {
			return nil
		}
		level, ok := byTier[account.Vip]
		if !ok {
			return nil
		}
		bonus := level.BonusFor(kind)
		if !bonus.IsPositive() {
			return nil
		}
		exists, err := s.vipRepo.HasHistorySince(ctx, tx, accountID, level.ID, kind, since)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		h := &model.VipHistory{
			AccountID:  accountID,
			VipLevelID: level.ID,
			Kind:       kind,
			Tier:       level.Tier,
			Goal:       level.Goal,
			Bonus:      bonus,
			CreatedAt:  now,
		}
		if err := s.vipRepo.CreateHistory(ctx, tx, h); err != nil {
			return err
		}
		if err := s.accountRepo.Increase(ctx, tx, accountID, model.BalanceVip, bonus); err != nil {
			return err
		}
		created = true
		return s.events.write(ctx, tx, s.cfg.Kafka.Topic.Vip, model.EventVipPeriodicBonus, accountID, "", map[string]interface{}{
			"kind":  kind,
			"tier":  level.Tier,
			"bonus": bonus.String(),
		})
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// RedeemBonus 把某类 VIP 奖金转入主余额，amount 为 0 时转出全部可用额度
func (s *VipService) RedeemBonus(ctx context.Context, accountID int64, kind string, amount decimal.Decimal) (*model.VipBonusRedemption, error) {
	if _, ok := periodWindows[kind]; !ok && kind != model.VipKindUpgrade {
		return nil, invalid("invalid_bonus_kind")
	}
	if amount.IsNegative() {
		return nil, invalid("invalid_amount")
	}

	var rec *model.VipBonusRedemption
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

		granted, err := s.vipRepo.GrantedByKind(ctx, tx, accountID)
		if err != nil {
			return err
		}
		redeemed, err := s.vipRepo.RedeemedByKind(ctx, tx, accountID)
		if err != nil {
			return err
		}
		available := granted.Get(kind).Sub(redeemed.Get(kind))
		if !available.IsPositive() {
			return ErrVipBonusNotAvailable
		}
		if amount.IsZero() {
			amount = available
		}
		if amount.GreaterThan(available) {
			return ErrInsufficientVipBonus
		}

		if err := s.accountRepo.Transfer(ctx, tx, accountID, model.BalanceVip, model.BalanceMain, amount); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientVipBonus
			}
			return err
		}
		rec = &model.VipBonusRedemption{AccountID: accountID, Kind: kind, Amount: amount, CreatedAt: s.clock.Now()}
		return s.vipRepo.CreateRedemption(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "[Vip] 奖金转入余额", "account_id", accountID, "kind", kind, "amount", amount.String())
	return rec, nil
}

// BonusKindSummary 某类奖金的发放/提取情况
type BonusKindSummary struct {
	Granted   decimal.Decimal `json:"granted"`
	Redeemed  decimal.Decimal `json:"redeemed"`
	Available decimal.Decimal `json:"available"`
}

type BonusSummary struct {
	VipBalance decimal.Decimal             `json:"vip_balance"`
	Kinds      map[string]BonusKindSummary `json:"kinds"`
}

func (s *VipService) BonusSummary(ctx context.Context, accountID int64) (*BonusSummary, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	granted, err := s.vipRepo.GrantedByKind(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	redeemed, err := s.vipRepo.RedeemedByKind(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	out := &BonusSummary{VipBalance: account.VipBalance, Kinds: map[string]BonusKindSummary{}}
	for _, kind := range []string{model.VipKindUpgrade, model.VipKindWeekly, model.VipKindMonthly} {
		g, r := granted.Get(kind), redeemed.Get(kind)
		out.Kinds[kind] = BonusKindSummary{Granted: g, Redeemed: r, Available: decimal.Max(g.Sub(r), decimal.Zero)}
	}
	return out, nil
}

// VipProgress 当前等级与下一级进度
type VipProgress struct {
	Tier      int             `json:"tier"`
	Volume    decimal.Decimal `json:"volume"`
	NextTier  int             `json:"next_tier,omitempty"`
	NextGoal  decimal.Decimal `json:"next_goal"`
	Remaining decimal.Decimal `json:"remaining"`
	Percent   decimal.Decimal `json:"percent"`
}

func (s *VipService) Progress(ctx context.Context, accountID int64) (*VipProgress, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	volume, err := s.ledgerRepo.SumAmount(ctx, nil, accountID, model.ActionBet, time.Time{})
	if err != nil {
		return nil, err
	}
	levels, err := s.vipRepo.Levels(ctx, nil)
	if err != nil {
		return nil, err
	}

	p := &VipProgress{Tier: account.Vip, Volume: volume, NextGoal: decimal.Zero, Remaining: decimal.Zero, Percent: decimal.NewFromInt(100)}
	for _, l := range levels {
		if l.Tier <= account.Vip {
			continue
		}
		p.NextTier = l.Tier
		p.NextGoal = l.Goal
		p.Remaining = decimal.Max(l.Goal.Sub(volume), decimal.Zero)
		if l.Goal.IsPositive() {
			p.Percent = decimal.Min(volume.Div(l.Goal).Mul(decimal.NewFromInt(100)), decimal.NewFromInt(100)).Round(2)
		}
		break
	}
	return p, nil
}

// History 最近的 VIP 发放记录
func (s *VipService) History(ctx context.Context, accountID int64, limit int) ([]*model.VipHistory, error) {
	return s.vipRepo.ListHistory(ctx, accountID, limit)
}
