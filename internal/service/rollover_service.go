package service

import (
	"context"
	"fmt"
	"time"

	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RolloverService 流水要求：充值/赠送时创建，下注时消耗，提现时校验
type RolloverService struct {
	db           *gorm.DB
	rolloverRepo *repository.RolloverRepository
	ledgerRepo   *repository.LedgerRepository
	clock        clock.Clock
}

func NewRolloverService(db *gorm.DB, clk clock.Clock) *RolloverService {
	return &RolloverService{
		db:           db,
		rolloverRepo: repository.NewRolloverRepository(db),
		ledgerRepo:   repository.NewLedgerRepository(db),
		clock:        clk,
	}
}

// CreateRequirement 新增一条 ACTIVE 要求，金额不为正时不创建
func (s *RolloverService) CreateRequirement(ctx context.Context, tx *gorm.DB, accountID int64, sourceType, sourceID string, amountRequired, multiplier decimal.Decimal) (*model.RolloverRequirement, error) {
	amountRequired = amountRequired.Round(2)
	if !amountRequired.IsPositive() {
		return nil, nil
	}
	req := &model.RolloverRequirement{
		AccountID:       accountID,
		SourceType:      sourceType,
		SourceID:        sourceID,
		AmountRequired:  amountRequired,
		AmountCompleted: decimal.Zero,
		Multiplier:      multiplier,
		Status:          model.RolloverStatusActive,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.rolloverRepo.Create(ctx, tx, req); err != nil {
		return nil, fmt.Errorf("创建流水要求失败: %w", err)
	}
	logger.Info(ctx, "[Rollover] 创建流水要求",
		"account_id", accountID, "source_type", sourceType, "source_id", sourceID,
		"amount_required", amountRequired.String(), "multiplier", multiplier.String())
	return req, nil
}

// Consume 下注金额按先进先出计入 ACTIVE 要求
func (s *RolloverService) Consume(ctx context.Context, tx *gorm.DB, accountID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	reqs, err := s.rolloverRepo.ListActive(ctx, tx, accountID)
	if err != nil {
		return fmt.Errorf("查询流水要求失败: %w", err)
	}
	_, err = s.credit(ctx, tx, reqs, amount)
	return err
}

// credit 依次补足每条要求，最后一条可能只部分计入；返回被标记完成的条数
func (s *RolloverService) credit(ctx context.Context, tx *gorm.DB, reqs []*model.RolloverRequirement, amount decimal.Decimal) (int, error) {
	now := s.clock.Now()
	left := amount
	completed := 0
	for _, req := range reqs {
		if !left.IsPositive() {
			break
		}
		take := decimal.Min(req.Remaining(), left)
		if !take.IsPositive() {
			continue
		}
		progress := req.AmountCompleted.Add(take)
		if err := s.rolloverRepo.SetProgress(ctx, tx, req, progress, now); err != nil {
			return completed, fmt.Errorf("更新流水进度失败: %w", err)
		}
		req.AmountCompleted = progress
		if progress.GreaterThanOrEqual(req.AmountRequired) {
			req.Status = model.RolloverStatusCompleted
			completed++
		}
		left = left.Sub(take)
	}
	return completed, nil
}

// Eligibility 提现校验结果
type Eligibility struct {
	Outstanding decimal.Decimal `json:"outstanding"`
	Volume      decimal.Decimal `json:"volume"`
	Completed   int             `json:"completed"`
}

// CheckWithdrawalEligibility 必须在提现事务内调用
//
// 未完成总额 = 所有 ACTIVE 要求的 amount_required 之和；
// 有效流水 = 最早一条 ACTIVE 要求创建之后的下注合计。
// 流水不足返回 ErrRolloverNotCompleted；否则按先进先出标记完成。
func (s *RolloverService) CheckWithdrawalEligibility(ctx context.Context, tx *gorm.DB, accountID int64, requested decimal.Decimal) (*Eligibility, error) {
	reqs, err := s.rolloverRepo.ListActive(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("查询流水要求失败: %w", err)
	}
	result := &Eligibility{Outstanding: decimal.Zero, Volume: decimal.Zero}
	if len(reqs) == 0 {
		return result, nil
	}

	// ListActive 已按创建时间排序
	earliest := reqs[0].CreatedAt
	for _, req := range reqs {
		result.Outstanding = result.Outstanding.Add(req.AmountRequired)
	}

	volume, err := s.ledgerRepo.SumAmount(ctx, tx, accountID, model.ActionBet, earliest)
	if err != nil {
		return nil, fmt.Errorf("统计下注流水失败: %w", err)
	}
	result.Volume = volume

	if volume.LessThan(result.Outstanding) {
		logger.Info(ctx, "[Rollover] 流水未完成，拒绝提现",
			"account_id", accountID, "requested", requested.String(),
			"outstanding", result.Outstanding.String(), "volume", volume.String())
		return result, ErrRolloverNotCompleted
	}

	completed, err := s.credit(ctx, tx, reqs, volume)
	if err != nil {
		return nil, err
	}
	result.Completed = completed
	return result, nil
}

// RolloverStatus 只读汇总
type RolloverStatus struct {
	Active       int                          `json:"active"`
	Required     decimal.Decimal              `json:"required"`
	Completed    decimal.Decimal              `json:"completed"`
	Remaining    decimal.Decimal              `json:"remaining"`
	Withdrawable bool                         `json:"withdrawable"`
	Items        []*model.RolloverRequirement `json:"items"`
}

func (s *RolloverService) Status(ctx context.Context, accountID int64) (*RolloverStatus, error) {
	reqs, err := s.rolloverRepo.ListByAccount(ctx, accountID, 50)
	if err != nil {
		return nil, err
	}
	st := &RolloverStatus{Required: decimal.Zero, Completed: decimal.Zero, Remaining: decimal.Zero, Items: reqs}
	for _, req := range reqs {
		if req.Status != model.RolloverStatusActive {
			continue
		}
		st.Active++
		st.Required = st.Required.Add(req.AmountRequired)
		st.Completed = st.Completed.Add(req.AmountCompleted)
		st.Remaining = st.Remaining.Add(req.Remaining())
	}
	st.Withdrawable = st.Active == 0
	return st, nil
}

// windowStart 以 now 为终点的时间窗口起点
func windowStart(now time.Time, d time.Duration) time.Time {
	return now.Add(-d)
}
