package service

import (
	"context"

	"gamewallet/internal/config"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Settings 运行时生效的业务配置
type Settings struct {
	MinWithdrawal             decimal.Decimal `json:"min_withdrawal"`
	MinDeposit                decimal.Decimal `json:"min_deposit"`
	DefaultRolloverActive     bool            `json:"default_rollover_active"`
	DefaultRolloverMultiplier decimal.Decimal `json:"default_rollover_multiplier"`
}

// SettingService setting 表优先，没有记录时用配置文件默认值
type SettingService struct {
	cfg  *config.Config
	repo *repository.SettingRepository
}

func NewSettingService(db *gorm.DB, cfg *config.Config) *SettingService {
	return &SettingService{cfg: cfg, repo: repository.NewSettingRepository(db)}
}

func (s *SettingService) Snapshot(ctx context.Context) (*Settings, error) {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		b := s.cfg.Business
		return &Settings{
			MinWithdrawal:             decimal.NewFromFloat(b.MinWithdrawal),
			MinDeposit:                decimal.NewFromFloat(b.MinDeposit),
			DefaultRolloverActive:     b.DefaultRolloverActive,
			DefaultRolloverMultiplier: decimal.NewFromFloat(b.DefaultRolloverMultiplier),
		}, nil
	}
	return &Settings{
		MinWithdrawal:             row.MinWithdrawal,
		MinDeposit:                row.MinDeposit,
		DefaultRolloverActive:     row.DefaultRolloverActive,
		DefaultRolloverMultiplier: row.DefaultRolloverMultiplier,
	}, nil
}

func (s *SettingService) Update(ctx context.Context, in Settings) (*Settings, error) {
	if in.MinWithdrawal.IsNegative() || in.MinDeposit.IsNegative() || in.DefaultRolloverMultiplier.IsNegative() {
		return nil, invalid("invalid_setting")
	}
	row := &model.Setting{
		ID:                        model.SettingID,
		MinWithdrawal:             in.MinWithdrawal,
		MinDeposit:                in.MinDeposit,
		DefaultRolloverActive:     in.DefaultRolloverActive,
		DefaultRolloverMultiplier: in.DefaultRolloverMultiplier,
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, err
	}
	return &in, nil
}
