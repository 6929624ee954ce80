package service

import (
	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/metrics"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Deps 构造服务所需的基础设施；Redis、Metrics 可以为 nil，Clock 为 nil 时使用系统时间
type Deps struct {
	DB        *gorm.DB
	Redis     redis.UniversalClient
	Config    *config.Config
	Metrics   *metrics.Metrics
	Clock     clock.Clock
	Launchers map[string]Launcher
}

// Services 全部业务服务
type Services struct {
	Account    *AccountService
	Settings   *SettingService
	Rollover   *RolloverService
	Vip        *VipService
	Affiliate  *AffiliateService
	Settlement *SettlementService
	Deposit    *DepositService
	Withdrawal *WithdrawalService
	Promotion  *PromotionService
	Launch     *LaunchService
	Outbox     *OutboxService
}

func New(d Deps) *Services {
	clk := d.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	settings := NewSettingService(d.DB, d.Config)
	rollover := NewRolloverService(d.DB, clk)
	vip := NewVipService(d.DB, d.Config, d.Metrics, clk)
	affiliate := NewAffiliateService(d.DB, d.Config, d.Metrics, clk)

	return &Services{
		Account:    NewAccountService(d.DB),
		Settings:   settings,
		Rollover:   rollover,
		Vip:        vip,
		Affiliate:  affiliate,
		Settlement: NewSettlementService(d.DB, d.Config, rollover, vip, d.Metrics, clk),
		Deposit:    NewDepositService(d.DB, d.Config, settings, rollover, affiliate, clk),
		Withdrawal: NewWithdrawalService(d.DB, d.Redis, d.Config, settings, rollover, clk),
		Promotion:  NewPromotionService(d.DB, d.Metrics, clk),
		Launch:     NewLaunchService(d.DB, d.Launchers),
		Outbox:     NewOutboxService(d.DB),
	}
}
