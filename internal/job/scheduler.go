package job

import (
	"context"
	"fmt"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/lock"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/model"
	"gamewallet/internal/service"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// VipBonusRunner 周/月奖金批处理
type VipBonusRunner interface {
	RunPeriodicBonus(ctx context.Context, kind string) (*service.JobReport, error)
}

// RakebackRunner 每日返水批处理
type RakebackRunner interface {
	RunDailyRakeback(ctx context.Context) (*service.JobReport, error)
}

// Scheduler 定时批处理，多实例部署时通过 Redis 锁保证同一时刻只有一个实例执行
type Scheduler struct {
	cfg         config.SchedulerConfig
	vip         VipBonusRunner
	rakeback    RakebackRunner
	redisClient redis.UniversalClient
	owner       string
	sched       gocron.Scheduler
}

// NewScheduler redisClient 为 nil 时不加锁，仅适合单实例
func NewScheduler(cfg config.SchedulerConfig, vip VipBonusRunner, rakeback RakebackRunner, redisClient redis.UniversalClient) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("创建调度器失败: %w", err)
	}
	return &Scheduler{
		cfg:         cfg,
		vip:         vip,
		rakeback:    rakeback,
		redisClient: redisClient,
		owner:       uuid.NewString(),
		sched:       sched,
	}, nil
}

// Start 注册任务并启动，ctx 取消后正在执行的任务会收到取消
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		cron string
		run  func(context.Context) (*service.JobReport, error)
	}{
		{"vip_weekly", s.cfg.VipWeeklyCron, func(ctx context.Context) (*service.JobReport, error) {
			return s.vip.RunPeriodicBonus(ctx, model.VipKindWeekly)
		}},
		{"vip_monthly", s.cfg.VipMonthlyCron, func(ctx context.Context) (*service.JobReport, error) {
			return s.vip.RunPeriodicBonus(ctx, model.VipKindMonthly)
		}},
		{"rakeback_daily", s.cfg.RakebackCron, s.rakeback.RunDailyRakeback},
	}

	for _, j := range jobs {
		if j.cron == "" {
			continue
		}
		j := j
		_, err := s.sched.NewJob(
			gocron.CronJob(j.cron, false),
			gocron.NewTask(func() { s.RunLocked(ctx, j.name, j.run) }),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("注册任务 %s 失败: %w", j.name, err)
		}
		logger.Info(ctx, "[Scheduler] 任务已注册", "job", j.name, "cron", j.cron)
	}

	s.sched.Start()
	return nil
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// RunLocked 抢到锁才执行，返回是否执行
func (s *Scheduler) RunLocked(ctx context.Context, name string, run func(context.Context) (*service.JobReport, error)) bool {
	if s.redisClient != nil {
		l := lock.NewJobLock(s.redisClient, name, s.owner, s.lockTTL())
		ok, err := l.TryLock(ctx)
		if err != nil {
			logger.Error(ctx, "[Scheduler] 获取任务锁失败", "job", name, "err", err)
			return false
		}
		if !ok {
			logger.Info(ctx, "[Scheduler] 其他实例正在执行，跳过", "job", name)
			return false
		}
		defer l.Unlock(context.Background())
	}

	start := time.Now()
	report, err := run(ctx)
	if err != nil {
		logger.Error(ctx, "[Scheduler] 任务执行失败", "job", name, "err", err)
		return true
	}
	logger.Info(ctx, "[Scheduler] 任务完成", "job", name,
		"processed", report.Processed, "created", report.Created, "failed", report.Failed,
		"elapsed", time.Since(start).String())
	return true
}

func (s *Scheduler) lockTTL() time.Duration {
	if s.cfg.LockTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.cfg.LockTTLSeconds) * time.Second
}
