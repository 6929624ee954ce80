package job

import (
	"context"
	"time"

	"gamewallet/internal/infrastructure/logger"
)

// DepositExpirer 关闭超时充值单
type DepositExpirer interface {
	ExpirePending(ctx context.Context, limit int) (int, error)
}

type DepositTimeoutJob struct {
	deposits  DepositExpirer
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewDepositTimeoutJob(deposits DepositExpirer) *DepositTimeoutJob {
	return &DepositTimeoutJob{
		deposits:  deposits,
		stopCh:    make(chan struct{}),
		interval:  10 * time.Second,
		batchSize: 100,
	}
}

func (j *DepositTimeoutJob) Start(ctx context.Context) {
	logger.Info(ctx, "[DepositTimeoutJob] 充值超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "[DepositTimeoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Info(ctx, "[DepositTimeoutJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpired(ctx)
		}
	}
}

func (j *DepositTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *DepositTimeoutJob) closeExpired(ctx context.Context) {
	n, err := j.deposits.ExpirePending(ctx, j.batchSize)
	if err != nil {
		logger.Error(ctx, "[DepositTimeoutJob] 查询超时充值单失败", "err", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "[DepositTimeoutJob] 本次关闭超时充值单", "count", n)
	}
}
