package job

import (
	"context"
	"time"

	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/infrastructure/metrics"
	"gamewallet/internal/infrastructure/mq"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 轮询 PENDING 消息投递到 Kafka，超过重试上限转为 FAILED
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	metrics    *metrics.Metrics
	maxRetry   int
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, m *metrics.Metrics, maxRetry int) *OutboxSender {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		metrics:    m,
		maxRetry:   maxRetry,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logger.Info(ctx, "[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logger.Info(ctx, "[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessOnce(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessOnce 处理一批待发送消息，返回成功条数
func (s *OutboxSender) ProcessOnce(ctx context.Context) int {
	messages, err := s.outboxRepo.ListByStatus(ctx, model.OutboxStatusPending, s.batchSize)
	if err != nil {
		logger.Error(ctx, "[OutboxSender] 查询消息失败", "err", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		s.metrics.IncOutbox(msg.Topic, "sent")
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			logger.Error(ctx, "[OutboxSender] 更新消息状态失败", "id", msg.ID, "err", err)
		}
		return true
	}

	giveUp := msg.RetryCount+1 >= s.maxRetry
	logger.Warn(ctx, "[OutboxSender] 消息发送失败", "id", msg.ID, "topic", msg.Topic, "retry", msg.RetryCount+1, "err", err)
	if giveUp {
		s.metrics.IncOutbox(msg.Topic, "failed")
	} else {
		s.metrics.IncOutbox(msg.Topic, "retry")
	}
	if err := s.outboxRepo.RecordFailure(ctx, msg.ID, giveUp); err != nil {
		logger.Error(ctx, "[OutboxSender] 记录失败次数出错", "id", msg.ID, "err", err)
	}
	if giveUp {
		logger.Error(ctx, "[OutboxSender] 消息超过最大重试次数，标记为失败", "id", msg.ID)
	}
	return false
}
