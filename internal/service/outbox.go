package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamewallet/internal/model"
	"gamewallet/internal/repository"
	"gamewallet/pkg/idgen"

	"gorm.io/gorm"
)

// eventWriter 与业务数据同事务写 outbox
type eventWriter struct {
	repo *repository.OutboxRepository
}

func (w eventWriter) write(ctx context.Context, tx *gorm.DB, topic, eventType string, accountID int64, key string, payload map[string]interface{}) error {
	if key == "" {
		key = idgen.GenerateEventKey()
	}
	payload["event"] = eventType
	payload["account_id"] = accountID
	if _, ok := payload["occurred_at"]; !ok {
		payload["occurred_at"] = time.Now().Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		AccountID:  accountID,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	if err := w.repo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// OutboxService 运维接口：查看投递失败的消息并重新入队
type OutboxService struct {
	repo *repository.OutboxRepository
}

func NewOutboxService(db *gorm.DB) *OutboxService {
	return &OutboxService{repo: repository.NewOutboxRepository(db)}
}

func (s *OutboxService) Failed(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return s.repo.ListByStatus(ctx, model.OutboxStatusFailed, limit)
}

func (s *OutboxService) Requeue(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, invalid("empty_ids")
	}
	return s.repo.Requeue(ctx, ids)
}
