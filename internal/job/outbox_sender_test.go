package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gamewallet/internal/infrastructure/database"
	"gamewallet/internal/infrastructure/mq"
	"gamewallet/internal/model"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:job_%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedOutbox(t *testing.T, db *gorm.DB, key string) *model.OutboxMessage {
	t.Helper()
	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      "wallet.settlement",
		EventType:  model.EventSettlement,
		AccountID:  1,
		Payload:    `{"event":"settlement"}`,
		Status:     model.OutboxStatusPending,
	}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("seed outbox: %v", err)
	}
	return msg
}

func loadOutbox(t *testing.T, db *gorm.DB, id int64) *model.OutboxMessage {
	t.Helper()
	var msg model.OutboxMessage
	if err := db.First(&msg, id).Error; err != nil {
		t.Fatalf("load outbox %d: %v", id, err)
	}
	return &msg
}

func TestOutboxSenderDeliversAndRetries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	producer := mocks.NewSyncProducer(t, nil)
	publisher := mq.WrapProducer(producer)
	defer publisher.Close()

	ok := seedOutbox(t, db, "PG-BET-1")
	bad := seedOutbox(t, db, "PG-BET-2")

	var gotKey string
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		k, err := m.Key.Encode()
		gotKey = string(k)
		return err
	})
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	sender := NewOutboxSender(db, publisher, nil, 2)
	if n := sender.ProcessOnce(ctx); n != 1 {
		t.Fatalf("sent = %d, want 1", n)
	}
	if gotKey != "PG-BET-1" {
		t.Fatalf("message key = %q", gotKey)
	}
	if got := loadOutbox(t, db, ok.ID); got.Status != model.OutboxStatusSent {
		t.Fatalf("delivered status = %s", got.Status)
	}
	got := loadOutbox(t, db, bad.ID)
	if got.Status != model.OutboxStatusPending || got.RetryCount != 1 {
		t.Fatalf("after first failure = %s/%d", got.Status, got.RetryCount)
	}

	producer.ExpectSendMessageAndFail(errors.New("broker down"))
	if n := sender.ProcessOnce(ctx); n != 0 {
		t.Fatalf("sent = %d, want 0", n)
	}
	got = loadOutbox(t, db, bad.ID)
	if got.Status != model.OutboxStatusFailed || got.RetryCount != 2 {
		t.Fatalf("after giving up = %s/%d", got.Status, got.RetryCount)
	}

	// 失败消息不再被轮询
	if n := sender.ProcessOnce(ctx); n != 0 {
		t.Fatalf("sent = %d, want 0", n)
	}
}

type fakeExpirer struct {
	calls int
	limit int
	n     int
	err   error
}

func (f *fakeExpirer) ExpirePending(ctx context.Context, limit int) (int, error) {
	f.calls++
	f.limit = limit
	return f.n, f.err
}

func TestDepositTimeoutJobUsesBatchSize(t *testing.T) {
	exp := &fakeExpirer{n: 3}
	j := NewDepositTimeoutJob(exp)
	j.closeExpired(context.Background())
	exp.err = errors.New("db down")
	j.closeExpired(context.Background())

	if exp.calls != 2 || exp.limit != 100 {
		t.Fatalf("calls = %d limit = %d", exp.calls, exp.limit)
	}
}

func TestDepositTimeoutJobStops(t *testing.T) {
	j := NewDepositTimeoutJob(&fakeExpirer{})
	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()
	j.Stop()
	<-done
}
