package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/database"
	"gamewallet/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testProvider = "poker-games"

var t0 = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

// stepClock 可手动推进的时钟
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
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
	// 单连接，事务天然串行；并发测试只验证结果不超扣，
	// 条件 UPDATE 本身的兜底见 repository 包的无锁扣减测试
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				Settlement: "wallet.settlement",
				Deposit:    "wallet.deposit",
				Withdrawal: "wallet.withdrawal",
				Vip:        "wallet.vip",
				Affiliate:  "wallet.affiliate",
			},
		},
		Business: config.BusinessConfig{
			DepositTimeoutMinutes:     30,
			MaxRetryCount:             3,
			DefaultRolloverActive:     true,
			DefaultRolloverMultiplier: 2,
			MinWithdrawal:             20,
			MinDeposit:                10,
			DefaultCurrency:           "BRL",
		},
		Providers: map[string]config.ProviderConfig{
			testProvider: {Prefix: "PG", Currency: "BRL"},
		},
	}
}

type testEnv struct {
	db    *gorm.DB
	svc   *Services
	clock *stepClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	clk := &stepClock{now: t0}
	svc := New(Deps{DB: db, Config: testConfig(), Clock: clk})
	return &testEnv{db: db, svc: svc, clock: clk}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) createAccount(t *testing.T, name string, balance string, mutate ...func(*model.Account)) *model.Account {
	t.Helper()
	a := &model.Account{
		Username: name,
		Balance:  dec(balance),
		Status:   true,
	}
	for _, m := range mutate {
		m(a)
	}
	if err := e.db.Create(a).Error; err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return a
}

func (e *testEnv) reload(t *testing.T, id int64) *model.Account {
	t.Helper()
	var a model.Account
	if err := e.db.First(&a, id).Error; err != nil {
		t.Fatalf("reload account %d: %v", id, err)
	}
	return &a
}

func (e *testEnv) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(m).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func assertDec(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, want %s", what, got.String(), want)
	}
}

func (e *testEnv) settle(t *testing.T, body string) (*SettlementResult, error) {
	t.Helper()
	ev, err := ParseCallback(testProvider, []byte(body), "BRL")
	if err != nil {
		t.Fatalf("parse callback %s: %v", body, err)
	}
	return e.svc.Settlement.Settle(context.Background(), ev)
}

func (e *testEnv) mustSettle(t *testing.T, body string) *SettlementResult {
	t.Helper()
	res, err := e.settle(t, body)
	if err != nil {
		t.Fatalf("settle %s: %v", body, err)
	}
	return res
}

func betBody(playerID int64, txID, amount string) string {
	return fmt.Sprintf(`{"action":"bet","player_id":%d,"transaction_id":"%s","amount":"%s","round_id":"r-1","game_uuid":"g-1"}`, playerID, txID, amount)
}

func winBody(playerID int64, txID, amount string) string {
	return fmt.Sprintf(`{"action":"win","player_id":%d,"transaction_id":"%s","amount":"%s","round_id":"r-1","game_uuid":"g-1"}`, playerID, txID, amount)
}
