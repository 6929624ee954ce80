package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"gamewallet/internal/infrastructure/database"
	"gamewallet/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", name)), &gorm.Config{
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

func seedAccount(t *testing.T, db *gorm.DB, balance string) *model.Account {
	t.Helper()
	a := &model.Account{Username: t.Name(), Balance: decimal.RequireFromString(balance), Status: true}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func balanceOf(t *testing.T, repo *AccountRepository, id int64) decimal.Decimal {
	t.Helper()
	a, err := repo.GetByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a.Balance
}

// 不持行锁、不开事务，判断依据是否过期都由 UPDATE 条件兜底
func TestDeductWithStaleReadIsRefused(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, "100")

	stale, err := repo.GetByID(ctx, nil, acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	amount := decimal.RequireFromString("80")

	if err := repo.Deduct(ctx, nil, acc.ID, model.BalanceMain, amount); err != nil {
		t.Fatalf("first deduct: %v", err)
	}
	// 旧快照仍显示余额充足
	if stale.Balance.LessThan(amount) {
		t.Fatalf("stale balance = %s", stale.Balance)
	}
	if err := repo.Deduct(ctx, nil, acc.ID, model.BalanceMain, amount); !errors.Is(err, ErrBalanceNotEnough) {
		t.Fatalf("second deduct err = %v, want ErrBalanceNotEnough", err)
	}
	if got := balanceOf(t, repo, acc.ID); !got.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("balance = %s, want 20", got)
	}

	if err := repo.Deduct(ctx, nil, 999, model.BalanceMain, amount); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing account err = %v", err)
	}
	if err := repo.Deduct(ctx, nil, acc.ID, "version", amount); !errors.Is(err, ErrInvalidColumn) {
		t.Fatalf("bad column err = %v", err)
	}
}

func TestConcurrentDeductWithoutLockNeverOverdraws(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	acc := seedAccount(t, db, "100")
	amount := decimal.RequireFromString("10")

	const n = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Deduct(context.Background(), nil, acc.ID, model.BalanceMain, amount)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrBalanceNotEnough):
				fail++
			default:
				t.Errorf("deduct: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || fail != n-10 {
		t.Fatalf("ok = %d fail = %d", ok, fail)
	}
	if got := balanceOf(t, repo, acc.ID); !got.IsZero() {
		t.Fatalf("balance = %s, want 0", got)
	}
}

func TestTransferRequiresSourceBalance(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, "0")
	if err := repo.Increase(ctx, nil, acc.ID, model.BalanceVip, decimal.RequireFromString("15")); err != nil {
		t.Fatalf("increase: %v", err)
	}

	if err := repo.Transfer(ctx, nil, acc.ID, model.BalanceVip, model.BalanceMain, decimal.RequireFromString("20")); !errors.Is(err, ErrBalanceNotEnough) {
		t.Fatalf("err = %v, want ErrBalanceNotEnough", err)
	}
	if err := repo.Transfer(ctx, nil, acc.ID, model.BalanceVip, model.BalanceMain, decimal.RequireFromString("15")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, err := repo.GetByID(ctx, nil, acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !a.Balance.Equal(decimal.RequireFromString("15")) || !a.VipBalance.IsZero() {
		t.Fatalf("balances = %s / %s", a.Balance, a.VipBalance)
	}
}
