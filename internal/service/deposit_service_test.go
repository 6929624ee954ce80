package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
)

func (e *testEnv) deposit(t *testing.T, accountID int64, amount string) *DepositResponse {
	t.Helper()
	ctx := context.Background()
	created, err := e.svc.Deposit.CreateDeposit(ctx, &DepositRequest{AccountID: accountID, Amount: amount})
	if err != nil {
		t.Fatalf("create deposit: %v", err)
	}
	paid, err := e.svc.Deposit.ConfirmDeposit(ctx, created.Reference)
	if err != nil {
		t.Fatalf("confirm deposit: %v", err)
	}
	return paid
}

func TestConfirmDepositCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "alice", "0")

	created, err := env.svc.Deposit.CreateDeposit(ctx, &DepositRequest{AccountID: acc.ID, Amount: "100", Reference: "gw-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != model.OrderStatusPending || created.Reference != "gw-1" {
		t.Fatalf("created = %+v", created)
	}

	paid, err := env.svc.Deposit.ConfirmDeposit(ctx, "gw-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	assertDec(t, "balance", paid.Balance, "100")

	again, err := env.svc.Deposit.ConfirmDeposit(ctx, "gw-1")
	if err != nil {
		t.Fatalf("confirm again: %v", err)
	}
	if again.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s", again.Status)
	}
	assertDec(t, "stored balance", env.reload(t, acc.ID).Balance, "100")
	if n := env.count(t, &model.OutboxMessage{}, "topic = ?", "wallet.deposit"); n != 1 {
		t.Fatalf("deposit outbox messages = %d, want 1", n)
	}

	if _, err := env.svc.Deposit.ConfirmDeposit(ctx, "missing"); !errors.Is(err, ErrDepositNotFound) {
		t.Fatalf("err = %v, want ErrDepositNotFound", err)
	}
}

func TestCreateDepositValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "bob", "0")
	banned := env.createAccount(t, "banned", "0", func(a *model.Account) { a.Banned = true })

	if _, err := env.svc.Deposit.CreateDeposit(ctx, &DepositRequest{AccountID: acc.ID, Amount: "5"}); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("err = %v, want ErrBelowMinimum", err)
	}
	if _, err := env.svc.Deposit.CreateDeposit(ctx, &DepositRequest{AccountID: acc.ID, Amount: "abc"}); !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, err := env.svc.Deposit.CreateDeposit(ctx, &DepositRequest{AccountID: banned.ID, Amount: "50"}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("err = %v, want ErrAccountInactive", err)
	}
	if _, err := env.svc.Deposit.CreateDeposit(ctx, &DepositRequest{AccountID: 404, Amount: "50"}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestExpirePendingDeposits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "carol", "0")

	created, err := env.svc.Deposit.CreateDeposit(ctx, &DepositRequest{AccountID: acc.ID, Amount: "50"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := env.svc.Deposit.ExpirePending(ctx, 100)
	if err != nil || n != 0 {
		t.Fatalf("expire before timeout = %d, %v", n, err)
	}

	env.clock.Advance(31 * time.Minute)
	n, err = env.svc.Deposit.ExpirePending(ctx, 100)
	if err != nil || n != 1 {
		t.Fatalf("expire after timeout = %d, %v", n, err)
	}

	var stored model.Deposit
	if err := env.db.Where("reference = ?", created.Reference).First(&stored).Error; err != nil {
		t.Fatalf("load deposit: %v", err)
	}
	if stored.Status != model.OrderStatusExpired {
		t.Fatalf("status = %s, want EXPIRED", stored.Status)
	}

	// 超时后网关确认到账仍需入账
	paid, err := env.svc.Deposit.ConfirmDeposit(ctx, created.Reference)
	if err != nil {
		t.Fatalf("late confirm: %v", err)
	}
	if paid.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", paid.Status)
	}
	assertDec(t, "balance", env.reload(t, acc.ID).Balance, "50")

	st, err := env.svc.Rollover.Status(ctx, acc.ID)
	if err != nil {
		t.Fatalf("rollover status: %v", err)
	}
	assertDec(t, "rollover required", st.Required, "100")

	if _, err := env.svc.Deposit.ConfirmDeposit(ctx, created.Reference); err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	assertDec(t, "balance after repeat", env.reload(t, acc.ID).Balance, "50")
}

func TestDepositRolloverPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createAccount(t, "default", "0")
	off := false
	optOut := env.createAccount(t, "opt-out", "0", func(a *model.Account) { a.RolloverActive = &off })
	custom := env.createAccount(t, "custom", "0", func(a *model.Account) {
		a.RolloverMultiplier = decimal.NullDecimal{Decimal: dec("5"), Valid: true}
	})

	env.deposit(t, def.ID, "100")
	env.deposit(t, optOut.ID, "100")
	env.deposit(t, custom.ID, "100")

	st, err := env.svc.Rollover.Status(ctx, def.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertDec(t, "default required", st.Required, "200")
	if st.Withdrawable {
		t.Fatalf("default account should not be withdrawable")
	}

	st, err = env.svc.Rollover.Status(ctx, optOut.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Active != 0 || !st.Withdrawable {
		t.Fatalf("opt-out status = %+v", st)
	}

	st, err = env.svc.Rollover.Status(ctx, custom.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertDec(t, "custom required", st.Required, "500")
}

func TestDepositPromoBonus(t *testing.T) {
	env := newTestEnv(t)
	acc := env.createAccount(t, "dave", "0")

	event := &model.DepositPromoEvent{
		Name:     "welcome",
		IsActive: true,
		Tiers: []model.DepositPromoTier{
			{DepositAmount: dec("50"), BonusAmount: dec("10"), RolloverAmount: dec("50")},
			{DepositAmount: dec("100"), BonusAmount: dec("25"), RolloverAmount: dec("100")},
			{DepositAmount: dec("500"), BonusAmount: dec("150"), RolloverAmount: dec("600")},
		},
	}
	if err := env.db.Create(event).Error; err != nil {
		t.Fatalf("seed promo: %v", err)
	}

	paid := env.deposit(t, acc.ID, "120")
	assertDec(t, "balance", paid.Balance, "145")

	var reqs []model.RolloverRequirement
	if err := env.db.Where("account_id = ?", acc.ID).Order("id ASC").Find(&reqs).Error; err != nil {
		t.Fatalf("load requirements: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("requirements = %d, want 2", len(reqs))
	}
	if reqs[0].SourceType != model.RolloverSourceDeposit {
		t.Fatalf("first requirement source = %s", reqs[0].SourceType)
	}
	assertDec(t, "deposit requirement", reqs[0].AmountRequired, "240")
	if reqs[1].SourceType != model.RolloverSourceDepositBonus {
		t.Fatalf("second requirement source = %s", reqs[1].SourceType)
	}
	assertDec(t, "bonus requirement", reqs[1].AmountRequired, "100")
	assertDec(t, "bonus multiplier", reqs[1].Multiplier, "4")

	if n := env.count(t, &model.DepositPromoParticipation{}, "account_id = ?", acc.ID); n != 1 {
		t.Fatalf("participations = %d, want 1", n)
	}
}

func affiliateChain(t *testing.T, env *testEnv) (top, grand, parent *model.Account) {
	t.Helper()
	cpa := func(a *model.Account) {
		a.CpaAvailable = true
		a.MinDepositForCpa = dec("50")
		a.CpaLevel1 = dec("10")
		a.CpaLevel2 = dec("5")
		a.CpaLevel3 = dec("2")
	}
	outer := env.createAccount(t, "outer", "0", cpa)
	top = env.createAccount(t, "top", "0", cpa, func(a *model.Account) { a.InvitedByID = &outer.ID })
	grand = env.createAccount(t, "grand", "0", cpa, func(a *model.Account) { a.InvitedByID = &top.ID })
	parent = env.createAccount(t, "parent", "0", cpa, func(a *model.Account) { a.InvitedByID = &grand.ID })
	return top, grand, parent
}

func TestAffiliateCascadeThreeLevelsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	top, grand, parent := affiliateChain(t, env)
	child := env.createAccount(t, "child", "0", func(a *model.Account) { a.InvitedByID = &parent.ID })

	env.deposit(t, child.ID, "100")
	env.deposit(t, child.ID, "300")

	assertDec(t, "level 1", env.reload(t, parent.ID).AffiliateBalance, "10")
	assertDec(t, "level 2", env.reload(t, grand.ID).AffiliateBalance, "5")
	assertDec(t, "level 3", env.reload(t, top.ID).AffiliateBalance, "2")
	if n := env.count(t, &model.AffiliateCommission{}, "user_id = ?", child.ID); n != 3 {
		t.Fatalf("commissions = %d, want 3", n)
	}
	if n := env.count(t, &model.Account{}, "username = ? AND affiliate_balance > 0", "outer"); n != 0 {
		t.Fatalf("fourth level must not be paid")
	}

	stats, err := env.svc.Affiliate.Stats(ctx, parent.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Invited != 1 || len(stats.Levels) != 1 || stats.Levels[0].Level != 1 || stats.Levels[0].Count != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	assertDec(t, "stats total", stats.Levels[0].Total, "10")
}

func TestAffiliateCascadeSkipsIneligibleLevel(t *testing.T) {
	env := newTestEnv(t)
	top, grand, parent := affiliateChain(t, env)
	if err := env.db.Model(&model.Account{}).Where("id = ?", grand.ID).Update("cpa_available", false).Error; err != nil {
		t.Fatalf("disable cpa: %v", err)
	}
	child := env.createAccount(t, "child", "0", func(a *model.Account) { a.InvitedByID = &parent.ID })

	env.deposit(t, child.ID, "60")

	assertDec(t, "level 1", env.reload(t, parent.ID).AffiliateBalance, "10")
	assertDec(t, "level 2", env.reload(t, grand.ID).AffiliateBalance, "0")
	assertDec(t, "level 3", env.reload(t, top.ID).AffiliateBalance, "2")
}

func TestAffiliateCascadeBelowMinimumDeposit(t *testing.T) {
	env := newTestEnv(t)
	_, _, parent := affiliateChain(t, env)
	child := env.createAccount(t, "child", "0", func(a *model.Account) { a.InvitedByID = &parent.ID })

	env.deposit(t, child.ID, "20")
	assertDec(t, "level 1", env.reload(t, parent.ID).AffiliateBalance, "0")
	if n := env.count(t, &model.AffiliateCommission{}, "user_id = ?", child.ID); n != 0 {
		t.Fatalf("commissions = %d, want 0", n)
	}
}

func TestAffiliateCascadeStopsOnCycle(t *testing.T) {
	env := newTestEnv(t)
	cpa := func(a *model.Account) {
		a.CpaAvailable = true
		a.CpaLevel1 = dec("10")
		a.CpaLevel2 = dec("5")
		a.CpaLevel3 = dec("2")
	}
	x := env.createAccount(t, "x", "0", cpa)
	y := env.createAccount(t, "y", "0", cpa, func(a *model.Account) { a.InvitedByID = &x.ID })
	if err := env.db.Model(&model.Account{}).Where("id = ?", x.ID).Update("invited_by_id", y.ID).Error; err != nil {
		t.Fatalf("close cycle: %v", err)
	}
	child := env.createAccount(t, "child", "0", func(a *model.Account) { a.InvitedByID = &x.ID })

	env.deposit(t, child.ID, "100")

	assertDec(t, "x", env.reload(t, x.ID).AffiliateBalance, "10")
	assertDec(t, "y", env.reload(t, y.ID).AffiliateBalance, "5")
	if n := env.count(t, &model.AffiliateCommission{}, "user_id = ?", child.ID); n != 2 {
		t.Fatalf("commissions = %d, want 2", n)
	}
}

func TestSettingsOverrideConfigDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, err := env.svc.Settings.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	assertDec(t, "default min deposit", s.MinDeposit, "10")
	if !s.DefaultRolloverActive {
		t.Fatalf("config default should be active")
	}

	_, err = env.svc.Settings.Update(ctx, Settings{
		MinWithdrawal:             dec("50"),
		MinDeposit:                dec("30"),
		DefaultRolloverActive:     false,
		DefaultRolloverMultiplier: dec("3"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	s, err = env.svc.Settings.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	assertDec(t, "min deposit", s.MinDeposit, "30")
	if s.DefaultRolloverActive {
		t.Fatalf("rollover default should be stored as false")
	}

	if _, err := env.svc.Settings.Update(ctx, Settings{MinDeposit: dec("-1")}); !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}
