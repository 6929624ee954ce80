package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamewallet/internal/model"
)

func TestRedeemCodeRespectsLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := &model.RedeemCode{Code: "WELCOME", MaxCollect: 2, Bonus: dec("15"), FreeSpins: 5, IsActive: true}
	if err := env.db.Create(code).Error; err != nil {
		t.Fatalf("seed code: %v", err)
	}
	a := env.createAccount(t, "a", "0")
	b := env.createAccount(t, "b", "0")
	c := env.createAccount(t, "c", "0")

	res, err := env.svc.Promotion.Redeem(ctx, a.ID, " WELCOME ")
	if err != nil {
		t.Fatalf("redeem a: %v", err)
	}
	if res.FreeSpins != 5 {
		t.Fatalf("free spins = %d", res.FreeSpins)
	}
	assertDec(t, "balance a", res.Balance, "15")

	if _, err := env.svc.Promotion.Redeem(ctx, a.ID, "WELCOME"); !errors.Is(err, ErrAlreadyRedeemed) {
		t.Fatalf("err = %v, want ErrAlreadyRedeemed", err)
	}
	if _, err := env.svc.Promotion.Redeem(ctx, b.ID, "WELCOME"); err != nil {
		t.Fatalf("redeem b: %v", err)
	}
	if _, err := env.svc.Promotion.Redeem(ctx, c.ID, "WELCOME"); !errors.Is(err, ErrRedeemCodeLimitReached) {
		t.Fatalf("err = %v, want ErrRedeemCodeLimitReached", err)
	}
	if _, err := env.svc.Promotion.Redeem(ctx, c.ID, "NOPE"); !errors.Is(err, ErrRedeemCodeInvalid) {
		t.Fatalf("err = %v, want ErrRedeemCodeInvalid", err)
	}

	assertDec(t, "balance c", env.reload(t, c.ID).Balance, "0")
	var stored model.RedeemCode
	if err := env.db.First(&stored, code.ID).Error; err != nil {
		t.Fatalf("reload code: %v", err)
	}
	if stored.Collected != 2 {
		t.Fatalf("collected = %d, want 2", stored.Collected)
	}
}

func TestDailyRakebackPicksHighestTier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, s := range []*model.RakebackSetting{
		{MinVolume: dec("100"), Percentage: dec("1"), IsActive: true},
		{MinVolume: dec("500"), Percentage: dec("2"), IsActive: true},
	} {
		if err := env.db.Create(s).Error; err != nil {
			t.Fatalf("seed rakeback: %v", err)
		}
	}

	high := env.createAccount(t, "high", "1000")
	mid := env.createAccount(t, "mid", "1000")
	low := env.createAccount(t, "low", "1000")

	env.mustSettle(t, betBody(high.ID, "h-1", "400"))
	env.mustSettle(t, betBody(high.ID, "h-2", "200"))
	env.mustSettle(t, betBody(mid.ID, "m-1", "150"))
	env.mustSettle(t, betBody(low.ID, "l-1", "50"))
	env.clock.Advance(time.Hour)

	report, err := env.svc.Promotion.RunDailyRakeback(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Processed != 3 || report.Created != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	var hs []model.RakebackHistory
	if err := env.db.Order("account_id ASC").Find(&hs).Error; err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(hs) != 2 || hs[0].AccountID != high.ID || hs[1].AccountID != mid.ID {
		t.Fatalf("histories = %+v", hs)
	}
	assertDec(t, "high rakeback", hs[0].Amount, "12")
	assertDec(t, "mid rakeback", hs[1].Amount, "1.5")

	// 只记录，不入账
	assertDec(t, "high balance", env.reload(t, high.ID).Balance, "400")

	report, err = env.svc.Promotion.RunDailyRakeback(ctx)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if report.Created != 0 {
		t.Fatalf("rerun created %d histories", report.Created)
	}
}

func TestGameHistoryStats(t *testing.T) {
	env := newTestEnv(t)
	acc := env.createAccount(t, "player", "100")

	env.mustSettle(t, betBody(acc.ID, "b-1", "20"))
	env.mustSettle(t, betBody(acc.ID, "b-2", "30"))
	env.mustSettle(t, winBody(acc.ID, "w-1", "45"))

	h, err := env.svc.Account.GameHistory(context.Background(), acc.ID, 1, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if h.Total != 3 || len(h.Items) != 2 || h.Stats.Bets != 2 {
		t.Fatalf("history = %+v", h)
	}
	assertDec(t, "bet total", h.Stats.BetTotal, "50")
	assertDec(t, "win total", h.Stats.WinTotal, "45")

	b, err := env.svc.Account.GetBalances(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	assertDec(t, "balance", b.Balance, "95")
}
