package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
)

func TestWithdrawalBlockedUntilRolloverCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "alice", "0", func(a *model.Account) {
		a.RolloverMultiplier = decimal.NullDecimal{Decimal: dec("1"), Valid: true}
	})

	env.deposit(t, acc.ID, "100")
	env.mustSettle(t, betBody(acc.ID, "b-1", "60"))

	_, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "20"})
	if !errors.Is(err, ErrRolloverNotCompleted) {
		t.Fatalf("err = %v, want ErrRolloverNotCompleted", err)
	}
	assertDec(t, "balance after rejected withdrawal", env.reload(t, acc.ID).Balance, "40")

	env.mustSettle(t, winBody(acc.ID, "w-1", "100"))
	env.mustSettle(t, betBody(acc.ID, "b-2", "40"))

	st, err := env.svc.Rollover.Status(ctx, acc.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Withdrawable {
		t.Fatalf("rollover should be completed: %+v", st)
	}

	resp, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "50", Destination: "pix:alice"})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if resp.Status != model.OrderStatusPending {
		t.Fatalf("status = %s", resp.Status)
	}
	assertDec(t, "response balance", resp.Balance, "50")
	assertDec(t, "stored balance", env.reload(t, acc.ID).Balance, "50")
}

func TestWithdrawalEligibilityCountsBetsSinceEarliestRequirement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "bob", "500")

	// 要求创建前的下注不计入
	env.mustSettle(t, betBody(acc.ID, "b-0", "100"))
	env.clock.Advance(time.Minute)

	if _, err := env.svc.Rollover.CreateRequirement(ctx, nil, acc.ID, model.RolloverSourceDeposit, "D1", dec("50"), dec("1")); err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	_, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "20"})
	if !errors.Is(err, ErrRolloverNotCompleted) {
		t.Fatalf("err = %v, want ErrRolloverNotCompleted", err)
	}

	env.mustSettle(t, betBody(acc.ID, "b-1", "50"))
	if _, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "20"}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
}

func TestWithdrawalValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "carol", "30")

	if _, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "10"}); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("err = %v, want ErrBelowMinimum", err)
	}
	if _, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "31"}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if _, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: 404, Amount: "25"}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestWithdrawalRejectRefundsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "dave", "100")

	resp, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "60"})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	assertDec(t, "balance after request", env.reload(t, acc.ID).Balance, "40")

	w, err := env.svc.Withdrawal.Reject(ctx, resp.ID, "kyc")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if w.Status != model.OrderStatusRejected || w.Reason != "kyc" {
		t.Fatalf("withdrawal = %+v", w)
	}
	assertDec(t, "balance after reject", env.reload(t, acc.ID).Balance, "100")

	if _, err := env.svc.Withdrawal.Approve(ctx, resp.ID); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("err = %v, want ErrOrderStatusInvalid", err)
	}
	if _, err := env.svc.Withdrawal.Reject(ctx, 404, ""); !errors.Is(err, ErrWithdrawalNotFound) {
		t.Fatalf("err = %v, want ErrWithdrawalNotFound", err)
	}
}

func TestWithdrawalApproveKeepsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.createAccount(t, "erin", "100")

	resp, err := env.svc.Withdrawal.RequestWithdrawal(ctx, &WithdrawalRequest{AccountID: acc.ID, Amount: "25"})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	w, err := env.svc.Withdrawal.Approve(ctx, resp.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if w.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s", w.Status)
	}
	assertDec(t, "balance", env.reload(t, acc.ID).Balance, "75")

	list, total, err := env.svc.Withdrawal.List(ctx, acc.ID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].Status != model.OrderStatusPaid {
		t.Fatalf("list = %+v total = %d", list, total)
	}
	if n := env.count(t, &model.OutboxMessage{}, "topic = ?", "wallet.withdrawal"); n != 2 {
		t.Fatalf("withdrawal outbox messages = %d, want 2", n)
	}
}
