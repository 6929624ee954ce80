package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/clock"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/infrastructure/metrics"
	"gamewallet/internal/model"
	"gamewallet/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementResult 返回给供应商的结算结果，重放时与首次完全一致
type SettlementResult struct {
	Balance              decimal.Decimal `json:"balance"`
	TransactionID        string          `json:"transaction_id"`
	RollbackTransactions []string        `json:"rollback_transactions,omitempty"`
	Replayed             bool            `json:"-"`
}

// SettlementService 供应商回调结算
//
// 每个事件在一个事务内完成：锁账户、幂等复查、改余额、写流水、回写内部流水号；
// 下注还要在同一事务内消耗流水要求并重算 VIP。
// 事务失败时不会留下任何流水，供应商原样重试是安全的。
type SettlementService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	rollover    *RolloverService
	vip         *VipService
	events      eventWriter
	metrics     *metrics.Metrics
	clock       clock.Clock
}

func NewSettlementService(db *gorm.DB, cfg *config.Config, rollover *RolloverService, vip *VipService, m *metrics.Metrics, clk clock.Clock) *SettlementService {
	return &SettlementService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		rollover:    rollover,
		vip:         vip,
		events:      eventWriter{repo: repository.NewOutboxRepository(db)},
		metrics:     m,
		clock:       clk,
	}
}

// Settle 处理一个已校验的结算事件
func (s *SettlementService) Settle(ctx context.Context, ev Event) (res *SettlementResult, err error) {
	h := HeaderOf(ev)
	action := ev.Action()
	start := time.Now()
	defer func() {
		s.metrics.ObserveSettlement(h.Provider, action, settlementOutcome(res, err), time.Since(start))
	}()

	pc, ok := s.cfg.Provider(h.Provider)
	if !ok {
		return nil, ErrUnknownProvider
	}

	// 快速路径：已处理过的事件不进事务
	if h.TransactionID != "" {
		entry, err := s.ledgerRepo.FindByKey(ctx, nil, h.Provider, action, h.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("查询流水失败: %w", err)
		}
		if entry != nil {
			return s.replay(ctx, ev, entry)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, h.AccountID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		// 持锁后复查，并发重复回调在这里被拦下
		if h.TransactionID != "" {
			entry, err := s.ledgerRepo.FindByKey(ctx, tx, h.Provider, action, h.TransactionID)
			if err != nil {
				return err
			}
			if entry != nil {
				res, err = s.replay(ctx, ev, entry)
				return err
			}
		}

		if !account.Active() {
			return ErrAccountInactive
		}

		entry, err := s.apply(ctx, tx, ev, account)
		if err != nil {
			return err
		}

		current, err := s.accountRepo.GetByID(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		internalID := fmt.Sprintf("%s-%s-%d", pc.Prefix, strings.ToUpper(action), entry.ID)
		if err := s.ledgerRepo.AttachInternalID(ctx, tx, entry.ID, internalID, current.Balance); err != nil {
			return fmt.Errorf("回写内部流水号失败: %w", err)
		}

		if bet, ok := ev.(*Bet); ok {
			if err := s.rollover.Consume(ctx, tx, account.ID, bet.Amount); err != nil {
				return err
			}
			if _, err := s.vip.Reevaluate(ctx, tx, account.ID); err != nil {
				return err
			}
			// VIP 升级不改主余额，这里无需重读
		}

		err = s.events.write(ctx, tx, s.cfg.Kafka.Topic.Settlement, model.EventSettlement, account.ID, internalID, map[string]interface{}{
			"provider":                h.Provider,
			"action":                  action,
			"provider_transaction_id": h.TransactionID,
			"transaction_id":          internalID,
			"amount":                  entry.Amount.String(),
			"balance":                 current.Balance.String(),
			"currency":                entry.Currency,
		})
		if err != nil {
			return err
		}

		res = &SettlementResult{Balance: current.Balance, TransactionID: internalID}
		if rb, ok := ev.(*Rollback); ok {
			res.RollbackTransactions = rb.RollbackIDs()
		}
		return nil
	})

	// 唯一键冲突：并发请求已先一步提交，按重放处理
	if errors.Is(err, gorm.ErrDuplicatedKey) && h.TransactionID != "" {
		entry, ferr := s.ledgerRepo.FindByKey(ctx, nil, h.Provider, action, h.TransactionID)
		if ferr == nil && entry != nil {
			return s.replay(ctx, ev, entry)
		}
	}
	if err != nil {
		logger.Warn(ctx, "[Settlement] 结算失败",
			"provider", h.Provider, "action", action, "player_id", h.AccountID,
			"provider_tx", h.TransactionID, "err", err)
		return nil, err
	}

	logger.Info(ctx, "[Settlement] 结算成功",
		"provider", h.Provider, "action", action, "player_id", h.AccountID,
		"provider_tx", h.TransactionID, "internal_tx", res.TransactionID, "balance", res.Balance.String())
	return res, nil
}

// replay 用已落库的流水构造结果，不做任何修改
func (s *SettlementService) replay(ctx context.Context, ev Event, entry *model.LedgerEntry) (*SettlementResult, error) {
	if !entry.Completed() {
		logger.Error(ctx, "[Settlement] 流水缺少内部流水号", "entry_id", entry.ID)
		return nil, ErrIncompleteEntry
	}
	h := HeaderOf(ev)
	s.metrics.IncReplay(h.Provider, ev.Action())
	logger.Info(ctx, "[Settlement] 重复回调，返回原结果",
		"provider", h.Provider, "action", ev.Action(), "provider_tx", h.TransactionID,
		"internal_tx", *entry.InternalTransactionID)

	res := &SettlementResult{
		Balance:       entry.BalanceAfter,
		TransactionID: *entry.InternalTransactionID,
		Replayed:      true,
	}
	if rb, ok := ev.(*Rollback); ok {
		res.RollbackTransactions = rb.RollbackIDs()
	}
	return res, nil
}

// apply 按动作修改余额并写入流水（尚未回写内部流水号）
func (s *SettlementService) apply(ctx context.Context, tx *gorm.DB, ev Event, account *model.Account) (*model.LedgerEntry, error) {
	h := HeaderOf(ev)
	entry := &model.LedgerEntry{
		AccountID:     account.ID,
		Provider:      h.Provider,
		Action:        ev.Action(),
		Amount:        decimal.Zero,
		Currency:      h.Currency,
		SessionID:     h.SessionID,
		GameReference: h.GameReference,
		RoundID:       h.RoundID,
		RawPayload:    h.Raw,
		CreatedAt:     s.clock.Now(),
	}
	if h.TransactionID != "" {
		txID := h.TransactionID
		entry.ProviderTransactionID = &txID
	}

	var pending []*model.LedgerEntry
	switch e := ev.(type) {
	case *BalanceQuery:
		// 只记审计
	case *Bet:
		if err := s.accountRepo.Deduct(ctx, tx, account.ID, model.BalanceMain, e.Amount); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return nil, ErrInsufficientFunds
			}
			return nil, err
		}
		entry.Amount = e.Amount
	case *Win:
		if err := s.accountRepo.Increase(ctx, tx, account.ID, model.BalanceMain, e.Amount); err != nil {
			return nil, err
		}
		entry.Amount = e.Amount
	case *Refund:
		// 原下注只能被冲正一次，已被回滚或退款的记 0
		amount := e.Amount
		orig, err := s.ledgerRepo.FindByKey(ctx, tx, h.Provider, model.ActionBet, e.BetTransactionID)
		if err != nil {
			return nil, err
		}
		if orig != nil && orig.AccountID == account.ID {
			if orig.RolledBackByID != nil {
				logger.Warn(ctx, "[Settlement] 原下注已冲正，退款记 0",
					"provider", h.Provider, "bet_tx", e.BetTransactionID, "reversed_by", *orig.RolledBackByID)
				amount = decimal.Zero
			} else {
				amount = orig.Amount
				pending = append(pending, orig)
			}
		}
		if amount.IsPositive() {
			if err := s.accountRepo.Increase(ctx, tx, account.ID, model.BalanceMain, amount); err != nil {
				return nil, err
			}
		}
		entry.Amount = amount
		entry.BetTransactionID = e.BetTransactionID
	case *Rollback:
		delta, refs, err := s.rollbackDelta(ctx, tx, e, account.ID)
		if err != nil {
			return nil, err
		}
		if !delta.IsZero() {
			if err := s.accountRepo.Increase(ctx, tx, account.ID, model.BalanceMain, delta); err != nil {
				return nil, err
			}
		}
		entry.Amount = delta
		pending = refs
	default:
		return nil, invalid("unsupported_action")
	}

	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}

	for _, ref := range pending {
		ok, err := s.ledgerRepo.MarkRolledBack(ctx, tx, ref.ID, entry.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRollbackConflict
		}
	}
	return entry, nil
}

// rollbackDelta 净额 = 被引用的下注合计 - 被引用的派彩合计
//
// 找不到、属于其他账户或已被回滚过的引用跳过；其余动作不计入净额。
func (s *SettlementService) rollbackDelta(ctx context.Context, tx *gorm.DB, rb *Rollback, accountID int64) (decimal.Decimal, []*model.LedgerEntry, error) {
	delta := decimal.Zero
	seen := make(map[string]bool, len(rb.Refs))
	var refs []*model.LedgerEntry

	for _, ref := range rb.Refs {
		key := ref.Action + ":" + ref.TransactionID
		if seen[key] {
			continue
		}
		seen[key] = true

		if ref.Action != model.ActionBet && ref.Action != model.ActionWin {
			continue
		}
		orig, err := s.ledgerRepo.FindByKey(ctx, tx, rb.Provider, ref.Action, ref.TransactionID)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if orig == nil || orig.AccountID != accountID || orig.RolledBackByID != nil {
			logger.Warn(ctx, "[Settlement] 回滚引用跳过",
				"provider", rb.Provider, "ref_action", ref.Action, "ref_tx", ref.TransactionID)
			continue
		}
		if ref.Action == model.ActionBet {
			delta = delta.Add(orig.Amount)
		} else {
			delta = delta.Sub(orig.Amount)
		}
		refs = append(refs, orig)
	}
	return delta, refs, nil
}

func settlementOutcome(res *SettlementResult, err error) string {
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replay"
	case err == nil:
		return "ok"
	case IsValidation(err):
		return "invalid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccountInactive):
		return "rejected"
	}
	return "error"
}
