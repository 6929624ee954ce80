package service

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"gamewallet/internal/model"

	"github.com/shopspring/decimal"
)

// flexString 兼容供应商把 ID、金额传成字符串或数字
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// CallbackPayload 供应商回调原始报文
type CallbackPayload struct {
	Action               string         `json:"action"`
	PlayerID             flexString     `json:"player_id"`
	Amount               flexString     `json:"amount"`
	TransactionID        flexString     `json:"transaction_id"`
	SessionID            flexString     `json:"session_id"`
	GameUUID             flexString     `json:"game_uuid"`
	RoundID              flexString     `json:"round_id"`
	Currency             string         `json:"currency"`
	BetTransactionID     flexString     `json:"bet_transaction_id"`
	RollbackTransactions []rollbackItem `json:"rollback_transactions"`
}

type rollbackItem struct {
	TransactionID flexString `json:"transaction_id"`
	Action        string     `json:"action"`
}

// EventHeader 各类结算事件共有的字段
type EventHeader struct {
	Provider      string
	AccountID     int64
	TransactionID string
	SessionID     string
	GameReference string
	RoundID       string
	Currency      string
	Raw           string
}

func (h *EventHeader) header() *EventHeader { return h }

// Event 结算事件，只有下面五种实现
type Event interface {
	Action() string
	header() *EventHeader
}

type BalanceQuery struct {
	EventHeader
}

type Bet struct {
	EventHeader
	Amount decimal.Decimal
}

type Win struct {
	EventHeader
	Amount decimal.Decimal
}

// Refund 退还一笔下注，优先使用原下注金额
type Refund struct {
	EventHeader
	Amount           decimal.Decimal
	BetTransactionID string
}

// RollbackRef 回滚引用的一笔历史流水
type RollbackRef struct {
	TransactionID string
	Action        string
}

type Rollback struct {
	EventHeader
	Refs []RollbackRef
}

func (*BalanceQuery) Action() string { return model.ActionBalance }
func (*Bet) Action() string          { return model.ActionBet }
func (*Win) Action() string          { return model.ActionWin }
func (*Refund) Action() string       { return model.ActionRefund }
func (*Rollback) Action() string     { return model.ActionRollback }

// HeaderOf 取事件公共字段
func HeaderOf(ev Event) EventHeader {
	return *ev.header()
}

// RollbackIDs 回滚事件引用的供应商流水号，按报文顺序
func (r *Rollback) RollbackIDs() []string {
	ids := make([]string, 0, len(r.Refs))
	for _, ref := range r.Refs {
		ids = append(ids, ref.TransactionID)
	}
	return ids
}

// ParseCallback 在边界把回调报文校验并转换为具体事件
func ParseCallback(provider string, body []byte, defaultCurrency string) (Event, error) {
	var p CallbackPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, invalid("invalid_payload")
	}

	action := strings.ToLower(strings.TrimSpace(p.Action))
	if action == "" {
		return nil, invalid("invalid_action")
	}

	playerID, err := strconv.ParseInt(string(p.PlayerID), 10, 64)
	if err != nil || playerID <= 0 {
		return nil, invalid("invalid_player_id")
	}

	h := EventHeader{
		Provider:      provider,
		AccountID:     playerID,
		TransactionID: string(p.TransactionID),
		SessionID:     string(p.SessionID),
		GameReference: string(p.GameUUID),
		RoundID:       string(p.RoundID),
		Currency:      strings.ToUpper(strings.TrimSpace(p.Currency)),
		Raw:           string(body),
	}
	if h.Currency == "" {
		h.Currency = defaultCurrency
	}

	switch action {
	case model.ActionBalance:
		h.TransactionID = ""
		return &BalanceQuery{EventHeader: h}, nil
	case model.ActionBet, model.ActionWin, model.ActionRefund:
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		if h.TransactionID == "" {
			return nil, invalid("invalid_transaction_id")
		}
		switch action {
		case model.ActionBet:
			return &Bet{EventHeader: h, Amount: amount}, nil
		case model.ActionWin:
			return &Win{EventHeader: h, Amount: amount}, nil
		}
		if p.BetTransactionID == "" {
			return nil, invalid("invalid_bet_transaction_id")
		}
		return &Refund{EventHeader: h, Amount: amount, BetTransactionID: string(p.BetTransactionID)}, nil
	case model.ActionRollback:
		if h.TransactionID == "" {
			return nil, invalid("invalid_transaction_id")
		}
		rb := &Rollback{EventHeader: h}
		for _, item := range p.RollbackTransactions {
			a := strings.ToLower(strings.TrimSpace(item.Action))
			if item.TransactionID == "" || a == "" {
				continue
			}
			rb.Refs = append(rb.Refs, RollbackRef{TransactionID: string(item.TransactionID), Action: a})
		}
		return rb, nil
	}
	return nil, invalid("unsupported_action")
}

// parseAmount 金额必须为正，最多两位小数
func parseAmount(raw flexString) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, invalid("invalid_amount")
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, invalid("invalid_amount")
	}
	// 超过两位小数直接拒绝，不做舍入
	if !d.Equal(d.Truncate(2)) {
		return decimal.Zero, invalid("invalid_amount")
	}
	if !d.IsPositive() {
		return decimal.Zero, invalid("invalid_amount")
	}
	return d, nil
}
