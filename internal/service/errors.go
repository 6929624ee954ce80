package service

import (
	"errors"
	"fmt"
)

// 错误文本同时作为对外的错误码
var (
	ErrAccountNotFound        = errors.New("user_not_found")
	ErrAccountInactive        = errors.New("user_inactive")
	ErrInsufficientFunds      = errors.New("insufficient_balance")
	ErrRolloverNotCompleted   = errors.New("rollover_not_completed")
	ErrRedeemCodeLimitReached = errors.New("redeem_code_limit_reached")
	ErrRedeemCodeInvalid      = errors.New("redeem_code_invalid")
	ErrAlreadyRedeemed        = errors.New("redeem_code_already_used")
	ErrBelowMinimum           = errors.New("amount_below_minimum")
	ErrVipBonusNotAvailable   = errors.New("vip_bonus_not_available")
	ErrInsufficientVipBonus   = errors.New("insufficient_vip_bonus")
	ErrDepositNotFound        = errors.New("deposit_not_found")
	ErrWithdrawalNotFound     = errors.New("withdrawal_not_found")
	ErrOrderStatusInvalid     = errors.New("invalid_status")
	ErrUnknownProvider        = errors.New("unknown_provider")
	ErrBusy                   = errors.New("busy_try_again")

	// 流水存在但没有内部流水号，说明写入被截断，不能当作已处理
	ErrIncompleteEntry = errors.New("incomplete_ledger_entry")
	// 被引用的流水在本次回滚期间被其他回滚抢先标记
	ErrRollbackConflict = errors.New("rollback_conflict")
)

// ValidationError 入参校验失败，不落库，调用方修正后重试
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation 是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
