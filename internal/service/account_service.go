package service

import (
	"context"
	"errors"

	"gamewallet/internal/model"
	"gamewallet/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountService struct {
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	db          *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		db:          db,
	}
}

// Balances 三个余额字段
type Balances struct {
	AccountID        int64           `json:"account_id"`
	Balance          decimal.Decimal `json:"balance"`
	AffiliateBalance decimal.Decimal `json:"affiliate_balance"`
	VipBalance       decimal.Decimal `json:"vip_balance"`
	Vip              int             `json:"vip"`
}

func (s *AccountService) GetBalances(ctx context.Context, accountID int64) (*Balances, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Balances{
		AccountID:        account.ID,
		Balance:          account.Balance,
		AffiliateBalance: account.AffiliateBalance,
		VipBalance:       account.VipBalance,
		Vip:              account.Vip,
	}, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// SetStatus 禁用/封禁账户，账户不删除
func (s *AccountService) SetStatus(ctx context.Context, accountID int64, status, banned bool) error {
	err := s.accountRepo.SetStatus(ctx, accountID, status, banned)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return err
}

type GameHistory struct {
	Stats    *repository.GameStats `json:"stats"`
	Items    []*model.LedgerEntry  `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

func (s *AccountService) GameHistory(ctx context.Context, accountID int64, page, pageSize int) (*GameHistory, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	stats, err := s.ledgerRepo.Stats(ctx, accountID)
	if err != nil {
		return nil, err
	}
	items, total, err := s.ledgerRepo.ListByAccount(ctx, accountID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &GameHistory{Stats: stats, Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
