package service

import (
	"context"
	"errors"
	"strings"

	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/provider"
	"gamewallet/internal/repository"

	"gorm.io/gorm"
)

// Launcher 供应商启动接口
type Launcher interface {
	Launch(ctx context.Context, accountID int64, gameID string) (*provider.LaunchResult, error)
}

// LaunchService 为玩家获取游戏地址
type LaunchService struct {
	accountRepo *repository.AccountRepository
	providers   map[string]Launcher
}

func NewLaunchService(db *gorm.DB, providers map[string]Launcher) *LaunchService {
	return &LaunchService{accountRepo: repository.NewAccountRepository(db), providers: providers}
}

type LaunchResponse struct {
	Provider  string `json:"provider"`
	GameID    string `json:"game_id"`
	GameURL   string `json:"game_url"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *LaunchService) Launch(ctx context.Context, accountID int64, providerName, gameID string) (*LaunchResponse, error) {
	if strings.TrimSpace(gameID) == "" {
		return nil, invalid("invalid_game_id")
	}
	p, ok := s.providers[strings.ToLower(providerName)]
	if !ok {
		return nil, ErrUnknownProvider
	}

	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !account.Active() {
		return nil, ErrAccountInactive
	}

	res, err := p.Launch(ctx, account.ID, gameID)
	if err != nil {
		logger.Error(ctx, "[Launch] 获取游戏地址失败", "provider", providerName, "game_id", gameID, "err", err)
		return nil, err
	}
	return &LaunchResponse{Provider: providerName, GameID: gameID, GameURL: res.GameURL, SessionID: res.SessionID}, nil
}
