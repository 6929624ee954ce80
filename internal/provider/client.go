package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gamewallet/internal/config"
)

var (
	ErrProviderTimeout     = errors.New("provider_timeout")
	ErrAuthFailed          = errors.New("provider_auth_failed")
	ErrLaunchFailed        = errors.New("provider_launch_failed")
	ErrInvalidResponse     = errors.New("provider_invalid_response")
	ErrProviderUnavailable = errors.New("provider_unavailable")
)

// LaunchResult 供应商返回的游戏地址
type LaunchResult struct {
	GameURL   string `json:"game_url"`
	SessionID string `json:"session_id,omitempty"`
}

// Client 游戏供应商 HTTP 客户端，每次调用受 ctx 和配置超时约束
type Client struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewClient(name string, cfg config.ProviderConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout()}
	}
	return &Client{name: name, cfg: cfg, client: hc}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) baseURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/")
}

type authResp struct {
	AccessToken string `json:"access_token"`
}

// authenticate 用 agent_token:agent_secret 换取访问令牌
func (c *Client) authenticate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/auth/authentication", nil)
	if err != nil {
		return "", err
	}
	cred := base64.StdEncoding.EncodeToString([]byte(c.cfg.AgentToken + ":" + c.cfg.AgentSecret))
	req.Header.Set("Authorization", "Bearer "+cred)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status=%d", ErrAuthFailed, resp.StatusCode)
	}
	var out authResp
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", ErrInvalidResponse
	}
	return out.AccessToken, nil
}

// Launch 获取玩家的游戏启动地址
func (c *Client) Launch(ctx context.Context, accountID int64, gameID string) (*LaunchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("agent_code", c.cfg.AgentCode)
	q.Set("game_id", gameID)
	q.Set("type", "CHARGED")
	q.Set("currency", c.cfg.Currency)
	q.Set("lang", c.cfg.Lang)
	q.Set("user_id", strconv.FormatInt(accountID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/games/game_launch?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status=%d", ErrLaunchFailed, resp.StatusCode)
	}
	var out LaunchResult
	if err := json.Unmarshal(body, &out); err != nil || out.GameURL == "" {
		return nil, ErrInvalidResponse
	}
	return &out, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrProviderTimeout
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrProviderTimeout
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
