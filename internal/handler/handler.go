package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/infrastructure/logger"
	"gamewallet/internal/model"
	"gamewallet/internal/provider"
	"gamewallet/internal/service"
	"gamewallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// 回调报文上限
const maxCallbackBody = 1 << 20

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg *config.Config
	svc *service.Services
}

func NewHandler(cfg *config.Config, svc *service.Services) *Handler {
	return &Handler{cfg: cfg, svc: svc}
}

// errorCode 业务错误到响应码
func errorCode(err error) (int, int) {
	switch {
	case service.IsValidation(err):
		return http.StatusBadRequest, response.CodeParamError
	case errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound, response.CodeAccountNotFound
	case errors.Is(err, service.ErrAccountInactive):
		return http.StatusForbidden, response.CodeAccountInactive
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusBadRequest, response.CodeInsufficientFunds
	case errors.Is(err, service.ErrRolloverNotCompleted):
		return http.StatusBadRequest, response.CodeRolloverNotCompleted
	case errors.Is(err, service.ErrRedeemCodeLimitReached):
		return http.StatusBadRequest, response.CodeRedeemCodeLimit
	case errors.Is(err, service.ErrRedeemCodeInvalid):
		return http.StatusNotFound, response.CodeRedeemCodeInvalid
	case errors.Is(err, service.ErrAlreadyRedeemed):
		return http.StatusConflict, response.CodeAlreadyRedeemed
	case errors.Is(err, service.ErrDepositNotFound), errors.Is(err, service.ErrWithdrawalNotFound):
		return http.StatusNotFound, response.CodeOrderNotFound
	case errors.Is(err, service.ErrOrderStatusInvalid):
		return http.StatusConflict, response.CodeOrderStatusInvalid
	case errors.Is(err, service.ErrBelowMinimum):
		return http.StatusBadRequest, response.CodeBelowMinimum
	case errors.Is(err, service.ErrVipBonusNotAvailable), errors.Is(err, service.ErrInsufficientVipBonus):
		return http.StatusBadRequest, response.CodeVipBonusUnavailable
	case errors.Is(err, service.ErrUnknownProvider):
		return http.StatusNotFound, response.CodeNotFound
	case errors.Is(err, service.ErrBusy):
		return http.StatusTooManyRequests, response.CodeBusy
	case errors.Is(err, provider.ErrProviderTimeout), errors.Is(err, provider.ErrProviderUnavailable),
		errors.Is(err, provider.ErrAuthFailed), errors.Is(err, provider.ErrLaunchFailed),
		errors.Is(err, provider.ErrInvalidResponse):
		return http.StatusBadGateway, response.CodeProviderUnavailable
	}
	return http.StatusInternalServerError, response.CodeServerError
}

// fail 玩家接口沿用 200 + 业务码
func fail(c *gin.Context, err error) {
	_, code := errorCode(err)
	if code == response.CodeServerError {
		logger.Error(c.Request.Context(), "[Handler] 内部错误", "path", c.Request.URL.Path, "err", err)
		response.ServerError(c, "internal_error")
		return
	}
	response.BusinessError(c, code, err.Error())
}

// ============================================================
// 供应商回调
// ============================================================

// GameCallback 供应商结算回调
// POST /webhook/:provider
//
// 成功返回 {balance, transaction_id}；失败返回非 200，供应商按自身策略重试。
func (h *Handler) GameCallback(c *gin.Context) {
	ctx := c.Request.Context()
	name := strings.ToLower(c.Param("provider"))

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		response.ErrorStatus(c, http.StatusBadRequest, response.CodeParamError, "invalid_payload")
		return
	}

	ev, err := service.ParseCallback(name, body, h.defaultCurrency(name))
	if err != nil {
		logger.Warn(ctx, "[Callback] 报文校验失败", "provider", name, "err", err)
		response.ErrorStatus(c, http.StatusBadRequest, response.CodeParamError, err.Error())
		return
	}

	res, err := h.svc.Settlement.Settle(ctx, ev)
	if err != nil {
		status, code := errorCode(err)
		msg := err.Error()
		if code == response.CodeServerError {
			msg = "internal_error"
		}
		response.ErrorStatus(c, status, code, msg)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) defaultCurrency(name string) string {
	if p, ok := h.cfg.Provider(name); ok && p.Currency != "" {
		return p.Currency
	}
	return h.cfg.Business.DefaultCurrency
}

// DepositCallback 支付网关到账回调
// POST /payment/webhook/deposit
//
// 只有 status=paid 才入账，其他状态应答 processed=false 且不改动充值单。
func (h *Handler) DepositCallback(c *gin.Context) {
	ctx := c.Request.Context()
	var req struct {
		Reference string `json:"reference" binding:"required"`
		Status    string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorStatus(c, http.StatusBadRequest, response.CodeParamError, "invalid_payload")
		return
	}
	if !strings.EqualFold(strings.TrimSpace(req.Status), "paid") {
		logger.Info(ctx, "[Deposit] 网关回调非到账状态，忽略", "reference", req.Reference, "status", req.Status)
		response.Success(c, gin.H{"processed": false, "reference": req.Reference, "status": req.Status})
		return
	}
	res, err := h.svc.Deposit.ConfirmDeposit(ctx, req.Reference)
	if err != nil {
		status, code := errorCode(err)
		response.ErrorStatus(c, status, code, err.Error())
		return
	}
	response.Success(c, res)
}

// ============================================================
// 玩家接口
// ============================================================

// GetBalances GET /api/v1/account/balance
func (h *Handler) GetBalances(c *gin.Context) {
	res, err := h.svc.Account.GetBalances(c.Request.Context(), accountID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// GameHistory GET /api/v1/account/games?page=1&page_size=20
func (h *Handler) GameHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	res, err := h.svc.Account.GameHistory(c.Request.Context(), accountID(c), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// RolloverStatus GET /api/v1/account/rollover
func (h *Handler) RolloverStatus(c *gin.Context) {
	res, err := h.svc.Rollover.Status(c.Request.Context(), accountID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// CreateDeposit POST /api/v1/deposit
func (h *Handler) CreateDeposit(c *gin.Context) {
	var req service.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.AccountID = accountID(c)
	res, err := h.svc.Deposit.CreateDeposit(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// RequestWithdrawal POST /api/v1/withdrawal
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req service.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.AccountID = accountID(c)
	res, err := h.svc.Withdrawal.RequestWithdrawal(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// ListWithdrawals GET /api/v1/withdrawal/list
func (h *Handler) ListWithdrawals(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	list, total, err := h.svc.Withdrawal.List(c.Request.Context(), accountID(c), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// VipProgress GET /api/v1/vip/progress
func (h *Handler) VipProgress(c *gin.Context) {
	res, err := h.svc.Vip.Progress(c.Request.Context(), accountID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// VipBonus GET /api/v1/vip/bonus
func (h *Handler) VipBonus(c *gin.Context) {
	res, err := h.svc.Vip.BonusSummary(c.Request.Context(), accountID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// VipHistory GET /api/v1/vip/history
func (h *Handler) VipHistory(c *gin.Context) {
	res, err := h.svc.Vip.History(c.Request.Context(), accountID(c), 50)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// RedeemVipBonus POST /api/v1/vip/redeem
func (h *Handler) RedeemVipBonus(c *gin.Context) {
	var req struct {
		Kind   string `json:"kind" binding:"required"`
		Amount string `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount := decimal.Zero
	if req.Amount != "" {
		d, err := decimal.NewFromString(req.Amount)
		if err != nil || !d.Equal(d.Truncate(2)) {
			response.ParamError(c, "invalid_amount")
			return
		}
		amount = d
	}
	res, err := h.svc.Vip.RedeemBonus(c.Request.Context(), accountID(c), req.Kind, amount)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// AffiliateStats GET /api/v1/affiliate/stats
func (h *Handler) AffiliateStats(c *gin.Context) {
	res, err := h.svc.Affiliate.Stats(c.Request.Context(), accountID(c), parseTime(c.Query("from")), parseTime(c.Query("to")))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// WithdrawCommission POST /api/v1/affiliate/withdraw
func (h *Handler) WithdrawCommission(c *gin.Context) {
	var req struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	if err := h.svc.Affiliate.WithdrawCommission(ctx, accountID(c), req.Amount); err != nil {
		fail(c, err)
		return
	}
	res, err := h.svc.Account.GetBalances(ctx, accountID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// RedeemCode POST /api/v1/redeem
func (h *Handler) RedeemCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.Promotion.Redeem(c.Request.Context(), accountID(c), req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// LaunchGame POST /api/v1/games/launch
func (h *Handler) LaunchGame(c *gin.Context) {
	var req struct {
		Provider string `json:"provider" binding:"required"`
		GameID   string `json:"game_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.Launch.Launch(c.Request.Context(), accountID(c), req.Provider, req.GameID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// ============================================================
// 运维接口
// ============================================================

// ApproveWithdrawal POST /admin/withdrawal/:id/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}
	res, err := h.svc.Withdrawal.Approve(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// RejectWithdrawal POST /admin/withdrawal/:id/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	res, err := h.svc.Withdrawal.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// SetAccountStatus POST /admin/account/:id/status
func (h *Handler) SetAccountStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}
	var req struct {
		Status bool `json:"status"`
		Banned bool `json:"banned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.Account.SetStatus(c.Request.Context(), id, req.Status, req.Banned); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"account_id": id, "status": req.Status, "banned": req.Banned})
}

// GetSettings GET /admin/settings
func (h *Handler) GetSettings(c *gin.Context) {
	res, err := h.svc.Settings.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// UpdateSettings PUT /admin/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req service.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.Settings.Update(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// RunJob POST /admin/jobs/:name 手动补跑批处理
func (h *Handler) RunJob(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		report *service.JobReport
		err    error
	)
	switch c.Param("name") {
	case "vip-weekly":
		report, err = h.svc.Vip.RunPeriodicBonus(ctx, model.VipKindWeekly)
	case "vip-monthly":
		report, err = h.svc.Vip.RunPeriodicBonus(ctx, model.VipKindMonthly)
	case "rakeback":
		report, err = h.svc.Promotion.RunDailyRakeback(ctx)
	default:
		response.Error(c, response.CodeNotFound, "unknown_job")
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, report)
}

// FailedOutbox GET /admin/outbox/failed
func (h *Handler) FailedOutbox(c *gin.Context) {
	list, err := h.svc.Outbox.Failed(c.Request.Context(), 100)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// RequeueOutbox POST /admin/outbox/requeue
func (h *Handler) RequeueOutbox(c *gin.Context) {
	var req struct {
		IDs []int64 `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	n, err := h.svc.Outbox.Requeue(c.Request.Context(), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}

// parseTime 支持 YYYY-MM-DD 或 RFC3339，解析失败视为不限
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
