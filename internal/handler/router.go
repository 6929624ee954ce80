package handler

import (
	"time"

	"gamewallet/internal/config"
	"gamewallet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由，gatherer 为 nil 时不暴露 /metrics
func SetupRouter(cfg *config.Config, svc *service.Services, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(cfg, svc)

	// 供应商与支付网关回调
	r.POST("/webhook/:provider", h.GameCallback)
	r.POST("/payment/webhook/deposit", GatewayMiddleware(cfg.Auth.GatewaySecret), h.DepositCallback)

	api := r.Group("/api/v1", AuthMiddleware(cfg.Auth.JWTSecret))
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalances)
			account.GET("/games", h.GameHistory)
			account.GET("/rollover", h.RolloverStatus)
		}

		api.POST("/deposit", h.CreateDeposit)

		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("", h.RequestWithdrawal)
			withdrawal.GET("/list", h.ListWithdrawals)
		}

		vip := api.Group("/vip")
		{
			vip.GET("/progress", h.VipProgress)
			vip.GET("/bonus", h.VipBonus)
			vip.GET("/history", h.VipHistory)
			vip.POST("/redeem", h.RedeemVipBonus)
		}

		api.GET("/affiliate/stats", h.AffiliateStats)
		api.POST("/affiliate/withdraw", h.WithdrawCommission)
		api.POST("/redeem", h.RedeemCode)
		api.POST("/games/launch", h.LaunchGame)
	}

	admin := r.Group("/admin", AdminMiddleware(cfg.Auth.AdminAPIKey))
	{
		admin.POST("/withdrawal/:id/approve", h.ApproveWithdrawal)
		admin.POST("/withdrawal/:id/reject", h.RejectWithdrawal)
		admin.POST("/account/:id/status", h.SetAccountStatus)
		admin.GET("/settings", h.GetSettings)
		admin.PUT("/settings", h.UpdateSettings)
		admin.POST("/jobs/:name", h.RunJob)
		admin.GET("/outbox/failed", h.FailedOutbox)
		admin.POST("/outbox/requeue", h.RequeueOutbox)
	}

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	return r
}
