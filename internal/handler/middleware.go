package handler

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"gamewallet/internal/infrastructure/logger"
	"gamewallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ctxAccountID = "account_id"

// RequestIDMiddleware 透传或生成 X-Request-ID，并写入 request context 供日志使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info(c.Request.Context(), "[HTTP]",
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "[PANIC]", "err", err, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, X-Admin-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 校验 HS256 令牌，subject 为账户 ID
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" {
			response.Unauthorized(c, "missing_token")
			return
		}
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			response.Unauthorized(c, "invalid_token")
			return
		}
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || id <= 0 {
			response.Unauthorized(c, "invalid_token")
			return
		}
		c.Set(ctxAccountID, id)
		c.Next()
	}
}

// AdminMiddleware 运维接口使用固定 API Key
func AdminMiddleware(apiKey string) gin.HandlerFunc {
	return sharedKeyMiddleware("X-Admin-Key", apiKey, "invalid_admin_key")
}

// GatewayMiddleware 支付网关回调校验共享密钥
func GatewayMiddleware(secret string) gin.HandlerFunc {
	return sharedKeyMiddleware("X-Gateway-Secret", secret, "invalid_gateway_secret")
}

// 未配置密钥时一律拒绝
func sharedKeyMiddleware(header, want, reason string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(header)
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			response.Unauthorized(c, reason)
			return
		}
		c.Next()
	}
}

func accountID(c *gin.Context) int64 {
	return c.GetInt64(ctxAccountID)
}
