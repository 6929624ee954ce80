package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeUnavailable   = 503
	CodeBusinessError = 1000
)

// 业务错误码
const (
	CodeAccountNotFound      = 1001
	CodeAccountInactive      = 1002
	CodeInsufficientFunds    = 1003
	CodeRolloverNotCompleted = 1004
	CodeRedeemCodeLimit      = 1005
	CodeRedeemCodeInvalid    = 1006
	CodeAlreadyRedeemed      = 1007
	CodeOrderNotFound        = 1008
	CodeOrderStatusInvalid   = 1009
	CodeBelowMinimum         = 1010
	CodeVipBonusUnavailable  = 1011
	CodeProviderUnavailable  = 1012
	CodeBusy                 = 1013
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorStatus 供应商回调需要非 200 状态码才会重试
func ErrorStatus(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Code:    CodeUnauthorized,
		Message: message,
	})
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
