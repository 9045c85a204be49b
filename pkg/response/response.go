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
	CodeBusinessError = 1000
)

// 积分经济引擎业务错误码
// 与错误分类一一对应，全部是可恢复的用户侧结果，不作为异常抛给前端
const (
	CodeInsufficientPoints  = 2001
	CodeOutOfStock          = 2002
	CodePerUserLimitReached = 2003
	CodeItemInactive        = 2004
	CodeShippingRequired    = 2005
	CodeTierRestricted      = 2006
	CodeSelfReferral        = 2007
	CodeAlreadyReferred     = 2008
	CodeInvalidReferralCode = 2009
	CodeReferralCodeTaken   = 2010
	CodeOrderNotFound       = 2011
	CodeOrderStatusInvalid  = 2012
	CodeAccountNotFound     = 2013
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

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
