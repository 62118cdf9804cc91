package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zeur-core/pkg/errno"
	"zeur-core/pkg/logger"
)

// Response 统一的 JSON 信封；业务错误同样返回 200，由 code 区分
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(http.StatusOK, Response{Code: errno.OK.Code, Message: errno.OK.Message, Data: data})
}

// Error 未归类的错误按 InternalServerError 返回并记录日志，其余只回写 code
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	if code == errno.InternalServerError.Code {
		logger.Error("unclassified handler error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, Response{Code: code, Message: msg, Data: gin.H{}})
}

// Abort 供中间件使用：回写错误并终止后续 handler
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
