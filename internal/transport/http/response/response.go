package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest           = 40000
	CodeConversationNotFound = 40401
	CodeInternalServer       = 50000
	CodeUpstreamUnavailable  = 50300
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func OK(c *gin.Context, data any) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
