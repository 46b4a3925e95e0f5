package handlers

import (
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/gin-gonic/gin"
)

// Response is the envelope every console endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo carries error details inside a Response.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Success: true, Data: data})
}

func errorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

// errorWithData sends an error response that still carries a data payload,
// used when a blocked or failed operation has a report worth returning.
func errorWithData(c *gin.Context, statusCode int, code, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: false,
		Data:    data,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

func badRequest(c *gin.Context, message string) {
	errorResponse(c, 400, types.ErrCodeInvalidRequest, message)
}

func notFound(c *gin.Context, message string) {
	errorResponse(c, 404, types.ErrCodeRollbackNotFound, message)
}

func internalError(c *gin.Context, message string) {
	errorResponse(c, 500, types.ErrCodeInternalError, message)
}
