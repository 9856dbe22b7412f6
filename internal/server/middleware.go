package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorDetail is the body of every error response
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorDetail
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// ErrorHandler turns panics into the standard error envelope
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Handler panic",
			zap.String("path", c.Request.URL.Path),
			zap.String("panic", fmt.Sprint(recovered)))

		if msg, ok := recovered.(string); ok {
			writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", msg)
			return
		}
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	})
}

// Logger logs one line per request
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("Request failed", fields...)
		case c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics":
			logger.Debug("Request", fields...)
		default:
			logger.Info("Request", fields...)
		}
	}
}
