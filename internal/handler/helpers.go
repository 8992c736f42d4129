package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/likegate/internal/middleware"
	"github.com/xxxsen/likegate/internal/pkg/response"
)

// handleError logs the route template rather than the request path, which
// may carry a verification code.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", middleware.RequestIDFrom(c)),
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()),
		zap.Int64("user_id", middleware.UserID(c)),
		zap.Error(err),
	)
	response.ErrorFrom(c, err)
}
