package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/likegate/internal/middleware"
)

type RouterDeps struct {
	Verify       *VerifyHandler
	Admin        *AdminHandler
	Health       *HealthHandler
	JWTSecret    []byte
	VerifyWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Get)
	api.GET("/verify/:code", middleware.RateLimit(deps.VerifyWindow), deps.Verify.Verify)

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	adminGroup.POST("/privileges", deps.Admin.Grant)
	adminGroup.DELETE("/privileges/:user_id", deps.Admin.Revoke)
}
