package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ovationlabs/venuepulse-backend/internal/handlers"
	"github.com/ovationlabs/venuepulse-backend/internal/middleware"
)

const (
	RoleSafety = "safety"
	RoleAdmin  = "admin"
)

type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleware
	CountHandler   *handlers.CountHandler
	StatsHandler   *handlers.StatsHandler
	AdminHandler   *handlers.AdminHandler
	LiveHandler    *handlers.LiveHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("venuepulse"))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)

	// Safety personnel
	safety := router.Group("/safety")
	safety.Use(cfg.AuthMiddleware.RequireAuth())
	{
		safety.POST("/count", cfg.AuthMiddleware.RequireRole(RoleSafety), cfg.CountHandler.RecordCount)
		safety.GET("/stats", cfg.AuthMiddleware.RequireRole(RoleSafety), cfg.StatsHandler.GetStats)
		safety.GET("/history", cfg.AuthMiddleware.RequireRole(RoleSafety), cfg.StatsHandler.GetHistory)
		safety.GET("/health", cfg.AuthMiddleware.RequireRole(RoleSafety, RoleAdmin), cfg.StatsHandler.Health)
		safety.GET("/live", cfg.AuthMiddleware.RequireRole(RoleSafety, RoleAdmin), cfg.LiveHandler.Stream)

		admin := safety.Group("/admin")
		admin.Use(cfg.AuthMiddleware.RequireRole(RoleAdmin))
		{
			admin.POST("/reset-user", cfg.AdminHandler.ResetUser)
			admin.POST("/reset-date", cfg.AdminHandler.ResetDate)
			admin.POST("/backfill", cfg.AdminHandler.Backfill)
			admin.GET("/reset-logs", cfg.AdminHandler.ResetLogs)
		}
	}

	return router
}
