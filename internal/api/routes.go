package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/audit"
	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/metrics"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/service"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config           *config.Config
	Logger           *logrus.Logger
	DB               *gorm.DB
	Verifier         auth.TokenVerifier
	ChangeRequests   *service.ChangeRequestService
	HardwareRequests *service.HardwareChangeRequestService
	SoftwareRequests *service.SoftwareChangeRequestService
	AuditReader      *audit.Reader
	Auth             service.AuthService
	Logins           service.LoginLogService
	Ships            service.ShipService
	Components       service.ComponentService
	Bootstrap        ReadinessProbe
	Tracing          bool
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Tracing {
		router.Use(TracingMiddleware())
	}
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(deps.Logger))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(auth.ClientInfoMiddleware())
	router.Use(ErrorHandlerMiddleware(deps.Logger))

	// 健康检查
	health := NewHealthController(deps.DB, deps.Bootstrap)
	router.GET("/health", health.Check)
	router.GET("/ready", health.Ready)

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")

	authController := NewAuthController(deps.Auth, deps.Logins)
	loginLimiter := NewClientRateLimiter(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst)
	v1.POST("/auth/login", loginLimiter.Middleware(), authController.Login)

	protected := v1.Group("")
	protected.Use(auth.BearerAuthMiddleware(deps.Verifier))
	adminOnly := auth.RequireRole(model.RoleAdmin)
	{
		account := protected.Group("/auth")
		account.GET("/me", authController.Me)
		account.POST("/logout", authController.Logout)
		account.POST("/password", authController.ChangePassword)

		security := protected.Group("/security", adminOnly)
		security.GET("/failed-logins", authController.FailedLogins)
		security.GET("/events", authController.SecurityEvents)
		security.GET("/users/:id/logins", authController.UserLogins)
		security.POST("/users/:id/unlock", authController.Unlock)

		if deps.ChangeRequests != nil {
			NewRequestController(deps.ChangeRequests).Register(protected.Group("/change-requests"), adminOnly)
		}
		if deps.HardwareRequests != nil {
			NewRequestController(deps.HardwareRequests).Register(protected.Group("/hardware-change-requests"), adminOnly)
		}
		if deps.SoftwareRequests != nil {
			NewRequestController(deps.SoftwareRequests).Register(protected.Group("/software-change-requests"), adminOnly)
		}

		if deps.AuditReader != nil {
			audits := NewAuditLogController(deps.AuditReader)
			group := protected.Group("/audit-logs")
			group.GET("", audits.List)
			group.GET("/entity-types", audits.EntityTypes)
			group.GET("/actions", audits.Actions)
			group.GET("/entities/:type/:id", audits.ForEntity)
		}

		if deps.Ships != nil && deps.Components != nil {
			ships := NewShipController(deps.Ships, deps.Components)
			group := protected.Group("/ships")
			group.GET("", ships.List)
			group.GET("/:id", ships.Get)
			group.GET("/:id/components", ships.ListComponents)
			group.POST("", adminOnly, ships.Create)
			group.PUT("/:id", adminOnly, ships.Update)
			group.DELETE("/:id", adminOnly, ships.Deactivate)
			group.POST("/:id/components", adminOnly, ships.CreateComponent)
			protected.DELETE("/components/:id", adminOnly, ships.DeleteComponent)
		}
	}

	// 未匹配的路由返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
