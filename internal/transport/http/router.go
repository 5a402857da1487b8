// Package httptransport 暴露同步触发与邮件/工单读取的 HTTP API。
package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/health"
	"mailsync/backend/internal/middleware"
	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/service"
	mailsync "mailsync/backend/internal/sync"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	orchestrator *mailsync.Orchestrator
	tickets      *service.TicketService
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	Orchestrator  *mailsync.Orchestrator
	TicketService *service.TicketService
	Metrics       *monitoring.Metrics // 可选
	HealthChecker *health.Checker     // 可选
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
		router.Use(mm.PanicRecovery())
		router.Use(mm.HTTPMetrics())
	} else {
		router.Use(gin.Recovery())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时需清空凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		orchestrator: deps.Orchestrator,
		tickets:      deps.TicketService,
	}

	// 健康检查与指标
	if deps.HealthChecker != nil {
		router.GET("/live", gin.WrapH(deps.HealthChecker.Handler()))
		router.GET("/ready", gin.WrapH(deps.HealthChecker.Handler()))
		router.GET("/health", func(c *gin.Context) {
			Success(c, deps.HealthChecker.Snapshot())
		})
	} else {
		router.GET("/health", func(c *gin.Context) {
			Success(c, gin.H{"status": "ok"})
		})
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// 同步触发是重操作，单独限流
		syncLimit := middleware.SyncTriggerLimit(deps.Config.Sync.TriggerRPS, deps.Metrics)
		v1.POST("/sync", syncLimit, handler.triggerSync)
		v1.GET("/sync/runs", handler.listSyncRuns)

		emailRoutes := v1.Group("/emails")
		{
			emailRoutes.GET("", handler.listEmails)
			emailRoutes.GET("/:id", handler.getEmail)

			// 工单流转端点可按配置启用 JWT 鉴权
			var guards []gin.HandlerFunc
			if deps.Config.JWT.Enabled {
				jwtAuth := middleware.NewJWTAuth(deps.Config.JWT.Secret, deps.Config.JWT.Issuer, deps.Logger)
				guards = append(guards, jwtAuth.RequireAuth())
			}

			emailRoutes.POST("/:id/discard", append(guards, handler.discardEmail)...)
			emailRoutes.POST("/:id/ticket", append(guards, handler.promoteEmail)...)
			emailRoutes.PATCH("/:id/status", append(guards, handler.setEmailStatus)...)
		}
	}

	return router
}
