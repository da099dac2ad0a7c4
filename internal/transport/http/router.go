package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nmail/backend/internal/config"
	"nmail/backend/internal/health"
	"nmail/backend/internal/middleware"
	"nmail/backend/internal/monitoring"
	"nmail/backend/internal/service"
	"nmail/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	Metrics        *monitoring.Metrics
	HealthChecker  *health.Checker
	WebSocketHub   *websocket.Hub
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))
	router.Use(deps.Metrics.GinMiddleware())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Mailbox-Token"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 允许所有来源时必须关闭凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.MailboxService, deps.MessageService, deps.Metrics)
	mailboxAuth := middleware.NewMailboxAuth(deps.MailboxService, deps.Logger)

	// 健康检查与监控端点
	router.GET("/health", gin.WrapH(deps.HealthChecker.Handler()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	api := router.Group("/api")
	{
		api.GET("/config", handler.GetConfig)

		mailboxRoutes := api.Group("/mailboxes")
		{
			mailboxRoutes.POST("", handler.CreateMailbox)

			// 需要邮箱Token的端点
			mailboxRoutes.GET("/:id", mailboxAuth.RequireMailboxToken(), handler.GetMailbox)
			mailboxRoutes.DELETE("/:id", mailboxAuth.RequireMailboxToken(), handler.DeleteMailbox)

			mailboxRoutes.GET("/:id/messages", mailboxAuth.RequireMailboxToken(), handler.ListMessages)
			mailboxRoutes.GET("/:id/messages/:messageId", mailboxAuth.RequireMailboxToken(), handler.GetMessage)
			mailboxRoutes.POST("/:id/messages/:messageId/read", mailboxAuth.RequireMailboxToken(), handler.MarkMessageRead)
			mailboxRoutes.GET("/:id/messages/:messageId/attachments/:attachmentId", mailboxAuth.RequireMailboxToken(), handler.DownloadAttachment)
		}

		// WebSocket 实时推送
		if deps.WebSocketHub != nil {
			api.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
