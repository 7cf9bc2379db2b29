package handler

import (
	"github.com/gin-gonic/gin"

	"hbai-chat-go/internal/middleware"
	"hbai-chat-go/internal/service"
	"hbai-chat-go/pkg/token"
)

// Services 汇总路由所需的业务服务。
type Services struct {
	Sessions service.SessionService
	Chat     service.ChatService
	Export   service.ExportService
	Archive  service.ArchiveService
}

// RegisterRoutes 在引擎上注册全部 HTTP 与 WebSocket 路由。
func RegisterRoutes(r *gin.Engine, svc Services, jwtManager *token.JWTManager, limiter *middleware.VisitorLimiter) {
	auth := middleware.AuthMiddleware(jwtManager)
	systemHandler := NewSystemHandler(svc.Chat)
	sessionHandler := NewSessionHandler(svc.Sessions, svc.Chat, svc.Export)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/visitor", NewAuthHandler(jwtManager).Visitor)
		apiV1.GET("/health", systemHandler.Health)
		apiV1.GET("/i18n/:lang", systemHandler.I18n)

		// 需要认证的路由
		authed := apiV1.Group("/")
		authed.Use(auth)
		{
			authed.GET("/model", systemHandler.Model)
			authed.POST("/generate", middleware.RateLimit(limiter), systemHandler.Generate)
			authed.GET("/archive", NewArchiveHandler(svc.Archive).List)
		}

		// Session 路由组
		sessions := apiV1.Group("/sessions")
		sessions.Use(auth)
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.POST("/:id/messages", middleware.RateLimit(limiter), sessionHandler.Submit)
			sessions.POST("/:id/acknowledge", sessionHandler.Acknowledge)
			sessions.POST("/:id/reset", sessionHandler.Reset)
			sessions.POST("/:id/export", sessionHandler.Export)
		}
	}

	// Chat 路由 (WebSocket)，token 通过路径传递
	r.GET("/chat/:token", NewChatHandler(svc.Chat, jwtManager).Handle)
}
