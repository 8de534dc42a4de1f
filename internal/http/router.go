package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"referral-chat/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	chatH *ChatHandler,
	streamH *StreamHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", jsonContentTypeMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("", JWTAuthMiddleware(jwtSvc))

	conversations := api.Group("/conversations", jsonContentTypeMiddleware())
	conversations.POST("", chatH.OpenConversation)
	conversations.GET("/unread", chatH.UnreadCount)
	conversations.GET("/:id/messages", chatH.ListMessages)
	conversations.POST("/:id/messages", chatH.PostMessage)
	conversations.POST("/:id/read", chatH.MarkRead)
	conversations.POST("/:id/assessment", chatH.StartAssessment)
	conversations.GET("/:id/assessment", chatH.GetAssessment)
	conversations.POST("/:id/assessment/answer", chatH.AnswerAssessment)
	conversations.POST("/:id/assessment/resume", chatH.ResumeAssessment)

	staff := api.Group("/staff", jsonContentTypeMiddleware())
	staff.GET("/conversations", chatH.ListTriage)

	// El upgrade de websocket no lleva Content-Type JSON.
	api.GET("/ws", streamH.Serve)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
