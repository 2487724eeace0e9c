package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/service"
)

// Handlers agrupa los handlers que monta NewRouter.
type Handlers struct {
	Auth     *AuthHandler
	Chat     *ChatHandler
	Groups   *GroupHandler
	Presence *PresenceHandler
	Health   *HealthHandler
	// WebSocket atiende el upgrade una vez superado el HandshakeGate.
	WebSocket http.Handler
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, jwtSvc *service.JWTService, h Handlers) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	// El upgrade escribe su propia respuesta; no lleva JSON content-type.
	r.GET("/ws/chat", HandshakeGate(logger, jwtSvc), gin.WrapH(h.WebSocket))

	api := r.Group("", jsonContentTypeMiddleware())
	api.GET("/health", h.Health.Health)

	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.RefreshToken)
	auth.POST("/logout", h.Auth.Logout)

	presence := api.Group("/api/websocket")
	presence.GET("/online-users", h.Presence.OnlineUsers)
	presence.GET("/online-count", h.Presence.OnlineCount)
	presence.DELETE("/online-users/:userId", JWTAuthMiddleware(jwtSvc), h.Presence.Evict)

	messages := api.Group("/api/chat/messages", JWTAuthMiddleware(jwtSvc))
	messages.POST("/private", h.Chat.SendPrivate)
	messages.POST("/group", h.Chat.SendGroup)
	messages.GET("/private", h.Chat.PrivateHistory)
	messages.GET("/group/:groupId", h.Chat.GroupHistory)
	messages.PUT("/:messageId/read", h.Chat.MarkRead)
	messages.PUT("/:messageId/delivered", h.Chat.MarkDelivered)

	groups := api.Group("/api/chat/groups", JWTAuthMiddleware(jwtSvc))
	groups.POST("", h.Groups.CreateGroup)
	groups.GET("/mine", h.Groups.ListMine)
	groups.GET("/:groupId", h.Groups.GetGroup)
	groups.POST("/:groupId/members/:userId", h.Groups.AddMember)
	groups.DELETE("/:groupId/members/:userId", h.Groups.RemoveMember)
	groups.DELETE("/:groupId", h.Groups.Dismiss)

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
