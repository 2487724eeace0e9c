package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/realtime"
	"chat-server/internal/service"
)

// HandshakeGate valida el token de la peticion de upgrade antes de que el protocolo
// cambie. El token llega en ?token= (los navegadores no pueden fijar headers en
// un websocket) o, como alternativa, en Authorization: Bearer.
func HandshakeGate(logger *zap.Logger, jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			return
		}

		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			token = bearerToken(c)
		}
		if token == "" {
			logger.Warn("websocket handshake rejected: missing token", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			reason := "invalid token"
			if errors.Is(err, service.ErrJWTExpired) {
				reason = "token expired"
			}
			logger.Warn("websocket handshake rejected", zap.String("reason", reason), zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}

		ctx := realtime.WithIdentity(c.Request.Context(), realtime.Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
