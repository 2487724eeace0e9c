package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-server/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida JWT access tokens y guarda claims en el contexto.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
