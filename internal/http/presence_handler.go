package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/realtime"
)

// PresenceHandler expone snapshots de solo lectura del registro de sesiones.
type PresenceHandler struct {
	logger   *zap.Logger
	registry *realtime.Registry
	admins   map[int64]struct{}
}

// NewPresenceHandler recibe los user ids autorizados a desconectar a otros usuarios.
func NewPresenceHandler(logger *zap.Logger, registry *realtime.Registry, adminIDs []int64) *PresenceHandler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id > 0 {
			admins[id] = struct{}{}
		}
	}
	return &PresenceHandler{logger: logger, registry: registry, admins: admins}
}

// OnlineUsers maneja GET /api/websocket/online-users.
func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	sessions := h.registry.All()
	c.JSON(http.StatusOK, gin.H{"users": sessions, "count": len(sessions)})
}

// OnlineCount maneja GET /api/websocket/online-count.
func (h *PresenceHandler) OnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.registry.Count()})
}

// Evict maneja DELETE /api/websocket/online-users/:userId.
// Un usuario puede cerrar su propia sesion; cerrar la de otro requiere ser admin.
func (h *PresenceHandler) Evict(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if _, admin := h.admins[claims.UserID]; !admin && claims.UserID != userID {
		h.logger.Warn("eviction denied",
			zap.Int64("user_id", userID),
			zap.Int64("requested_by", claims.UserID),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to disconnect this user"})
		return
	}
	if !h.registry.Evict(userID, "disconnected by server") {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not online"})
		return
	}
	h.logger.Info("session evicted",
		zap.Int64("user_id", userID),
		zap.Int64("requested_by", claims.UserID),
	)
	c.Status(http.StatusNoContent)
}
