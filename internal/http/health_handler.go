package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger es cualquier dependencia que pueda verificar su conectividad (pool de Postgres).
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	logger *zap.Logger
	db     Pinger
}

func NewHealthHandler(logger *zap.Logger, db Pinger) *HealthHandler {
	return &HealthHandler{logger: logger, db: db}
}

// Health maneja GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
