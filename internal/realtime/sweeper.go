package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunIdleSweep desconecta periodicamente las sesiones inactivas hasta que ctx se cancela.
// Con maxIdle <= 0 no hace nada.
func RunIdleSweep(ctx context.Context, logger *zap.Logger, registry *Registry, maxIdle, every time.Duration) {
	if maxIdle <= 0 || registry == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if every <= 0 {
		every = maxIdle / 2
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range registry.EvictIdle(maxIdle) {
				logger.Info("idle session evicted",
					zap.String("connection_id", s.ConnectionID),
					zap.Int64("user_id", s.UserID),
					zap.Time("last_active_at", s.LastActiveAt),
				)
			}
		}
	}
}
