package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chat-server/internal/config"
	"chat-server/internal/db"
	apihttp "chat-server/internal/http"
	"chat-server/internal/realtime"
	"chat-server/internal/repository"
	"chat-server/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	messageRepo := repository.NewPgChatMessageRepository(pool)
	groupRepo := repository.NewPgGroupRepository(pool)

	var (
		tokenStore  service.RefreshTokenStore
		limiter     = service.NewMemoryRateLimiter(cfg.ChatRateBurst, cfg.ChatRateWindow)
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory stores", zap.Error(err))
		} else {
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
			limiter = service.NewRedisRateLimiter(redisClient, cfg.ChatRateWindow, cfg.ChatRateBurst)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	).WithIssuer(cfg.JWTIssuer)

	// Una unica instancia de registro y tabla de grupos compartida por todo el proceso.
	registry := realtime.NewRegistry()
	groups := realtime.NewGroups()

	chatSvc := service.NewChatService(logger, messageRepo, groupRepo, groups, cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit)
	loaded, err := chatSvc.LoadMemberships(ctx)
	if err != nil {
		logger.Fatal("load group memberships", zap.Error(err))
	}
	logger.Info("group memberships loaded", zap.Int("groups", loaded))

	userSvc := service.NewUserService(logger, userRepo)

	msgRouter := realtime.NewRouter(logger, registry, groups, chatSvc)
	wsHandler := realtime.NewHandler(logger, registry, msgRouter, realtime.Options{
		AllowedOrigins: cfg.WSAllowedOrigins,
		MaxMessageSize: cfg.WSMaxMessageSize,
		SendBuffer:     cfg.WSSendBuffer,
		WriteWait:      cfg.WSWriteWait,
		PongWait:       cfg.WSPongWait,
		PingInterval:   cfg.WSPingInterval,
		Limiter:        limiter,
	})
	if cfg.WSIdleTimeout > 0 {
		go realtime.RunIdleSweep(ctx, logger, registry, cfg.WSIdleTimeout, cfg.WSSweepInterval)
		logger.Info("idle session sweep enabled", zap.Duration("timeout", cfg.WSIdleTimeout))
	}

	router := apihttp.NewRouter(logger, jwtSvc, apihttp.Handlers{
		Auth:      apihttp.NewAuthHandler(logger, userSvc, jwtSvc),
		Chat:      apihttp.NewChatHandler(logger, chatSvc, groups),
		Groups:    apihttp.NewGroupHandler(logger, chatSvc),
		Presence:  apihttp.NewPresenceHandler(logger, registry, cfg.AdminUserIDs),
		Health:    apihttp.NewHealthHandler(logger, pool),
		WebSocket: wsHandler,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	closed := registry.CloseAll("server shutting down")
	logger.Info("websocket sessions closed", zap.Int("sessions", closed))
}
