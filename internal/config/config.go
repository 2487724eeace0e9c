package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret            string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"chat-server"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"1440"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	WSAllowedOrigins []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`
	WSSendBuffer     int           `env:"WS_SEND_BUFFER" envDefault:"256"`
	WSWriteWait      time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	WSPongWait       time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"54s"`
	WSIdleTimeout    time.Duration `env:"WS_IDLE_TIMEOUT" envDefault:"0s"`
	WSSweepInterval  time.Duration `env:"WS_SWEEP_INTERVAL" envDefault:"30s"`

	ChatRateBurst  int           `env:"CHAT_RATE_BURST" envDefault:"30"`
	ChatRateWindow time.Duration `env:"CHAT_RATE_WINDOW" envDefault:"10s"`

	HistoryDefaultLimit int `env:"HISTORY_DEFAULT_LIMIT" envDefault:"20"`
	HistoryMaxLimit     int `env:"HISTORY_MAX_LIMIT" envDefault:"200"`

	AdminUserIDs []int64 `env:"ADMIN_USER_IDS" envSeparator:","`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
