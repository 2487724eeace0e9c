package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-server/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Cada conexion websocket puede persistir en paralelo; el pool queda acotado.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT UNIQUE NOT NULL,
		display_name  TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		owner_id    BIGINT NOT NULL,
		is_public   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_group_members (
		group_id  BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
		user_id   BIGINT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		sender_id   BIGINT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		receiver_id BIGINT,
		group_id    BIGINT,
		content     TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'sent',
		sent_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_private ON chat_messages(sender_id, receiver_id, sent_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_group ON chat_messages(group_id, sent_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_group_members_user ON chat_group_members(user_id)`,
}

// Migrate crea las tablas del chat si no existen.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
