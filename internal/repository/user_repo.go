package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-server/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `
		INSERT INTO users (username, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.DisplayName,
		user.PasswordHash,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	const query = `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	const query = `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE username = $1
	`
	return r.getOne(ctx, query, username)
}

func (r *PgUserRepository) getOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}
	return u, err
}
