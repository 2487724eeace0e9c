package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chat-server/internal/domain"
	"chat-server/internal/repository"
)

// UserService registra usuarios y valida credenciales antes de emitir tokens de chat.
type UserService struct {
	logger *zap.Logger
	users  repository.UserRepository
	cost   int
}

func NewUserService(logger *zap.Logger, users repository.UserRepository) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		logger: logger,
		users:  users,
		cost:   bcrypt.DefaultCost,
	}
}

type RegisterInput struct {
	Username    string
	Password    string
	DisplayName string
}

var (
	ErrUserServiceNotConfigured = errors.New("user service not configured")
	ErrInvalidUsername          = errors.New("username must be 3-32 characters of letters, digits, '_' or '-'")
	ErrWeakPassword             = errors.New("password must have at least 8 characters")
	ErrUsernameTaken            = errors.New("username already taken")
	ErrInvalidCredentials       = errors.New("invalid credentials")
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	username := normalizeUsername(input.Username)
	if !usernameRegex.MatchString(username) {
		return domain.User{}, ErrInvalidUsername
	}
	if len(input.Password) < 8 {
		return domain.User{}, ErrWeakPassword
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return domain.User{}, ErrUsernameTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return domain.User{}, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}
	user, err := s.users.Create(ctx, domain.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
