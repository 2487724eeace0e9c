package service

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chat-server/internal/domain"
)

// JWTService emite y valida tokens JWT.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Claims struct {
	UserID    int64  `json:"uid"`
	Username  string `json:"username"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

const defaultIssuer = "chat-server"

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     defaultIssuer,
		store:      NewMemoryRefreshTokenStore(),
	}
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *JWTService {
	svc := NewJWTService(secret, accessTTL, refreshTTL)
	if store != nil {
		svc.store = store
	}
	return svc
}

// WithIssuer reemplaza el issuer por defecto; vacio se ignora.
func (s *JWTService) WithIssuer(issuer string) *JWTService {
	if strings.TrimSpace(issuer) != "" {
		s.issuer = strings.TrimSpace(issuer)
	}
	return s
}

func (s *JWTService) GeneratePair(user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 || user.ID <= 0 {
		return TokenPair{}, ErrJWTInvalid
	}
	now := time.Now().UTC()
	access, err := s.signToken(user, now, s.accessTTL, "access", "")
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.signToken(user, now, s.refreshTTL, "refresh", jti)
	if err != nil {
		return TokenPair{}, err
	}
	if s.store != nil {
		if err := s.store.Store(jti, strconv.FormatInt(user.ID, 10), s.refreshTTL); err != nil {
			return TokenPair{}, err
		}
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *JWTService) RefreshPair(refreshToken string) (TokenPair, error) {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	ok, err := s.store.Exists(claims.ID)
	if err != nil || !ok {
		return TokenPair{}, ErrJWTInvalid
	}
	if err := s.store.Revoke(claims.ID); err != nil {
		return TokenPair{}, ErrJWTInvalid
	}
	return s.GeneratePair(domain.User{ID: claims.UserID, Username: claims.Username})
}

func (s *JWTService) RevokeRefresh(refreshToken string) error {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return err
	}
	return s.store.Revoke(claims.ID)
}

// ParseAccessToken valida firma, expiracion, issuer y tipo de un access token.
func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" {
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) parseRefresh(refreshToken string) (Claims, error) {
	if len(s.secret) == 0 || s.store == nil {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(refreshToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "refresh" || claims.ID == "" {
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) signToken(user domain.User, now time.Time, ttl time.Duration, tokenType, jti string) (string, error) {
	claims := Claims{
		UserID:    user.ID,
		Username:  user.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if claims.UserID <= 0 {
		return false
	}
	if strings.TrimSpace(claims.Username) == "" {
		return false
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
