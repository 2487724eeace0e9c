package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/domain"
	"chat-server/internal/service"
)

// AuthHandler mantiene dependencias para registro, login y rotacion de tokens.
type AuthHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
	jwtServ  *service.JWTService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, userServ *service.UserService, jwtServ *service.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		userServ: userServ,
		jwtServ:  jwtServ,
	}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required"`
		Password    string `json:"password" binding:"required"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.userServ.Register(c.Request.Context(), service.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		default:
			h.logger.Error("register user failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.userServ.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		return
	}

	tokens, err := h.issueTokens(user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.jwtServ == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	tokens, err := h.jwtServ.RefreshPair(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.jwtServ == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	if err := h.jwtServ.RevokeRefresh(req.RefreshToken); err != nil {
		h.logger.Debug("logout with unusable refresh token", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) issueTokens(user domain.User) (service.TokenPair, error) {
	if h.jwtServ == nil {
		return service.TokenPair{}, errors.New("jwt not configured")
	}
	return h.jwtServ.GeneratePair(user)
}
