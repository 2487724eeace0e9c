package http

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/service"
)

// GroupHandler mantiene dependencias para la gestion de grupos.
type GroupHandler struct {
	logger   *zap.Logger
	chatServ *service.ChatService
}

func NewGroupHandler(logger *zap.Logger, chatServ *service.ChatService) *GroupHandler {
	return &GroupHandler{logger: logger, chatServ: chatServ}
}

// CreateGroup maneja POST /api/chat/groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req struct {
		Name        string  `json:"groupName" binding:"required"`
		Description string  `json:"description"`
		MemberIDs   []int64 `json:"memberIds"`
		IsPublic    bool    `json:"isPublic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create group request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	group, err := h.chatServ.CreateGroup(c.Request.Context(), service.CreateGroupInput{
		OwnerID:     claims.UserID,
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   req.MemberIDs,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		h.respondGroupError(c, "create group failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// ListMine maneja GET /api/chat/groups/mine.
func (h *GroupHandler) ListMine(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	groups, err := h.chatServ.ListUserGroups(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondGroupError(c, "list groups failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup maneja GET /api/chat/groups/:groupId. Un grupo privado solo es visible para sus miembros.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	group, err := h.chatServ.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		h.respondGroupError(c, "get group failed", err)
		return
	}
	if !group.IsPublic && !slices.Contains(group.MemberIDs, claims.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of the group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// AddMember maneja POST /api/chat/groups/:groupId/members/:userId.
func (h *GroupHandler) AddMember(c *gin.Context) {
	h.changeMember(c, h.chatServ.AddMember, "add member failed")
}

// RemoveMember maneja DELETE /api/chat/groups/:groupId/members/:userId.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	h.changeMember(c, h.chatServ.RemoveMember, "remove member failed")
}

// Dismiss maneja DELETE /api/chat/groups/:groupId.
func (h *GroupHandler) Dismiss(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	if err := h.chatServ.Dismiss(c.Request.Context(), claims.UserID, groupID); err != nil {
		h.respondGroupError(c, "dismiss group failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) changeMember(
	c *gin.Context,
	change func(ctx context.Context, actorID, groupID, userID int64) error,
	logMsg string,
) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if err := change(c.Request.Context(), claims.UserID, groupID, userID); err != nil {
		h.respondGroupError(c, logMsg, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) respondGroupError(c *gin.Context, logMsg string, err error) {
	switch {
	case errors.Is(err, service.ErrChatInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, service.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
	case errors.Is(err, service.ErrGroupForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "operation not allowed"})
	default:
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
