package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-server/internal/domain"
	"chat-server/internal/realtime"
	"chat-server/internal/service"
)

// ChatHandler expone por HTTP el envio de mensajes y el historial de conversaciones.
// Los mensajes enviados por aqui solo se persisten; no se empujan por websocket.
type ChatHandler struct {
	logger     *zap.Logger
	chatServ   *service.ChatService
	membership realtime.Membership
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chatServ *service.ChatService, membership realtime.Membership) *ChatHandler {
	return &ChatHandler{
		logger:     logger,
		chatServ:   chatServ,
		membership: membership,
	}
}

// SendPrivate maneja POST /api/chat/messages/private.
func (h *ChatHandler) SendPrivate(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req struct {
		ReceiverID int64  `json:"receiverId" binding:"required"`
		Content    string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid private message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg, err := h.chatServ.SavePrivate(c.Request.Context(), domain.ChatMessage{
		SenderID:   claims.UserID,
		SenderName: claims.Username,
		ReceiverID: domain.Int64Ptr(req.ReceiverID),
		Content:    req.Content,
	})
	if err != nil {
		h.respondChatError(c, "send private message failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// SendGroup maneja POST /api/chat/messages/group.
func (h *ChatHandler) SendGroup(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req struct {
		GroupID int64  `json:"groupId" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid group message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !h.isMember(req.GroupID, claims.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of the group"})
		return
	}

	msg, err := h.chatServ.SaveGroup(c.Request.Context(), domain.ChatMessage{
		SenderID:   claims.UserID,
		SenderName: claims.Username,
		GroupID:    domain.Int64Ptr(req.GroupID),
		Content:    req.Content,
	})
	if err != nil {
		h.respondChatError(c, "send group message failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// PrivateHistory maneja GET /api/chat/messages/private?friendId=&limit=.
func (h *ChatHandler) PrivateHistory(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	friendID, err := strconv.ParseInt(c.Query("friendId"), 10, 64)
	if err != nil || friendID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "friendId is required"})
		return
	}

	messages, err := h.chatServ.PrivateHistory(c.Request.Context(), claims.UserID, friendID, queryLimit(c))
	if err != nil {
		h.respondChatError(c, "private history failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// GroupHistory maneja GET /api/chat/messages/group/:groupId?limit=.
func (h *ChatHandler) GroupHistory(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	if !h.isMember(groupID, claims.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of the group"})
		return
	}

	messages, err := h.chatServ.GroupHistory(c.Request.Context(), groupID, queryLimit(c))
	if err != nil {
		h.respondChatError(c, "group history failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// MarkRead maneja PUT /api/chat/messages/:messageId/read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	h.markStatus(c, domain.MessageStatusRead)
}

// MarkDelivered maneja PUT /api/chat/messages/:messageId/delivered.
func (h *ChatHandler) MarkDelivered(c *gin.Context) {
	h.markStatus(c, domain.MessageStatusDelivered)
}

func (h *ChatHandler) markStatus(c *gin.Context, status domain.MessageStatus) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	messageID := c.Param("messageId")
	current, err := h.chatServ.MarkStatus(c.Request.Context(), claims.UserID, messageID, status)
	if err != nil {
		h.respondChatError(c, "mark message status failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageId": messageID, "status": current})
}

func (h *ChatHandler) isMember(groupID, userID int64) bool {
	return h.membership != nil && h.membership.IsMember(groupID, userID)
}

func (h *ChatHandler) respondChatError(c *gin.Context, logMsg string, err error) {
	switch {
	case errors.Is(err, service.ErrChatInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, service.ErrMessageForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to update this message"})
	default:
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// pathID parsea un parametro numerico de la ruta; responde 400 si no es valido.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
