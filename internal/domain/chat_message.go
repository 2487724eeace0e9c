package domain

import (
	"errors"
	"strings"
	"time"
)

// MessageType identifica el tipo de frame que viaja por el websocket.
type MessageType string

const (
	MessageTypeConnect     MessageType = "connect"
	MessageTypeDisconnect  MessageType = "disconnect"
	MessageTypeHeartbeat   MessageType = "heartbeat"
	MessageTypePrivateChat MessageType = "private_chat"
	MessageTypeGroupChat   MessageType = "group_chat"
	MessageTypeSystem      MessageType = "system"
	MessageTypeError       MessageType = "error"
)

// Valid reporta si el tipo pertenece al protocolo.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeConnect, MessageTypeDisconnect, MessageTypeHeartbeat,
		MessageTypePrivateChat, MessageTypeGroupChat, MessageTypeSystem, MessageTypeError:
		return true
	}
	return false
}

// Conversational reporta si el tipo se persiste y se enruta a otros usuarios.
func (t MessageType) Conversational() bool {
	return t == MessageTypePrivateChat || t == MessageTypeGroupChat
}

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusRead, MessageStatusFailed:
		return true
	}
	return false
}

// Predecessors lista los estados desde los que un cliente puede avanzar a s.
func (s MessageStatus) Predecessors() []MessageStatus {
	switch s {
	case MessageStatusDelivered:
		return []MessageStatus{MessageStatusSent}
	case MessageStatusRead:
		return []MessageStatus{MessageStatusSent, MessageStatusDelivered}
	}
	return nil
}

// ChatMessage es el sobre JSON de cada frame y la fila persistida de un mensaje.
type ChatMessage struct {
	MessageID  string        `json:"messageId,omitempty"`
	Type       MessageType   `json:"type"`
	SenderID   int64         `json:"senderId,omitempty"`
	SenderName string        `json:"senderName,omitempty"`
	ReceiverID *int64        `json:"receiverId,omitempty"`
	GroupID    *int64        `json:"groupId,omitempty"`
	Content    string        `json:"content,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Status     MessageStatus `json:"status,omitempty"`
}

var (
	ErrMissingSender   = errors.New("senderId is required")
	ErrMissingReceiver = errors.New("receiverId is required for private_chat")
	ErrMissingGroup    = errors.New("groupId is required for group_chat")
	ErrEmptyContent    = errors.New("content must not be empty")
	ErrAmbiguousTarget = errors.New("receiverId and groupId are mutually exclusive")
)

// Validate comprueba que un mensaje conversacional tenga exactamente un destino.
func (m ChatMessage) Validate() error {
	if m.SenderID <= 0 {
		return ErrMissingSender
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	switch m.Type {
	case MessageTypePrivateChat:
		if m.GroupID != nil {
			return ErrAmbiguousTarget
		}
		if m.ReceiverID == nil || *m.ReceiverID <= 0 {
			return ErrMissingReceiver
		}
	case MessageTypeGroupChat:
		if m.ReceiverID != nil {
			return ErrAmbiguousTarget
		}
		if m.GroupID == nil || *m.GroupID <= 0 {
			return ErrMissingGroup
		}
	}
	return nil
}

// NewSystemMessage construye un frame de servidor sin emisor ni destino.
func NewSystemMessage(t MessageType, content string) ChatMessage {
	return ChatMessage{
		Type:      t,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Int64Ptr ayuda a construir destinos opcionales.
func Int64Ptr(v int64) *int64 {
	return &v
}
