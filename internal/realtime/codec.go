package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-server/internal/domain"
)

var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// inboundFrame son los campos que el cliente controla; emisor, id, timestamp y
// estado los asigna el servidor.
type inboundFrame struct {
	Type       domain.MessageType `json:"type"`
	ReceiverID *int64             `json:"receiverId"`
	GroupID    *int64             `json:"groupId"`
	Content    string             `json:"content"`
}

// DecodeFrame convierte un frame de texto en un ChatMessage.
func DecodeFrame(raw []byte) (domain.ChatMessage, error) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	t := domain.MessageType(strings.TrimSpace(string(in.Type)))
	if t == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	if !t.Valid() {
		return domain.ChatMessage{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}
	return domain.ChatMessage{
		Type:       t,
		ReceiverID: in.ReceiverID,
		GroupID:    in.GroupID,
		Content:    in.Content,
	}, nil
}

func EncodeFrame(msg domain.ChatMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func errorFrame(err error) []byte {
	frame, _ := EncodeFrame(domain.NewSystemMessage(domain.MessageTypeError, err.Error()))
	return frame
}
