package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chat-server/internal/domain"
)

// MessageStore persiste mensajes conversacionales y devuelve el mensaje sellado
// (id, timestamp, estado) incluso cuando falla la persistencia.
type MessageStore interface {
	SavePrivate(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	SaveGroup(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
}

// Membership es la vista de solo lectura que el router necesita de la tabla de grupos.
type Membership interface {
	Members(groupID int64) []int64
	IsMember(groupID, userID int64) bool
}

var (
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrNotGroupMember         = errors.New("sender is not a member of the group")
)

const defaultPersistTimeout = 5 * time.Second

// Router aplica la politica de entrega segun el tipo de mensaje.
type Router struct {
	logger         *zap.Logger
	registry       *Registry
	groups         Membership
	store          MessageStore
	persistTimeout time.Duration
}

func NewRouter(logger *zap.Logger, registry *Registry, groups Membership, store MessageStore) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		logger:         logger,
		registry:       registry,
		groups:         groups,
		store:          store,
		persistTimeout: defaultPersistTimeout,
	}
}

// Route despacha un mensaje decodificado. Un error devuelto se responde al emisor
// como frame de error; la conexion sigue abierta.
func (r *Router) Route(ctx context.Context, sender Session, msg domain.ChatMessage) error {
	switch msg.Type {
	case domain.MessageTypeHeartbeat:
		return r.heartbeat(sender)
	case domain.MessageTypePrivateChat:
		return r.private(ctx, sender, msg)
	case domain.MessageTypeGroupChat:
		return r.group(ctx, sender, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMessageType, msg.Type)
	}
}

func (r *Router) heartbeat(sender Session) error {
	r.registry.Touch(sender.UserID)
	r.push(sender, domain.NewSystemMessage(domain.MessageTypeHeartbeat, "pong"))
	return nil
}

func (r *Router) private(ctx context.Context, sender Session, msg domain.ChatMessage) error {
	stampSender(&msg, sender)
	if err := msg.Validate(); err != nil {
		return err
	}

	msg = r.persist(ctx, msg, r.savePrivate)

	target, ok := r.registry.Lookup(*msg.ReceiverID)
	if !ok {
		r.logger.Debug("receiver offline, message not pushed",
			zap.String("message_id", msg.MessageID),
			zap.Int64("receiver_id", *msg.ReceiverID),
		)
		return nil
	}
	r.push(target, msg)
	return nil
}

func (r *Router) group(ctx context.Context, sender Session, msg domain.ChatMessage) error {
	stampSender(&msg, sender)
	if err := msg.Validate(); err != nil {
		return err
	}
	groupID := *msg.GroupID
	if r.groups == nil || !r.groups.IsMember(groupID, sender.UserID) {
		return ErrNotGroupMember
	}

	msg = r.persist(ctx, msg, r.saveGroup)

	delivered := 0
	for _, memberID := range r.groups.Members(groupID) {
		if memberID == sender.UserID {
			continue
		}
		target, ok := r.registry.Lookup(memberID)
		if !ok {
			continue
		}
		if r.push(target, msg) {
			delivered++
		}
	}
	r.logger.Debug("group message fanned out",
		zap.String("message_id", msg.MessageID),
		zap.Int64("group_id", groupID),
		zap.Int("delivered", delivered),
	)
	return nil
}

func (r *Router) savePrivate(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	return r.store.SavePrivate(ctx, msg)
}

func (r *Router) saveGroup(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	return r.store.SaveGroup(ctx, msg)
}

// persist guarda el mensaje; un fallo se registra y no bloquea la entrega.
func (r *Router) persist(
	ctx context.Context,
	msg domain.ChatMessage,
	save func(context.Context, domain.ChatMessage) (domain.ChatMessage, error),
) domain.ChatMessage {
	if r.store == nil {
		r.logger.Warn("message store not configured, delivering without persistence")
		return stampDefaults(msg)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	saved, err := save(ctx, msg)
	if err != nil {
		r.logger.Warn("persist chat message failed",
			zap.String("type", string(msg.Type)),
			zap.Int64("sender_id", msg.SenderID),
			zap.Error(err),
		)
	}
	if saved.Type == "" {
		saved = msg
	}
	return stampDefaults(saved)
}

func (r *Router) push(target Session, msg domain.ChatMessage) bool {
	frame, err := EncodeFrame(msg)
	if err != nil {
		r.logger.Error("encode frame failed", zap.Error(err))
		return false
	}
	if target.Conn == nil || !target.Conn.Send(frame) {
		r.logger.Warn("outbox unavailable, frame dropped",
			zap.String("connection_id", target.ConnectionID),
			zap.Int64("user_id", target.UserID),
			zap.String("type", string(msg.Type)),
		)
		return false
	}
	return true
}

func stampSender(msg *domain.ChatMessage, sender Session) {
	msg.SenderID = sender.UserID
	msg.SenderName = sender.Username
	msg.MessageID = ""
	msg.Timestamp = time.Time{}
	msg.Status = ""
}

func stampDefaults(msg domain.ChatMessage) domain.ChatMessage {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = domain.MessageStatusSent
	}
	return msg
}
