package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"chat-server/internal/domain"
	"chat-server/internal/repository"
)

// MembershipCache es la tabla en memoria que consulta el router para el fan-out.
type MembershipCache interface {
	Set(groupID int64, memberIDs []int64)
	Add(groupID, userID int64)
	Remove(groupID, userID int64)
	Dismiss(groupID int64)
}

// ChatService encapsula la persistencia de mensajes y la gestion de grupos.
type ChatService struct {
	logger       *zap.Logger
	messages     repository.ChatMessageRepository
	groups       repository.GroupRepository
	membership   MembershipCache
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

var (
	ErrChatServiceNotConfigured = errors.New("chat service not configured")
	ErrChatInvalidInput         = errors.New("chat invalid input")
	ErrMessageNotFound          = errors.New("message not found")
	ErrMessageForbidden         = errors.New("message status change not allowed")
	ErrGroupNotFound            = errors.New("group not found")
	ErrGroupForbidden           = errors.New("group operation not allowed")
)

func NewChatService(
	logger *zap.Logger,
	messages repository.ChatMessageRepository,
	groups repository.GroupRepository,
	membership MembershipCache,
	defaultLimit, maxLimit int,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &ChatService{
		logger:       logger,
		messages:     messages,
		groups:       groups,
		membership:   membership,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SavePrivate sella y persiste un mensaje privado. El mensaje sellado se devuelve
// aunque falle la persistencia, para que el llamador pueda entregarlo igualmente.
func (s *ChatService) SavePrivate(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.Type = domain.MessageTypePrivateChat
	return s.save(ctx, msg, "private_")
}

// SaveGroup sella y persiste un mensaje de grupo.
func (s *ChatService) SaveGroup(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.Type = domain.MessageTypeGroupChat
	return s.save(ctx, msg, "group_")
}

func (s *ChatService) save(ctx context.Context, msg domain.ChatMessage, prefix string) (domain.ChatMessage, error) {
	if s == nil || s.messages == nil {
		return msg, ErrChatServiceNotConfigured
	}
	if err := msg.Validate(); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrChatInvalidInput, err)
	}
	if msg.MessageID == "" {
		msg.MessageID = prefix + uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.Status == "" {
		msg.Status = domain.MessageStatusSent
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return msg, fmt.Errorf("persist %s: %w", msg.MessageID, err)
	}
	s.logger.Debug("chat message persisted",
		zap.String("message_id", msg.MessageID),
		zap.String("type", string(msg.Type)),
		zap.Int64("sender_id", msg.SenderID),
	)
	return msg, nil
}

// PrivateHistory devuelve los ultimos mensajes entre dos usuarios en orden cronologico.
func (s *ChatService) PrivateHistory(ctx context.Context, userID, friendID int64, limit int) ([]domain.ChatMessage, error) {
	if s == nil || s.messages == nil {
		return nil, ErrChatServiceNotConfigured
	}
	if userID <= 0 || friendID <= 0 {
		return nil, ErrChatInvalidInput
	}
	out, err := s.messages.ListPrivate(ctx, userID, friendID, s.clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return chronological(out), nil
}

// GroupHistory devuelve los ultimos mensajes de un grupo en orden cronologico.
func (s *ChatService) GroupHistory(ctx context.Context, groupID int64, limit int) ([]domain.ChatMessage, error) {
	if s == nil || s.messages == nil {
		return nil, ErrChatServiceNotConfigured
	}
	if groupID <= 0 {
		return nil, ErrChatInvalidInput
	}
	out, err := s.messages.ListGroup(ctx, groupID, s.clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return chronological(out), nil
}

// MarkStatus registra una transicion reportada por el cliente (delivered/read).
// Solo el receptor de un privado o un miembro del grupo pueden marcar; el estado nunca retrocede
// y se devuelve el estado vigente tras la llamada.
func (s *ChatService) MarkStatus(ctx context.Context, actorID int64, messageID string, status domain.MessageStatus) (domain.MessageStatus, error) {
	if s == nil || s.messages == nil {
		return "", ErrChatServiceNotConfigured
	}
	messageID = strings.TrimSpace(messageID)
	if actorID <= 0 || messageID == "" || len(status.Predecessors()) == 0 {
		return "", ErrChatInvalidInput
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrMessageNotFound
	}
	if err != nil {
		return "", err
	}
	if !s.canMark(ctx, actorID, msg) {
		return "", ErrMessageForbidden
	}

	updated, err := s.messages.UpdateStatus(ctx, messageID, status)
	if err != nil {
		return "", err
	}
	if !updated {
		return msg.Status, nil
	}
	return status, nil
}

func (s *ChatService) canMark(ctx context.Context, actorID int64, msg domain.ChatMessage) bool {
	switch msg.Type {
	case domain.MessageTypePrivateChat:
		return msg.ReceiverID != nil && *msg.ReceiverID == actorID
	case domain.MessageTypeGroupChat:
		if msg.GroupID == nil || msg.SenderID == actorID || s.groups == nil {
			return false
		}
		group, err := s.groups.GetByID(ctx, *msg.GroupID)
		if err != nil {
			return false
		}
		return slices.Contains(group.MemberIDs, actorID)
	}
	return false
}

type CreateGroupInput struct {
	OwnerID     int64
	Name        string
	Description string
	MemberIDs   []int64
	IsPublic    bool
}

func (s *ChatService) CreateGroup(ctx context.Context, input CreateGroupInput) (domain.ChatGroup, error) {
	if s == nil || s.groups == nil {
		return domain.ChatGroup{}, ErrChatServiceNotConfigured
	}
	name := strings.TrimSpace(input.Name)
	if input.OwnerID <= 0 || name == "" {
		return domain.ChatGroup{}, ErrChatInvalidInput
	}

	members := []int64{input.OwnerID}
	for _, id := range input.MemberIDs {
		if id > 0 {
			members = append(members, id)
		}
	}
	slices.Sort(members)
	members = slices.Compact(members)

	now := s.now()
	group, err := s.groups.Create(ctx, domain.ChatGroup{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     input.OwnerID,
		MemberIDs:   members,
		IsPublic:    input.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.ChatGroup{}, err
	}
	if s.membership != nil {
		s.membership.Set(group.ID, group.MemberIDs)
	}
	s.logger.Info("group created",
		zap.Int64("group_id", group.ID),
		zap.Int64("owner_id", group.OwnerID),
		zap.Int("members", len(group.MemberIDs)),
	)
	return group, nil
}

func (s *ChatService) GetGroup(ctx context.Context, groupID int64) (domain.ChatGroup, error) {
	if s == nil || s.groups == nil {
		return domain.ChatGroup{}, ErrChatServiceNotConfigured
	}
	group, err := s.groups.GetByID(ctx, groupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatGroup{}, ErrGroupNotFound
	}
	return group, err
}

func (s *ChatService) ListUserGroups(ctx context.Context, userID int64) ([]domain.ChatGroup, error) {
	if s == nil || s.groups == nil {
		return nil, ErrChatServiceNotConfigured
	}
	return s.groups.ListByMember(ctx, userID)
}

// AddMember agrega un miembro; solo el owner o el propio usuario (grupo publico) pueden hacerlo.
func (s *ChatService) AddMember(ctx context.Context, actorID, groupID, userID int64) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if actorID != group.OwnerID && !(group.IsPublic && actorID == userID) {
		return ErrGroupForbidden
	}
	if err := s.groups.AddMember(ctx, groupID, userID); err != nil {
		return err
	}
	if s.membership != nil {
		s.membership.Add(groupID, userID)
	}
	return nil
}

// RemoveMember quita un miembro; el owner puede quitar a cualquiera y cada usuario puede salir.
func (s *ChatService) RemoveMember(ctx context.Context, actorID, groupID, userID int64) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if actorID != group.OwnerID && actorID != userID {
		return ErrGroupForbidden
	}
	if userID == group.OwnerID {
		return ErrGroupForbidden
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	if s.membership != nil {
		s.membership.Remove(groupID, userID)
	}
	return nil
}

// Dismiss disuelve el grupo; los mensajes historicos se conservan.
func (s *ChatService) Dismiss(ctx context.Context, actorID, groupID int64) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if actorID != group.OwnerID {
		return ErrGroupForbidden
	}
	if err := s.groups.Delete(ctx, groupID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGroupNotFound
		}
		return err
	}
	if s.membership != nil {
		s.membership.Dismiss(groupID)
	}
	s.logger.Info("group dismissed", zap.Int64("group_id", groupID))
	return nil
}

// LoadMemberships reconstruye la tabla en memoria a partir del store.
func (s *ChatService) LoadMemberships(ctx context.Context) (int, error) {
	if s == nil || s.groups == nil || s.membership == nil {
		return 0, ErrChatServiceNotConfigured
	}
	memberships, err := s.groups.ListMemberships(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range memberships {
		s.membership.Set(m.GroupID, m.MemberIDs)
	}
	return len(memberships), nil
}

func (s *ChatService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// chronological invierte el orden "mas reciente primero" del repositorio.
func chronological(messages []domain.ChatMessage) []domain.ChatMessage {
	if messages == nil {
		return []domain.ChatMessage{}
	}
	slices.Reverse(messages)
	return messages
}
