package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-server/internal/domain"
)

// ChatMessageRepository es el log durable de mensajes de chat.
type ChatMessageRepository interface {
	Create(ctx context.Context, message domain.ChatMessage) error
	ListPrivate(ctx context.Context, userID, friendID int64, limit int) ([]domain.ChatMessage, error)
	ListGroup(ctx context.Context, groupID int64, limit int) ([]domain.ChatMessage, error)
	GetByID(ctx context.Context, messageID string) (domain.ChatMessage, error)
	UpdateStatus(ctx context.Context, messageID string, status domain.MessageStatus) (bool, error)
}

type PgChatMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatMessageRepository(pool *pgxpool.Pool) *PgChatMessageRepository {
	return &PgChatMessageRepository{pool: pool}
}

func (r *PgChatMessageRepository) Create(ctx context.Context, message domain.ChatMessage) error {
	const query = `
		INSERT INTO chat_messages (id, type, sender_id, sender_name, receiver_id, group_id, content, status, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		message.MessageID,
		string(message.Type),
		message.SenderID,
		message.SenderName,
		message.ReceiverID,
		message.GroupID,
		message.Content,
		string(message.Status),
		message.Timestamp,
	)
	return err
}

// ListPrivate devuelve los ultimos mensajes entre dos usuarios, del mas reciente al mas antiguo.
func (r *PgChatMessageRepository) ListPrivate(ctx context.Context, userID, friendID int64, limit int) ([]domain.ChatMessage, error) {
	const query = `
		SELECT id, type, sender_id, sender_name, receiver_id, group_id, content, status, sent_at
		FROM chat_messages
		WHERE type = 'private_chat'
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		ORDER BY sent_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, friendID, limit)
	if err != nil {
		return nil, err
	}
	return scanChatMessages(rows)
}

// ListGroup devuelve los ultimos mensajes de un grupo, del mas reciente al mas antiguo.
func (r *PgChatMessageRepository) ListGroup(ctx context.Context, groupID int64, limit int) ([]domain.ChatMessage, error) {
	const query = `
		SELECT id, type, sender_id, sender_name, receiver_id, group_id, content, status, sent_at
		FROM chat_messages
		WHERE type = 'group_chat' AND group_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, err
	}
	return scanChatMessages(rows)
}

func (r *PgChatMessageRepository) GetByID(ctx context.Context, messageID string) (domain.ChatMessage, error) {
	const query = `
		SELECT id, type, sender_id, sender_name, receiver_id, group_id, content, status, sent_at
		FROM chat_messages
		WHERE id = $1
	`
	return scanChatMessage(r.pool.QueryRow(ctx, query, messageID))
}

// UpdateStatus solo avanza el estado; devuelve false si el mensaje ya estaba en ese estado o mas alla.
func (r *PgChatMessageRepository) UpdateStatus(ctx context.Context, messageID string, status domain.MessageStatus) (bool, error) {
	const query = `UPDATE chat_messages SET status = $2 WHERE id = $1 AND status = ANY($3)`
	from := make([]string, 0, 2)
	for _, prev := range status.Predecessors() {
		from = append(from, string(prev))
	}
	tag, err := r.pool.Exec(ctx, query, messageID, string(status), from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanChatMessages(rows pgx.Rows) ([]domain.ChatMessage, error) {
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func scanChatMessage(row pgx.Row) (domain.ChatMessage, error) {
	var (
		msg     domain.ChatMessage
		msgType string
		status  string
	)
	err := row.Scan(
		&msg.MessageID,
		&msgType,
		&msg.SenderID,
		&msg.SenderName,
		&msg.ReceiverID,
		&msg.GroupID,
		&msg.Content,
		&status,
		&msg.Timestamp,
	)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg.Type = domain.MessageType(msgType)
	msg.Status = domain.MessageStatus(status)
	return msg, nil
}
