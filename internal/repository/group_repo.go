package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-server/internal/domain"
)

// GroupRepository persiste grupos y su tabla de miembros.
type GroupRepository interface {
	Create(ctx context.Context, group domain.ChatGroup) (domain.ChatGroup, error)
	GetByID(ctx context.Context, id int64) (domain.ChatGroup, error)
	ListByMember(ctx context.Context, userID int64) ([]domain.ChatGroup, error)
	ListMemberships(ctx context.Context) ([]domain.GroupMembership, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	Delete(ctx context.Context, groupID int64) error
}

type PgGroupRepository struct {
	pool *pgxpool.Pool
}

func NewPgGroupRepository(pool *pgxpool.Pool) *PgGroupRepository {
	return &PgGroupRepository{pool: pool}
}

func (r *PgGroupRepository) Create(ctx context.Context, group domain.ChatGroup) (domain.ChatGroup, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ChatGroup{}, err
	}
	defer tx.Rollback(ctx)

	const insertGroup = `
		INSERT INTO chat_groups (name, description, owner_id, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRow(ctx, insertGroup,
		group.Name,
		group.Description,
		group.OwnerID,
		group.IsPublic,
		group.CreatedAt,
		group.UpdatedAt,
	).Scan(&group.ID)
	if err != nil {
		return domain.ChatGroup{}, err
	}

	const insertMember = `
		INSERT INTO chat_group_members (group_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	for _, memberID := range group.MemberIDs {
		if _, err := tx.Exec(ctx, insertMember, group.ID, memberID, group.CreatedAt); err != nil {
			return domain.ChatGroup{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ChatGroup{}, err
	}
	group.MemberCount = len(group.MemberIDs)
	return group, nil
}

func (r *PgGroupRepository) GetByID(ctx context.Context, id int64) (domain.ChatGroup, error) {
	const query = `
		SELECT g.id, g.name, g.description, g.owner_id, g.is_public, g.created_at, g.updated_at,
		       COALESCE(array_agg(m.user_id ORDER BY m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM chat_groups g
		LEFT JOIN chat_group_members m ON m.group_id = g.id
		WHERE g.id = $1
		GROUP BY g.id
	`
	group, err := scanGroup(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatGroup{}, err
	}
	return group, err
}

func (r *PgGroupRepository) ListByMember(ctx context.Context, userID int64) ([]domain.ChatGroup, error) {
	const query = `
		SELECT g.id, g.name, g.description, g.owner_id, g.is_public, g.created_at, g.updated_at,
		       COALESCE(array_agg(m.user_id ORDER BY m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM chat_groups g
		LEFT JOIN chat_group_members m ON m.group_id = g.id
		WHERE g.id IN (SELECT group_id FROM chat_group_members WHERE user_id = $1)
		GROUP BY g.id
		ORDER BY g.id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []domain.ChatGroup{}
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *PgGroupRepository) ListMemberships(ctx context.Context) ([]domain.GroupMembership, error) {
	const query = `
		SELECT g.id, COALESCE(array_agg(m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM chat_groups g
		LEFT JOIN chat_group_members m ON m.group_id = g.id
		GROUP BY g.id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []domain.GroupMembership
	for rows.Next() {
		var m domain.GroupMembership
		if err := rows.Scan(&m.GroupID, &m.MemberIDs); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *PgGroupRepository) AddMember(ctx context.Context, groupID, userID int64) error {
	const query = `
		WITH added AS (
			INSERT INTO chat_group_members (group_id, user_id, joined_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT DO NOTHING
			RETURNING group_id
		)
		UPDATE chat_groups SET updated_at = NOW() WHERE id IN (SELECT group_id FROM added)
	`
	_, err := r.pool.Exec(ctx, query, groupID, userID)
	return err
}

func (r *PgGroupRepository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	const query = `
		WITH removed AS (
			DELETE FROM chat_group_members WHERE group_id = $1 AND user_id = $2
			RETURNING group_id
		)
		UPDATE chat_groups SET updated_at = NOW() WHERE id IN (SELECT group_id FROM removed)
	`
	_, err := r.pool.Exec(ctx, query, groupID, userID)
	return err
}

// Delete elimina el grupo; los miembros caen por cascada y los mensajes se conservan.
func (r *PgGroupRepository) Delete(ctx context.Context, groupID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_groups WHERE id = $1`, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanGroup(row pgx.Row) (domain.ChatGroup, error) {
	var g domain.ChatGroup
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.Description,
		&g.OwnerID,
		&g.IsPublic,
		&g.CreatedAt,
		&g.UpdatedAt,
		&g.MemberIDs,
	)
	if err != nil {
		return domain.ChatGroup{}, err
	}
	g.MemberCount = len(g.MemberIDs)
	return g, nil
}
