package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"referral-chat/internal/domain"
)

// MessageRepository persiste mensajes tal como viajan: cuerpo cifrado para
// mensajes humanos, texto plano para mensajes de sistema.
type MessageRepository interface {
	Create(ctx context.Context, message domain.Message) error
	GetByID(ctx context.Context, id string) (domain.Message, error)
	ListByConversationID(ctx context.Context, conversationID string) ([]domain.Message, error)
	// MarkRead marca como leidos los mensajes no leidos cuyo autor no es readerID.
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, conversationID, readerID string) (int, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Create(ctx context.Context, message domain.Message) error {
	const query = `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.ConversationID,
		message.SenderID,
		message.Body,
		message.CreatedAt,
	)
	return err
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id string) (domain.Message, error) {
	const query = `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages
		WHERE id = $1
	`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, err
	}
	return msg, err
}

func (r *PgMessageRepository) ListByConversationID(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const query = `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *PgMessageRepository) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	const query = `
		UPDATE messages
		SET read_at = $3
		WHERE conversation_id = $1
		  AND read_at IS NULL
		  AND (sender_id IS NULL OR sender_id <> $2)
	`
	tag, err := r.pool.Exec(ctx, query, conversationID, readerID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgMessageRepository) CountUnread(ctx context.Context, conversationID, readerID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
		  AND read_at IS NULL
		  AND (sender_id IS NULL OR sender_id <> $2)
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, conversationID, readerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Body,
		&msg.CreatedAt,
		&msg.ReadAt,
	)
	return msg, err
}
