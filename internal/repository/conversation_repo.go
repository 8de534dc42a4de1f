package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"referral-chat/internal/domain"
)

// ConversationRepository define el contrato de persistencia para conversaciones.
// Los metodos de lectura devuelven pgx.ErrNoRows cuando no hay registro.
type ConversationRepository interface {
	// Create no falla si el owner ya tiene conversacion.
	Create(ctx context.Context, conversation domain.Conversation) error
	FindByOwner(ctx context.Context, ownerID string) (domain.Conversation, error)
	GetByID(ctx context.Context, id string) (domain.Conversation, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
	UpdateAssessment(ctx context.Context, id, severity, color string) error
}

type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

const conversationColumns = `id, owner_id, last_activity_at, assessment_severity, assessment_color, created_at`

func (r *PgConversationRepository) Create(ctx context.Context, conversation domain.Conversation) error {
	const query = `
		INSERT INTO conversations (id, owner_id, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		conversation.ID,
		conversation.OwnerID,
		conversation.LastActivityAt,
		conversation.CreatedAt,
	)
	return err
}

func (r *PgConversationRepository) FindByOwner(ctx context.Context, ownerID string) (domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE owner_id = $1`
	return scanConversation(r.pool.QueryRow(ctx, query, ownerID))
}

func (r *PgConversationRepository) GetByID(ctx context.Context, id string) (domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversation(r.pool.QueryRow(ctx, query, id))
}

func (r *PgConversationRepository) ListRecent(ctx context.Context, limit int) ([]domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		ORDER BY last_activity_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *PgConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE conversations
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

func (r *PgConversationRepository) UpdateAssessment(ctx context.Context, id, severity, color string) error {
	const query = `
		UPDATE conversations
		SET assessment_severity = $2, assessment_color = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, severity, color)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var (
		c        domain.Conversation
		severity *string
		color    *string
	)
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.LastActivityAt,
		&severity,
		&color,
		&c.CreatedAt,
	)
	if err != nil {
		return domain.Conversation{}, err
	}
	if severity != nil {
		c.AssessmentSeverity = *severity
	}
	if color != nil {
		c.AssessmentColor = *color
	}
	return c, nil
}
