package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"referral-chat/internal/domain"
)

// AssessmentRepository guarda el log de eventos de cada corrida y el
// resultado final. El log es append-only salvo ReleaseDispatch, que libera
// un despacho cuyo envio fallo.
type AssessmentRepository interface {
	// AppendEvent devuelve ErrDuplicateDispatch si el evento es "dispatched"
	// y el indice ya fue reclamado en la corrida, y ErrDuplicateAnswer si es
	// "answered" y el indice ya tenia respuesta.
	AppendEvent(ctx context.Context, event domain.AssessmentEvent) error
	ReleaseDispatch(ctx context.Context, eventID string) error
	ListEvents(ctx context.Context, conversationID, runID string) ([]domain.AssessmentEvent, error)
	LatestRunID(ctx context.Context, conversationID string) (string, error)
	// SaveResult devuelve created=false si la corrida ya tenia resultado.
	SaveResult(ctx context.Context, result domain.AssessmentResult) (bool, error)
	GetResult(ctx context.Context, runID string) (domain.AssessmentResult, error)
}

type PgAssessmentRepository struct {
	pool *pgxpool.Pool
}

func NewPgAssessmentRepository(pool *pgxpool.Pool) *PgAssessmentRepository {
	return &PgAssessmentRepository{pool: pool}
}

func (r *PgAssessmentRepository) AppendEvent(ctx context.Context, event domain.AssessmentEvent) error {
	const query = `
		INSERT INTO assessment_events
			(id, conversation_id, run_id, kind, question_index, next_index, question_id, answer, message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.ConversationID,
		event.RunID,
		event.Kind,
		event.QuestionIndex,
		event.NextIndex,
		nullableString(event.QuestionID),
		nullableString(event.Answer),
		nullableString(event.MessageID),
		event.CreatedAt,
	)
	if isUniqueViolation(err) {
		switch event.Kind {
		case domain.EventDispatched:
			return ErrDuplicateDispatch
		case domain.EventAnswered:
			return ErrDuplicateAnswer
		}
	}
	return err
}

func (r *PgAssessmentRepository) ReleaseDispatch(ctx context.Context, eventID string) error {
	const query = `DELETE FROM assessment_events WHERE id = $1 AND kind = 'dispatched'`
	_, err := r.pool.Exec(ctx, query, eventID)
	return err
}

func (r *PgAssessmentRepository) ListEvents(ctx context.Context, conversationID, runID string) ([]domain.AssessmentEvent, error) {
	const query = `
		SELECT id, conversation_id, run_id, kind, question_index, next_index,
		       COALESCE(question_id, ''), COALESCE(answer, ''), COALESCE(message_id, ''), created_at
		FROM assessment_events
		WHERE conversation_id = $1 AND run_id = $2
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, conversationID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AssessmentEvent
	for rows.Next() {
		var e domain.AssessmentEvent
		if err := rows.Scan(
			&e.ID,
			&e.ConversationID,
			&e.RunID,
			&e.Kind,
			&e.QuestionIndex,
			&e.NextIndex,
			&e.QuestionID,
			&e.Answer,
			&e.MessageID,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *PgAssessmentRepository) LatestRunID(ctx context.Context, conversationID string) (string, error) {
	const query = `
		SELECT run_id
		FROM assessment_events
		WHERE conversation_id = $1 AND kind = 'started'
		ORDER BY seq DESC
		LIMIT 1
	`
	var runID string
	err := r.pool.QueryRow(ctx, query, conversationID).Scan(&runID)
	return runID, err
}

func (r *PgAssessmentRepository) SaveResult(ctx context.Context, result domain.AssessmentResult) (bool, error) {
	const query = `
		INSERT INTO assessment_results
			(id, run_id, conversation_id, script_version, requires_immediate_attention,
			 severity, color, yes_count, answered, responses, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO NOTHING
	`
	responses, err := json.Marshal(result.Responses)
	if err != nil {
		return false, fmt.Errorf("marshal responses: %w", err)
	}
	tag, err := r.pool.Exec(ctx, query,
		result.ID,
		result.RunID,
		result.ConversationID,
		result.ScriptVersion,
		result.RequiresImmediateAttention,
		result.Severity,
		result.Color,
		result.YesCount,
		result.Answered,
		responses,
		result.CompletedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgAssessmentRepository) GetResult(ctx context.Context, runID string) (domain.AssessmentResult, error) {
	const query = `
		SELECT id, run_id, conversation_id, script_version, requires_immediate_attention,
		       severity, color, yes_count, answered, responses, completed_at
		FROM assessment_results
		WHERE run_id = $1
	`
	var (
		result    domain.AssessmentResult
		responses []byte
	)
	err := r.pool.QueryRow(ctx, query, runID).Scan(
		&result.ID,
		&result.RunID,
		&result.ConversationID,
		&result.ScriptVersion,
		&result.RequiresImmediateAttention,
		&result.Severity,
		&result.Color,
		&result.YesCount,
		&result.Answered,
		&responses,
		&result.CompletedAt,
	)
	if err != nil {
		return domain.AssessmentResult{}, err
	}
	if err := json.Unmarshal(responses, &result.Responses); err != nil {
		return domain.AssessmentResult{}, fmt.Errorf("unmarshal responses: %w", err)
	}
	return result, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
