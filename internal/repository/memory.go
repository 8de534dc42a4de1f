package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"referral-chat/internal/domain"
)

// Implementaciones en memoria para tests y para el modo local del CLI.
// Respetan los mismos contratos que las versiones Pg, incluido pgx.ErrNoRows.

type MemoryConversationRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.Conversation
	byOwner map[string]string
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		byID:    make(map[string]domain.Conversation),
		byOwner: make(map[string]string),
	}
}

func (r *MemoryConversationRepository) Create(_ context.Context, conversation domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOwner[conversation.OwnerID]; ok {
		return nil
	}
	r.byID[conversation.ID] = conversation
	r.byOwner[conversation.OwnerID] = conversation.ID
	return nil
}

func (r *MemoryConversationRepository) FindByOwner(_ context.Context, ownerID string) (domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[ownerID]
	if !ok {
		return domain.Conversation{}, pgx.ErrNoRows
	}
	return r.byID[id], nil
}

func (r *MemoryConversationRepository) GetByID(_ context.Context, id string) (domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.Conversation{}, pgx.ErrNoRows
	}
	return c, nil
}

func (r *MemoryConversationRepository) ListRecent(_ context.Context, limit int) ([]domain.Conversation, error) {
	r.mu.RLock()
	out := make([]domain.Conversation, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryConversationRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil
	}
	if at.After(c.LastActivityAt) {
		c.LastActivityAt = at
		r.byID[id] = c
	}
	return nil
}

func (r *MemoryConversationRepository) UpdateAssessment(_ context.Context, id, severity, color string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.AssessmentSeverity = severity
	c.AssessmentColor = color
	r.byID[id] = c
	return nil
}

type MemoryMessageRepository struct {
	mu       sync.RWMutex
	byID     map[string]domain.Message
	ordering []string
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{byID: make(map[string]domain.Message)}
}

func (r *MemoryMessageRepository) Create(_ context.Context, message domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[message.ID] = cloneMessage(message)
	r.ordering = append(r.ordering, message.ID)
	return nil
}

func (r *MemoryMessageRepository) GetByID(_ context.Context, id string) (domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.byID[id]
	if !ok {
		return domain.Message{}, pgx.ErrNoRows
	}
	return cloneMessage(msg), nil
}

func (r *MemoryMessageRepository) ListByConversationID(_ context.Context, conversationID string) ([]domain.Message, error) {
	r.mu.RLock()
	var out []domain.Message
	for _, id := range r.ordering {
		if msg := r.byID[id]; msg.ConversationID == conversationID {
			out = append(out, cloneMessage(msg))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryMessageRepository) MarkRead(_ context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, msg := range r.byID {
		if msg.ConversationID != conversationID || msg.ReadAt != nil || msg.AuthoredBy(readerID) {
			continue
		}
		readAt := at
		msg.ReadAt = &readAt
		r.byID[id] = msg
		n++
	}
	return n, nil
}

func (r *MemoryMessageRepository) CountUnread(_ context.Context, conversationID, readerID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, msg := range r.byID {
		if msg.ConversationID == conversationID && msg.ReadAt == nil && !msg.AuthoredBy(readerID) {
			count++
		}
	}
	return count, nil
}

func cloneMessage(m domain.Message) domain.Message {
	if m.SenderID != nil {
		sender := *m.SenderID
		m.SenderID = &sender
	}
	if m.ReadAt != nil {
		readAt := *m.ReadAt
		m.ReadAt = &readAt
	}
	return m
}

type MemoryAssessmentRepository struct {
	mu      sync.RWMutex
	events  []domain.AssessmentEvent
	results map[string]domain.AssessmentResult
}

func NewMemoryAssessmentRepository() *MemoryAssessmentRepository {
	return &MemoryAssessmentRepository{results: make(map[string]domain.AssessmentResult)}
}

func (r *MemoryAssessmentRepository) AppendEvent(_ context.Context, event domain.AssessmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind != event.Kind || e.RunID != event.RunID || e.QuestionIndex != event.QuestionIndex {
			continue
		}
		switch event.Kind {
		case domain.EventDispatched:
			return ErrDuplicateDispatch
		case domain.EventAnswered:
			return ErrDuplicateAnswer
		}
	}
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryAssessmentRepository) ReleaseDispatch(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e.ID == eventID && e.Kind == domain.EventDispatched {
			r.events = append(r.events[:i], r.events[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryAssessmentRepository) ListEvents(_ context.Context, conversationID, runID string) ([]domain.AssessmentEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AssessmentEvent
	for _, e := range r.events {
		if e.ConversationID == conversationID && e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryAssessmentRepository) LatestRunID(_ context.Context, conversationID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.ConversationID == conversationID && e.Kind == domain.EventStarted {
			return e.RunID, nil
		}
	}
	return "", pgx.ErrNoRows
}

func (r *MemoryAssessmentRepository) SaveResult(_ context.Context, result domain.AssessmentResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[result.RunID]; ok {
		return false, nil
	}
	result.Responses = append([]domain.AssessmentResponse(nil), result.Responses...)
	r.results[result.RunID] = result
	return true, nil
}

func (r *MemoryAssessmentRepository) GetResult(_ context.Context, runID string) (domain.AssessmentResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[runID]
	if !ok {
		return domain.AssessmentResult{}, pgx.ErrNoRows
	}
	return result, nil
}
