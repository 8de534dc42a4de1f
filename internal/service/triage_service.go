package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"referral-chat/internal/domain"
	"referral-chat/internal/repository"
)

const (
	defaultTriageLimit = 50
	maxTriageLimit     = 200
)

var ErrTriageServiceNotConfigured = errors.New("triage service not configured")

// TriageService arma la bandeja de staff: conversaciones recientes con su
// conteo de no leidos y la severidad cacheada de la ultima evaluacion.
type TriageService struct {
	logger        *zap.Logger
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
}

func NewTriageService(logger *zap.Logger, conversations repository.ConversationRepository, messages repository.MessageRepository) *TriageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageService{logger: logger, conversations: conversations, messages: messages}
}

func (s *TriageService) ListConversations(ctx context.Context, caller domain.Caller, limit int) ([]domain.ConversationSummary, error) {
	if s == nil || s.conversations == nil || s.messages == nil {
		return nil, ErrTriageServiceNotConfigured
	}
	if caller.IsZero() {
		return nil, ErrAuthRequired
	}
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = defaultTriageLimit
	}
	if limit > maxTriageLimit {
		limit = maxTriageLimit
	}

	conversations, err := s.conversations.ListRecent(ctx, limit)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	out := make([]domain.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		unread, err := s.messages.CountUnread(ctx, c.ID, caller.UserID)
		if err != nil {
			return nil, storeErr("count unread", err)
		}
		out = append(out, domain.ConversationSummary{Conversation: c, UnreadCount: unread})
	}
	return out, nil
}
