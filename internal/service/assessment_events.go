package service

import (
	"sync"

	"referral-chat/internal/domain"
)

// Tipos de AssessmentNotice.
const (
	NoticeQuestionDispatched  = "question_dispatched"
	NoticeValidationRejected  = "validation_rejected"
	NoticeAssessmentCompleted = "assessment_completed"
)

// AssessmentNotice es lo que el motor reporta a las superficies abiertas.
type AssessmentNotice struct {
	Kind           string                   `json:"kind"`
	ConversationID string                   `json:"conversation_id"`
	QuestionID     string                   `json:"question_id,omitempty"`
	QuestionIndex  int                      `json:"question_index"`
	Prompt         string                   `json:"prompt,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
	Result         *domain.AssessmentResult `json:"result,omitempty"`
}

type AssessmentObserver interface {
	Notify(n AssessmentNotice)
}

// EventHub reparte los avisos del motor a los observadores de cada
// conversacion. Los callbacks corren en la goroutine del motor y no deben
// volver a llamarlo.
type EventHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(AssessmentNotice)
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[int]func(AssessmentNotice))}
}

// Subscribe registra fn para conversationID y devuelve la funcion que la
// desregistra.
func (h *EventHub) Subscribe(conversationID string, fn func(AssessmentNotice)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[int]func(AssessmentNotice))
	}
	h.subs[conversationID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[conversationID], id)
			if len(h.subs[conversationID]) == 0 {
				delete(h.subs, conversationID)
			}
		})
	}
}

func (h *EventHub) Notify(n AssessmentNotice) {
	if h == nil {
		return
	}
	h.mu.RLock()
	targets := make([]func(AssessmentNotice), 0, len(h.subs[n.ConversationID]))
	for _, fn := range h.subs[n.ConversationID] {
		targets = append(targets, fn)
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(n)
	}
}
