package domain

import "time"

// Conversation es el canal durable entre un estudiante y el equipo de staff.
// Existe una sola por estudiante (OwnerID).
type Conversation struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	AssessmentSeverity string    `json:"assessment_severity,omitempty"`
	AssessmentColor    string    `json:"assessment_color,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// ConversationSummary es la vista de triage para staff.
type ConversationSummary struct {
	Conversation
	UnreadCount int `json:"unread_count"`
}
