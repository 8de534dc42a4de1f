package domain

import "time"

const (
	AnswerYes = "yes"
	AnswerNo  = "no"
)

type SkipLogic struct {
	OnAnswer string `json:"on_answer" yaml:"on_answer"`
	SkipTo   string `json:"skip_to" yaml:"skip_to"`
}

type AssessmentQuestion struct {
	ID        string     `json:"id" yaml:"id"`
	Prompt    string     `json:"prompt" yaml:"prompt"`
	SkipLogic *SkipLogic `json:"skip_logic,omitempty" yaml:"skip_logic,omitempty"`
}

type AssessmentResponse struct {
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Estados del motor de evaluacion.
const (
	AssessmentIdle             = "idle"
	AssessmentAwaitingDispatch = "awaiting_dispatch"
	AssessmentAwaitingAnswer   = "awaiting_answer"
	AssessmentCompleted        = "completed"
)

// Tipos de eventos del log de evaluacion.
const (
	EventStarted    = "started"
	EventDispatched = "dispatched"
	EventSent       = "sent"
	EventAnswered   = "answered"
	EventRejected   = "rejected"
	EventCompleted  = "completed"
)

// AssessmentEvent es una transicion persistida de una corrida de evaluacion.
// QuestionIndex en eventos "answered" guarda la pregunta respondida y
// NextIndex el siguiente indice a despachar. En eventos "sent" MessageID es el
// mensaje de sistema que llevo la pregunta.
type AssessmentEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	RunID          string    `json:"run_id"`
	Kind           string    `json:"kind"`
	QuestionIndex  int       `json:"question_index"`
	NextIndex      int       `json:"next_index"`
	QuestionID     string    `json:"question_id,omitempty"`
	Answer         string    `json:"answer,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AssessmentSession es el estado derivado de reproducir los eventos de una corrida.
type AssessmentSession struct {
	ConversationID string               `json:"conversation_id"`
	RunID          string               `json:"run_id,omitempty"`
	State          string               `json:"state"`
	Cursor         int                  `json:"cursor"`
	Dispatched     map[int]bool         `json:"dispatched"`
	Responses      []AssessmentResponse `json:"responses"`
	Consumed       map[string]bool      `json:"-"`
}

// Active reporta si la corrida acepta despachos o respuestas.
func (s AssessmentSession) Active() bool {
	return s.State == AssessmentAwaitingDispatch || s.State == AssessmentAwaitingAnswer
}

// Severidades y colores cacheados en la conversacion.
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"

	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorOrange = "orange"
	ColorRed    = "red"
)

type AssessmentResult struct {
	ID                         string               `json:"id"`
	RunID                      string               `json:"run_id"`
	ConversationID             string               `json:"conversation_id"`
	ScriptVersion              string               `json:"script_version"`
	RequiresImmediateAttention bool                 `json:"requires_immediate_attention"`
	Severity                   string               `json:"severity"`
	Color                      string               `json:"color"`
	YesCount                   int                  `json:"yes_count"`
	Answered                   int                  `json:"answered"`
	Responses                  []AssessmentResponse `json:"responses"`
	CompletedAt                time.Time            `json:"completed_at"`
}
