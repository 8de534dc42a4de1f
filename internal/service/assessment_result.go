package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"referral-chat/internal/domain"
)

// Umbrales de la proporcion de respuestas "yes" sobre respuestas dadas.
const (
	highYesRatio     = 0.6
	moderateYesRatio = 0.3
)

// DeriveAssessmentResult clasifica una corrida terminada. Una respuesta "yes" a
// una pregunta critica domina cualquier proporcion.
func DeriveAssessmentResult(script *AssessmentScript, session domain.AssessmentSession, completedAt time.Time) domain.AssessmentResult {
	result := domain.AssessmentResult{
		ID:             uuid.NewString(),
		RunID:          session.RunID,
		ConversationID: session.ConversationID,
		ScriptVersion:  script.Version(),
		Answered:       len(session.Responses),
		Responses:      append([]domain.AssessmentResponse(nil), session.Responses...),
		CompletedAt:    completedAt,
	}

	critical := false
	for _, r := range session.Responses {
		if r.Answer != domain.AnswerYes {
			continue
		}
		result.YesCount++
		if script.IsCritical(r.QuestionID) {
			critical = true
		}
	}

	ratio := 0.0
	if result.Answered > 0 {
		ratio = float64(result.YesCount) / float64(result.Answered)
	}
	switch {
	case critical:
		result.RequiresImmediateAttention = true
		result.Severity, result.Color = domain.SeverityCritical, domain.ColorRed
	case ratio >= highYesRatio:
		result.Severity, result.Color = domain.SeverityHigh, domain.ColorOrange
	case ratio >= moderateYesRatio:
		result.Severity, result.Color = domain.SeverityModerate, domain.ColorYellow
	default:
		result.Severity, result.Color = domain.SeverityLow, domain.ColorGreen
	}
	return result
}

// normalizeAnswer devuelve "yes", "no" u ok=false.
func normalizeAnswer(raw string) (string, bool) {
	answer := strings.ToLower(strings.TrimSpace(raw))
	switch answer {
	case domain.AnswerYes, domain.AnswerNo:
		return answer, true
	default:
		return "", false
	}
}

func validationPrompt(q domain.AssessmentQuestion) string {
	return fmt.Sprintf("Please answer \"yes\" or \"no\". %s", q.Prompt)
}
