package email

import (
	"context"
	"errors"
	"time"
)

// UrgentAlert resume una evaluacion que requiere atencion inmediata. No lleva
// respuestas ni texto de la conversacion: solo lo necesario para abrirla.
type UrgentAlert struct {
	ConversationID string
	OwnerID        string
	Severity       string
	CompletedAt    time.Time
}

// Sender define la interfaz para avisos por correo al equipo de staff.
type Sender interface {
	SendUrgentAssessmentAlert(ctx context.Context, toEmail string, alert UrgentAlert) error
}

var ErrSenderDisabled = errors.New("email sender disabled")

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendUrgentAssessmentAlert(_ context.Context, _ string, _ UrgentAlert) error {
	if s.reason == "" {
		return ErrSenderDisabled
	}
	return errors.Join(ErrSenderDisabled, errors.New(s.reason))
}
