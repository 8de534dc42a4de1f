package domain

import "time"

// UndecryptableBody reemplaza el cuerpo de un mensaje que no pudo descifrarse.
const UndecryptableBody = "[message unavailable]"

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       *string    `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	DecryptFailed  bool       `json:"decrypt_failed,omitempty"`
}

// IsSystem indica si el mensaje fue emitido por el motor de evaluacion.
func (m Message) IsSystem() bool {
	return m.SenderID == nil
}

// AuthoredBy reporta si userID es el autor humano del mensaje.
func (m Message) AuthoredBy(userID string) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// Sender devuelve el id del autor o "" para mensajes de sistema.
func (m Message) Sender() string {
	if m.SenderID == nil {
		return ""
	}
	return *m.SenderID
}
