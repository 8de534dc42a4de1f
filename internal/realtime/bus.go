package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Notification avisa que se inserto un mensaje en una conversacion. El payload
// es parcial a proposito: el consumidor debe volver a leer la fila completa.
type Notification struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func (n Notification) validate() error {
	if strings.TrimSpace(n.ConversationID) == "" || strings.TrimSpace(n.MessageID) == "" {
		return ErrInvalidNotification
	}
	return nil
}

// Handler recibe notificaciones en la goroutine de la suscripcion. La entrega
// es at-least-once; el orden dentro de una suscripcion no esta garantizado.
type Handler func(ctx context.Context, n Notification)

// Bus entrega notificaciones de inserciones acotadas a una conversacion.
type Bus interface {
	Publish(ctx context.Context, n Notification) error
	Subscribe(ctx context.Context, conversationID string, h Handler) (Subscription, error)
}

// Subscription es un canal vivo; debe cerrarse al cambiar de conversacion o
// al desmontar el consumidor. Close no debe llamarse desde el Handler.
type Subscription interface {
	ConversationID() string
	// Done se cierra cuando la suscripcion deja de entregar notificaciones.
	Done() <-chan struct{}
	// Err devuelve un error envuelto en ErrTransport si el feed se corto sin Close.
	Err() error
	Close() error
}

var (
	ErrTransport           = errors.New("realtime transport error")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrMissingConversation = errors.New("conversation id is required")
	ErrNilHandler          = errors.New("handler is required")
)

// subscription implementa el ciclo de vida comun a los buses.
type subscription struct {
	conversationID string
	cancel         context.CancelFunc
	done           chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

func newSubscription(conversationID string, cancel context.CancelFunc) *subscription {
	return &subscription{
		conversationID: conversationID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

func (s *subscription) ConversationID() string { return s.conversationID }

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

func validateSubscribe(conversationID string, h Handler) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrMissingConversation
	}
	if h == nil {
		return ErrNilHandler
	}
	return nil
}
