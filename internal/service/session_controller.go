package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"referral-chat/internal/domain"
	"referral-chat/internal/realtime"
)

var (
	ErrSessionNotConfigured = errors.New("session controller not configured")
	ErrSessionNotOpen       = errors.New("no conversation open")
)

// SurfaceState describe la superficie de chat que controla un SessionController.
type SurfaceState struct {
	Open      bool `json:"open"`
	Minimized bool `json:"minimized"`
}

// SessionSink recibe lo que la superficie debe mostrar. Los metodos pueden
// llamarse desde goroutines del bus y del motor. OnHistory llega una vez por
// Open; OnMessage solo trae mensajes que no estaban en ese historial.
type SessionSink interface {
	OnHistory(conversation domain.Conversation, history []domain.Message)
	OnMessage(msg domain.Message)
	OnUnread(count int)
	OnAssessmentEvent(n AssessmentNotice)
	OnTransportError(err error)
}

// SessionController mantiene una conversacion abierta para un caller: historial
// ordenado y sin duplicados, conteo de no leidos y enrutado al motor.
type SessionController struct {
	logger   *zap.Logger
	caller   domain.Caller
	messages *MessageService
	engine   *AssessmentEngine
	bus      realtime.Bus
	hub      *EventHub
	sink     SessionSink

	// emitMu ordena OnHistory antes de cualquier OnMessage de la misma generacion.
	emitMu sync.Mutex

	mu           sync.Mutex
	generation   uint64
	state        SurfaceState
	conversation domain.Conversation
	sub          realtime.Subscription
	watchDone    chan struct{}
	unhook       func()
	history      []domain.Message
	seen         map[string]bool
	snapshotDone bool
	unread       int
}

func NewSessionController(
	logger *zap.Logger,
	caller domain.Caller,
	messages *MessageService,
	engine *AssessmentEngine,
	bus realtime.Bus,
	hub *EventHub,
	sink SessionSink,
) *SessionController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionController{
		logger:   logger,
		caller:   caller,
		messages: messages,
		engine:   engine,
		bus:      bus,
		hub:      hub,
		sink:     sink,
		seen:     make(map[string]bool),
	}
}

// Open cambia la superficie a la conversacion de ownerID. Cualquier
// suscripcion anterior se cierra antes de abrir la nueva.
func (c *SessionController) Open(ctx context.Context, ownerID string, minimized bool) (domain.Conversation, error) {
	if c == nil || c.messages == nil || c.bus == nil {
		return domain.Conversation{}, ErrSessionNotConfigured
	}
	c.teardown()

	conversation, err := c.messages.GetOrCreateConversation(ctx, c.caller, ownerID)
	if err != nil {
		return domain.Conversation{}, err
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.conversation = conversation
	c.state = SurfaceState{Open: true, Minimized: minimized}
	c.history = nil
	c.seen = make(map[string]bool)
	c.snapshotDone = false
	c.unread = 0
	c.mu.Unlock()

	// La suscripcion vive hasta Close/Open, no hasta el fin de ctx.
	sub, err := c.bus.Subscribe(context.WithoutCancel(ctx), conversation.ID, c.notificationHandler(gen, conversation))
	if err != nil {
		c.reset(gen)
		return domain.Conversation{}, err
	}
	unhook := func() {}
	if c.hub != nil {
		unhook = c.hub.Subscribe(conversation.ID, func(n AssessmentNotice) {
			if c.current(gen) && c.sink != nil {
				c.sink.OnAssessmentEvent(n)
			}
		})
	}
	watchDone := make(chan struct{})

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		unhook()
		_ = sub.Close()
		return domain.Conversation{}, ErrSessionNotOpen
	}
	c.sub = sub
	c.unhook = unhook
	c.watchDone = watchDone
	c.mu.Unlock()
	go c.watch(gen, sub, watchDone)

	history, err := c.messages.GetMessages(ctx, c.caller, conversation.ID)
	if err != nil {
		c.abort(gen)
		return domain.Conversation{}, err
	}
	for _, msg := range history {
		c.insert(gen, msg)
	}

	unread, err := c.messages.CountUnread(ctx, c.caller, conversation.ID)
	if err != nil {
		c.abort(gen)
		return domain.Conversation{}, err
	}
	c.emitHistory(gen, conversation)

	c.mu.Lock()
	c.unread = unread
	visible := c.state.Open && !c.state.Minimized
	c.mu.Unlock()

	if unread > 0 && visible {
		c.markRead(ctx, gen)
	} else {
		c.emitUnread(gen)
	}
	return conversation, nil
}

// Minimize oculta la superficie; los mensajes nuevos cuentan como no leidos.
func (c *SessionController) Minimize(context.Context) error {
	if c == nil {
		return ErrSessionNotConfigured
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Open {
		return ErrSessionNotOpen
	}
	c.state.Minimized = true
	return nil
}

// Restore vuelve a mostrar la superficie y marca como leido lo pendiente.
func (c *SessionController) Restore(ctx context.Context) error {
	if c == nil {
		return ErrSessionNotConfigured
	}
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return ErrSessionNotOpen
	}
	c.state.Minimized = false
	gen := c.generation
	unread := c.unread
	c.mu.Unlock()

	if unread > 0 {
		c.markRead(ctx, gen)
	}
	return nil
}

// Close desuscribe y limpia el estado de la superficie.
func (c *SessionController) Close() {
	if c == nil {
		return
	}
	c.teardown()
}

// Send publica texto del caller en la conversacion abierta y lo ofrece al
// motor como posible respuesta.
func (c *SessionController) Send(ctx context.Context, text string) (domain.Message, error) {
	if c == nil || c.messages == nil {
		return domain.Message{}, ErrSessionNotConfigured
	}
	c.mu.Lock()
	open := c.state.Open
	conversation := c.conversation
	gen := c.generation
	c.mu.Unlock()
	if !open {
		return domain.Message{}, ErrSessionNotOpen
	}

	msg, err := c.messages.SendMessage(ctx, c.caller, conversation.ID, text)
	if err != nil {
		return domain.Message{}, err
	}
	if _, live := c.insert(gen, msg); live {
		c.emitMessage(msg)
	}
	c.route(ctx, conversation, msg)
	return msg, nil
}

// StartAssessment inicia la evaluacion en la conversacion abierta.
func (c *SessionController) StartAssessment(ctx context.Context) (domain.AssessmentSession, error) {
	if c == nil || c.engine == nil {
		return domain.AssessmentSession{}, ErrAssessmentNotConfigured
	}
	c.mu.Lock()
	open := c.state.Open
	conversationID := c.conversation.ID
	c.mu.Unlock()
	if !open {
		return domain.AssessmentSession{}, ErrSessionNotOpen
	}
	return c.engine.Start(ctx, conversationID)
}

// ResumeAssessment continua una corrida que quedo pendiente.
func (c *SessionController) ResumeAssessment(ctx context.Context) (domain.AssessmentSession, error) {
	if c == nil || c.engine == nil {
		return domain.AssessmentSession{}, ErrAssessmentNotConfigured
	}
	c.mu.Lock()
	open := c.state.Open
	conversationID := c.conversation.ID
	c.mu.Unlock()
	if !open {
		return domain.AssessmentSession{}, ErrSessionNotOpen
	}
	return c.engine.Resume(ctx, conversationID)
}

// History devuelve una copia del historial ordenado por (created_at, id).
func (c *SessionController) History() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.history))
	copy(out, c.history)
	return out
}

func (c *SessionController) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

func (c *SessionController) State() SurfaceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SessionController) Conversation() (domain.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation, c.state.Open
}

func (c *SessionController) notificationHandler(gen uint64, conversation domain.Conversation) realtime.Handler {
	return func(ctx context.Context, n realtime.Notification) {
		if n.ConversationID != conversation.ID || !c.current(gen) {
			return
		}
		c.mu.Lock()
		seen := c.seen[n.MessageID]
		c.mu.Unlock()
		if seen {
			return
		}

		msg, err := c.messages.GetMessage(ctx, c.caller, n.MessageID)
		if err != nil {
			c.logger.Warn("refetch notified message failed",
				zap.String("conversation_id", n.ConversationID),
				zap.String("message_id", n.MessageID),
				zap.Error(err),
			)
			return
		}
		added, live := c.insert(gen, msg)
		if !added {
			return
		}
		if live {
			c.emitMessage(msg)
		}

		if !msg.AuthoredBy(c.caller.UserID) {
			c.mu.Lock()
			visible := c.state.Open && !c.state.Minimized
			c.mu.Unlock()
			if visible {
				c.markRead(ctx, gen)
			} else {
				c.refreshUnread(ctx, gen, conversation.ID)
			}
		}
		c.route(ctx, conversation, msg)
	}
}

func (c *SessionController) route(ctx context.Context, conversation domain.Conversation, msg domain.Message) {
	if c.engine == nil {
		return
	}
	if err := c.engine.HandleInbound(ctx, conversation, msg); err != nil {
		c.logger.Warn("assessment routing failed",
			zap.String("conversation_id", conversation.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// insert agrega msg al historial si no estaba. added es false para duplicados
// o si la superficie cambio de conversacion; live indica que el historial ya
// se entrego al sink y msg debe emitirse aparte.
func (c *SessionController) insert(gen uint64, msg domain.Message) (added, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.seen[msg.ID] {
		return false, false
	}
	c.seen[msg.ID] = true
	i := sort.Search(len(c.history), func(i int) bool {
		h := c.history[i]
		if h.CreatedAt.Equal(msg.CreatedAt) {
			return h.ID > msg.ID
		}
		return h.CreatedAt.After(msg.CreatedAt)
	})
	c.history = append(c.history, domain.Message{})
	copy(c.history[i+1:], c.history[i:])
	c.history[i] = msg
	return true, c.snapshotDone
}

// emitHistory entrega el historial cargado por Open. Los mensajes insertados
// antes de este punto viajan solo en el historial.
func (c *SessionController) emitHistory(gen uint64, conversation domain.Conversation) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.snapshotDone = true
	history := make([]domain.Message, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.OnHistory(conversation, history)
	}
}

func (c *SessionController) emitMessage(msg domain.Message) {
	if c.sink == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.sink.OnMessage(msg)
}

func (c *SessionController) markRead(ctx context.Context, gen uint64) {
	c.mu.Lock()
	conversationID := c.conversation.ID
	c.mu.Unlock()
	if _, err := c.messages.MarkRead(ctx, c.caller, conversationID); err != nil {
		c.logger.Warn("mark read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	c.mu.Lock()
	if c.generation == gen {
		c.unread = 0
	}
	c.mu.Unlock()
	c.emitUnread(gen)
}

func (c *SessionController) refreshUnread(ctx context.Context, gen uint64, conversationID string) {
	n, err := c.messages.CountUnread(ctx, c.caller, conversationID)
	c.mu.Lock()
	if c.generation == gen {
		if err != nil {
			c.unread++
		} else {
			c.unread = n
		}
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("count unread failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	c.emitUnread(gen)
}

func (c *SessionController) emitUnread(gen uint64) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	unread := c.unread
	c.mu.Unlock()
	if c.sink != nil {
		c.sink.OnUnread(unread)
	}
}

// watch reporta el corte del feed cuando la suscripcion termina sin Close.
func (c *SessionController) watch(gen uint64, sub realtime.Subscription, done chan struct{}) {
	defer close(done)
	<-sub.Done()
	err := sub.Err()
	if err == nil || !c.current(gen) {
		return
	}
	c.logger.Warn("realtime subscription lost",
		zap.String("conversation_id", sub.ConversationID()),
		zap.Error(err),
	)
	if c.sink != nil {
		c.sink.OnTransportError(err)
	}
}

func (c *SessionController) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.state.Open
}

// abort deshace un Open fallido si nadie abrio otra conversacion mientras tanto.
func (c *SessionController) abort(gen uint64) {
	c.mu.Lock()
	mine := c.generation == gen
	c.mu.Unlock()
	if mine {
		c.teardown()
	}
}

func (c *SessionController) reset(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.state = SurfaceState{}
		c.conversation = domain.Conversation{}
	}
}

// teardown invalida la generacion actual y libera la suscripcion fuera del lock.
func (c *SessionController) teardown() {
	c.mu.Lock()
	c.generation++
	sub, unhook, done := c.sub, c.unhook, c.watchDone
	c.sub, c.unhook, c.watchDone = nil, nil, nil
	c.state = SurfaceState{}
	c.conversation = domain.Conversation{}
	c.history = nil
	c.seen = make(map[string]bool)
	c.snapshotDone = false
	c.unread = 0
	c.mu.Unlock()

	if unhook != nil {
		unhook()
	}
	if sub != nil {
		_ = sub.Close()
	}
	if done != nil {
		<-done
	}
}
