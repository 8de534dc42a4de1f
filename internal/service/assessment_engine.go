package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"referral-chat/internal/domain"
	"referral-chat/internal/email"
	"referral-chat/internal/repository"
)

var (
	ErrAssessmentNotConfigured = errors.New("assessment engine not configured")
	ErrAssessmentInProgress    = errors.New("assessment already in progress")
	ErrNoActiveAssessment      = errors.New("no active assessment")
	ErrNotAwaitingAnswer       = errors.New("assessment is not awaiting an answer")
	ErrInvalidAnswer           = fmt.Errorf("%w: answer must be yes or no", ErrValidation)
)

const defaultDispatchTimeout = 10 * time.Second

// SystemMessenger publica mensajes sin autor en una conversacion.
type SystemMessenger interface {
	SendSystemMessage(ctx context.Context, conversationID, text string) (domain.Message, error)
}

// AssessmentEngine conduce el cuestionario si/no dentro de una conversacion.
// El estado de cada corrida vive en el log de eventos del store y se
// reconstruye en cada transicion; dentro del proceso las transiciones de una
// misma conversacion se serializan.
type AssessmentEngine struct {
	logger        *zap.Logger
	script        *AssessmentScript
	store         repository.AssessmentRepository
	conversations repository.ConversationRepository
	messenger     SystemMessenger
	observer      AssessmentObserver

	alerts  email.Sender
	alertTo string

	pacing          time.Duration
	dispatchTimeout time.Duration
	after           func(d time.Duration, f func()) (stop func() bool)
	now             func() time.Time

	locks sync.Map

	mu      sync.Mutex
	closed  bool
	pending map[*pendingDispatch]struct{}
}

type pendingDispatch struct {
	stop func() bool
}

// runState es la corrida reconstruida junto con los instantes de despacho y
// las reservas, que no forman parte de la vista publica.
type runState struct {
	session      domain.AssessmentSession
	dispatchedAt map[int]time.Time
	claims       map[int]dispatchClaim
}

// dispatchClaim es un evento "dispatched" vigente. Sin su evento "sent" el
// indice no cuenta como despachado.
type dispatchClaim struct {
	eventID string
	at      time.Time
}

func NewAssessmentEngine(
	logger *zap.Logger,
	script *AssessmentScript,
	store repository.AssessmentRepository,
	conversations repository.ConversationRepository,
	messenger SystemMessenger,
	observer AssessmentObserver,
	pacing time.Duration,
) *AssessmentEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentEngine{
		logger:          logger,
		script:          script,
		store:           store,
		conversations:   conversations,
		messenger:       messenger,
		observer:        observer,
		pacing:          pacing,
		dispatchTimeout: defaultDispatchTimeout,
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		now:     func() time.Time { return time.Now().UTC() },
		pending: make(map[*pendingDispatch]struct{}),
	}
}

// SetAlertSender configura el aviso por correo para resultados urgentes.
func (e *AssessmentEngine) SetAlertSender(sender email.Sender, to string) {
	if e == nil {
		return
	}
	e.alerts = sender
	e.alertTo = strings.TrimSpace(to)
}

func (e *AssessmentEngine) configured() bool {
	return e != nil && e.script != nil && e.store != nil && e.conversations != nil && e.messenger != nil
}

func (e *AssessmentEngine) Script() *AssessmentScript {
	if e == nil {
		return nil
	}
	return e.script
}

// Close cancela los despachos diferidos pendientes. Las corridas quedan en el
// store y Resume las continua.
func (e *AssessmentEngine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for p := range e.pending {
		p.stop()
		delete(e.pending, p)
	}
}

// Start abre una corrida nueva y despacha la primera pregunta.
func (e *AssessmentEngine) Start(ctx context.Context, conversationID string) (domain.AssessmentSession, error) {
	if !e.configured() {
		return domain.AssessmentSession{}, ErrAssessmentNotConfigured
	}
	conversation, err := e.conversation(ctx, conversationID)
	if err != nil {
		return domain.AssessmentSession{}, err
	}
	unlock := e.lock(conversation.ID)
	defer unlock()

	st, err := e.load(ctx, conversation.ID)
	if err != nil {
		return domain.AssessmentSession{}, err
	}
	if st.session.Active() {
		return st.session, ErrAssessmentInProgress
	}

	runID := uuid.NewString()
	if err := e.store.AppendEvent(ctx, domain.AssessmentEvent{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		RunID:          runID,
		Kind:           domain.EventStarted,
		CreatedAt:      e.now(),
	}); err != nil {
		return domain.AssessmentSession{}, storeErr("append started event", err)
	}
	e.logger.Info("assessment started",
		zap.String("conversation_id", conversation.ID),
		zap.String("run_id", runID),
		zap.String("script_version", e.script.Version()),
	)

	if intro := e.script.Intro(); intro != "" {
		if _, err := e.messenger.SendSystemMessage(ctx, conversation.ID, intro); err != nil {
			e.logger.Warn("assessment intro not sent",
				zap.String("conversation_id", conversation.ID),
				zap.Error(err),
			)
		}
	}

	if err := e.advanceLocked(ctx, conversation.ID); err != nil {
		return domain.AssessmentSession{}, err
	}
	return e.sessionLocked(ctx, conversation.ID)
}

// Dispatch envia la pregunta index si es la que corresponde a la corrida
// activa. Llamarla de nuevo con un indice ya despachado no envia nada.
func (e *AssessmentEngine) Dispatch(ctx context.Context, conversationID string, index int) error {
	if !e.configured() {
		return ErrAssessmentNotConfigured
	}
	unlock := e.lock(conversationID)
	defer unlock()

	st, err := e.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if !st.session.Active() {
		return ErrNoActiveAssessment
	}
	return e.dispatchLocked(ctx, st, index)
}

// SubmitAnswer registra la respuesta raw a la pregunta pendiente. messageID
// identifica el mensaje de origen; un id ya consumido se ignora.
func (e *AssessmentEngine) SubmitAnswer(ctx context.Context, conversationID, messageID, raw string) error {
	if !e.configured() {
		return ErrAssessmentNotConfigured
	}
	return e.submit(ctx, strings.TrimSpace(conversationID), strings.TrimSpace(messageID), raw, time.Time{})
}

// HandleInbound enruta un mensaje recien insertado al motor. Solo los mensajes
// legibles escritos por el owner cuentan como respuesta; el resto se ignora.
func (e *AssessmentEngine) HandleInbound(ctx context.Context, conversation domain.Conversation, msg domain.Message) error {
	if !e.configured() {
		return nil
	}
	if msg.IsSystem() || msg.DecryptFailed || !msg.AuthoredBy(conversation.OwnerID) {
		return nil
	}
	err := e.submit(ctx, conversation.ID, msg.ID, msg.Body, msg.CreatedAt)
	switch {
	case err == nil,
		errors.Is(err, ErrNoActiveAssessment),
		errors.Is(err, ErrNotAwaitingAnswer),
		errors.Is(err, ErrInvalidAnswer):
		return nil
	default:
		return err
	}
}

// Resume vuelve a empujar una corrida detenida en AwaitingDispatch, por ejemplo
// tras un envio fallido o un reinicio del proceso.
func (e *AssessmentEngine) Resume(ctx context.Context, conversationID string) (domain.AssessmentSession, error) {
	if !e.configured() {
		return domain.AssessmentSession{}, ErrAssessmentNotConfigured
	}
	unlock := e.lock(conversationID)
	defer unlock()

	if err := e.advanceLocked(ctx, conversationID); err != nil {
		return domain.AssessmentSession{}, err
	}
	return e.sessionLocked(ctx, conversationID)
}

// Session devuelve la corrida mas reciente reconstruida desde el store.
func (e *AssessmentEngine) Session(ctx context.Context, conversationID string) (domain.AssessmentSession, error) {
	if !e.configured() {
		return domain.AssessmentSession{}, ErrAssessmentNotConfigured
	}
	unlock := e.lock(conversationID)
	defer unlock()
	return e.sessionLocked(ctx, conversationID)
}

// Result devuelve el resultado persistido de la corrida mas reciente.
func (e *AssessmentEngine) Result(ctx context.Context, conversationID string) (domain.AssessmentResult, error) {
	if !e.configured() {
		return domain.AssessmentResult{}, ErrAssessmentNotConfigured
	}
	runID, err := e.store.LatestRunID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssessmentResult{}, ErrNotFound
	}
	if err != nil {
		return domain.AssessmentResult{}, storeErr("latest assessment run", err)
	}
	result, err := e.store.GetResult(ctx, runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssessmentResult{}, ErrNotFound
	}
	if err != nil {
		return domain.AssessmentResult{}, storeErr("get assessment result", err)
	}
	return result, nil
}

func (e *AssessmentEngine) submit(ctx context.Context, conversationID, messageID, raw string, sentAt time.Time) error {
	unlock := e.lock(conversationID)
	defer unlock()

	st, err := e.load(ctx, conversationID)
	if err != nil {
		return err
	}
	session := st.session
	if !session.Active() {
		return ErrNoActiveAssessment
	}
	if messageID != "" && session.Consumed[messageID] {
		return nil
	}
	if session.State != domain.AssessmentAwaitingAnswer {
		return ErrNotAwaitingAnswer
	}
	index := session.Cursor
	if !sentAt.IsZero() && sentAt.Before(st.dispatchedAt[index]) {
		return ErrNotAwaitingAnswer
	}
	question, _ := e.script.Question(index)

	answer, ok := normalizeAnswer(raw)
	if !ok {
		if _, err := e.messenger.SendSystemMessage(ctx, conversationID, validationPrompt(question)); err != nil {
			return fmt.Errorf("send validation prompt: %w", err)
		}
		if err := e.store.AppendEvent(ctx, domain.AssessmentEvent{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			RunID:          session.RunID,
			Kind:           domain.EventRejected,
			QuestionIndex:  index,
			NextIndex:      index,
			QuestionID:     question.ID,
			MessageID:      messageID,
			CreatedAt:      e.now(),
		}); err != nil {
			return storeErr("append rejected event", err)
		}
		e.notify(AssessmentNotice{
			Kind:           NoticeValidationRejected,
			ConversationID: conversationID,
			QuestionID:     question.ID,
			QuestionIndex:  index,
			Prompt:         question.Prompt,
			Reason:         "answer must be yes or no",
		})
		return ErrInvalidAnswer
	}

	next := e.script.NextIndex(index, answer)
	if err := e.store.AppendEvent(ctx, domain.AssessmentEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		RunID:          session.RunID,
		Kind:           domain.EventAnswered,
		QuestionIndex:  index,
		NextIndex:      next,
		QuestionID:     question.ID,
		Answer:         answer,
		MessageID:      messageID,
		CreatedAt:      e.now(),
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicateAnswer) {
			return nil
		}
		return storeErr("append answered event", err)
	}
	e.logger.Debug("assessment answer recorded",
		zap.String("conversation_id", conversationID),
		zap.String("question_id", question.ID),
		zap.Int("next_index", next),
	)

	e.scheduleLocked(ctx, conversationID, next)
	return nil
}

// scheduleLocked despacha next tras la pausa configurada. Un fallo no se
// devuelve: la respuesta ya quedo registrada y Resume reintenta el despacho.
func (e *AssessmentEngine) scheduleLocked(ctx context.Context, conversationID string, next int) {
	if e.pacing <= 0 {
		if err := e.advanceLocked(ctx, conversationID); err != nil {
			e.logger.Warn("assessment dispatch failed",
				zap.String("conversation_id", conversationID),
				zap.Int("index", next),
				zap.Error(err),
			)
		}
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	p := &pendingDispatch{}
	p.stop = e.after(e.pacing, func() {
		e.mu.Lock()
		delete(e.pending, p)
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
		defer cancel()
		if err := e.Dispatch(ctx, conversationID, next); err != nil && !errors.Is(err, ErrNoActiveAssessment) {
			e.logger.Warn("deferred assessment dispatch failed",
				zap.String("conversation_id", conversationID),
				zap.Int("index", next),
				zap.Error(err),
			)
		}
	})
	e.pending[p] = struct{}{}
}

// advanceLocked despacha lo que corresponda al cursor de la corrida activa.
func (e *AssessmentEngine) advanceLocked(ctx context.Context, conversationID string) error {
	st, err := e.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if st.session.State != domain.AssessmentAwaitingDispatch {
		return nil
	}
	return e.dispatchLocked(ctx, st, st.session.Cursor)
}

func (e *AssessmentEngine) dispatchLocked(ctx context.Context, st runState, index int) error {
	session := st.session
	if session.State != domain.AssessmentAwaitingDispatch || index != session.Cursor {
		e.logger.Debug("stale dispatch ignored",
			zap.String("conversation_id", session.ConversationID),
			zap.Int("index", index),
			zap.Int("cursor", session.Cursor),
		)
		return nil
	}
	if index >= e.script.Len() {
		return e.completeLocked(ctx, st)
	}

	question, _ := e.script.Question(index)
	sent, err := e.deliverLocked(ctx, st, index, question.ID, question.Prompt)
	if err != nil {
		return fmt.Errorf("dispatch question %q: %w", question.ID, err)
	}
	if !sent {
		return nil
	}

	e.notify(AssessmentNotice{
		Kind:           NoticeQuestionDispatched,
		ConversationID: session.ConversationID,
		QuestionID:     question.ID,
		QuestionIndex:  index,
		Prompt:         question.Prompt,
	})
	return nil
}

// completeLocked cierra la corrida. Cada paso es idempotente, de modo que un
// reintento tras un fallo parcial no duplica ni el resultado ni el resumen.
func (e *AssessmentEngine) completeLocked(ctx context.Context, st runState) error {
	session := st.session
	conversationID := session.ConversationID
	n := e.script.Len()

	created, err := e.store.SaveResult(ctx, DeriveAssessmentResult(e.script, session, e.now()))
	if err != nil {
		return storeErr("save assessment result", err)
	}
	result, err := e.store.GetResult(ctx, session.RunID)
	if err != nil {
		return storeErr("get assessment result", err)
	}
	if created && result.RequiresImmediateAttention {
		e.sendAlert(ctx, result)
	}
	if err := e.conversations.UpdateAssessment(ctx, conversationID, result.Severity, result.Color); err != nil {
		return storeErr("cache assessment severity", err)
	}

	if !session.Dispatched[n] {
		sent, err := e.deliverLocked(ctx, st, n, "", e.script.summaryText())
		if err != nil {
			return fmt.Errorf("send assessment summary: %w", err)
		}
		if !sent {
			// Otra reserva del resumen sigue vigente; Resume cierra despues.
			return nil
		}
	}

	if err := e.store.AppendEvent(ctx, domain.AssessmentEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		RunID:          session.RunID,
		Kind:           domain.EventCompleted,
		QuestionIndex:  n,
		NextIndex:      n,
		CreatedAt:      e.now(),
	}); err != nil {
		return storeErr("append completed event", err)
	}
	e.logger.Info("assessment completed",
		zap.String("conversation_id", conversationID),
		zap.String("run_id", session.RunID),
		zap.String("severity", result.Severity),
		zap.Bool("requires_immediate_attention", result.RequiresImmediateAttention),
	)
	e.notify(AssessmentNotice{
		Kind:           NoticeAssessmentCompleted,
		ConversationID: conversationID,
		QuestionIndex:  n,
		Result:         &result,
	})
	return nil
}

// deliverLocked envia text bajo la reserva de (run, index) y registra el envio
// con un evento "sent". Devuelve false sin error si el indice ya se envio o si
// otra reserva sigue vigente. Una reserva sin envio mas vieja que
// dispatchTimeout se considera abandonada y se reutiliza.
func (e *AssessmentEngine) deliverLocked(ctx context.Context, st runState, index int, questionID, text string) (bool, error) {
	session := st.session
	if session.Dispatched[index] {
		e.logger.Debug("duplicate dispatch guarded",
			zap.String("conversation_id", session.ConversationID),
			zap.Int("index", index),
		)
		return false, nil
	}

	var claimID string
	if c, ok := st.claims[index]; ok {
		if e.now().Sub(c.at) < e.dispatchTimeout {
			e.logger.Debug("dispatch claim still in flight",
				zap.String("conversation_id", session.ConversationID),
				zap.Int("index", index),
			)
			return false, nil
		}
		e.logger.Warn("reusing abandoned dispatch claim",
			zap.String("conversation_id", session.ConversationID),
			zap.String("event_id", c.eventID),
			zap.Int("index", index),
		)
		claimID = c.eventID
	} else {
		id, err := e.claim(ctx, session, index, questionID)
		if err != nil || id == "" {
			return false, err
		}
		claimID = id
	}

	msg, err := e.messenger.SendSystemMessage(ctx, session.ConversationID, text)
	if err != nil {
		return false, errors.Join(fmt.Errorf("send system message: %w", err), e.release(ctx, claimID))
	}
	if err := e.store.AppendEvent(ctx, domain.AssessmentEvent{
		ID:             uuid.NewString(),
		ConversationID: session.ConversationID,
		RunID:          session.RunID,
		Kind:           domain.EventSent,
		QuestionIndex:  index,
		NextIndex:      index,
		QuestionID:     questionID,
		MessageID:      msg.ID,
		CreatedAt:      e.now(),
	}); err != nil {
		return false, storeErr("append sent event", err)
	}
	return true, nil
}

// claim reserva (run, index) en el store. Devuelve "" si otro proceso ya lo
// reservo.
func (e *AssessmentEngine) claim(ctx context.Context, session domain.AssessmentSession, index int, questionID string) (string, error) {
	event := domain.AssessmentEvent{
		ID:             uuid.NewString(),
		ConversationID: session.ConversationID,
		RunID:          session.RunID,
		Kind:           domain.EventDispatched,
		QuestionIndex:  index,
		NextIndex:      index,
		QuestionID:     questionID,
		CreatedAt:      e.now(),
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateDispatch) {
			e.logger.Debug("duplicate dispatch guarded",
				zap.String("conversation_id", session.ConversationID),
				zap.Int("index", index),
			)
			return "", nil
		}
		return "", storeErr("claim dispatch", err)
	}
	return event.ID, nil
}

// release borra una reserva cuyo envio fallo. Si el borrado falla la reserva
// queda en el store hasta que venza dispatchTimeout.
func (e *AssessmentEngine) release(ctx context.Context, eventID string) error {
	if err := e.store.ReleaseDispatch(context.WithoutCancel(ctx), eventID); err != nil {
		e.logger.Error("release dispatch claim failed",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return storeErr("release dispatch claim", err)
	}
	return nil
}

func (e *AssessmentEngine) sendAlert(ctx context.Context, result domain.AssessmentResult) {
	if e.alerts == nil || e.alertTo == "" {
		e.logger.Warn("urgent assessment without alert recipient",
			zap.String("conversation_id", result.ConversationID),
		)
		return
	}
	conversation, err := e.conversations.GetByID(ctx, result.ConversationID)
	if err != nil {
		e.logger.Error("urgent alert lookup failed", zap.String("conversation_id", result.ConversationID), zap.Error(err))
		return
	}
	if err := e.alerts.SendUrgentAssessmentAlert(ctx, e.alertTo, email.UrgentAlert{
		ConversationID: conversation.ID,
		OwnerID:        conversation.OwnerID,
		Severity:       result.Severity,
		CompletedAt:    result.CompletedAt,
	}); err != nil {
		e.logger.Error("urgent alert not sent",
			zap.String("conversation_id", result.ConversationID),
			zap.Error(err),
		)
	}
}

func (e *AssessmentEngine) sessionLocked(ctx context.Context, conversationID string) (domain.AssessmentSession, error) {
	st, err := e.load(ctx, conversationID)
	if err != nil {
		return domain.AssessmentSession{}, err
	}
	return st.session, nil
}

func (e *AssessmentEngine) load(ctx context.Context, conversationID string) (runState, error) {
	runID, err := e.store.LatestRunID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return replay(conversationID, "", nil, e.script.Len()), nil
	}
	if err != nil {
		return runState{}, storeErr("latest assessment run", err)
	}
	events, err := e.store.ListEvents(ctx, conversationID, runID)
	if err != nil {
		return runState{}, storeErr("list assessment events", err)
	}
	return replay(conversationID, runID, events, e.script.Len()), nil
}

func (e *AssessmentEngine) conversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return domain.Conversation{}, ErrNotFound
	}
	conversation, err := e.conversations.GetByID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, storeErr("get conversation", err)
	}
	return conversation, nil
}

func (e *AssessmentEngine) lock(conversationID string) func() {
	v, _ := e.locks.LoadOrStore(conversationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (e *AssessmentEngine) notify(n AssessmentNotice) {
	if e.observer != nil {
		e.observer.Notify(n)
	}
}

// replay reconstruye una corrida a partir de sus eventos ordenados. Un indice
// igual a n es el mensaje de cierre. Solo un evento "sent" marca un indice como
// despachado; "dispatched" es la reserva previa al envio.
func replay(conversationID, runID string, events []domain.AssessmentEvent, n int) runState {
	st := runState{
		session: domain.AssessmentSession{
			ConversationID: conversationID,
			RunID:          runID,
			State:          domain.AssessmentIdle,
			Dispatched:     make(map[int]bool),
			Responses:      []domain.AssessmentResponse{},
			Consumed:       make(map[string]bool),
		},
		dispatchedAt: make(map[int]time.Time),
		claims:       make(map[int]dispatchClaim),
	}
	s := &st.session
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventStarted:
			s.State = domain.AssessmentAwaitingDispatch
			s.Cursor = 0
		case domain.EventDispatched:
			st.claims[ev.QuestionIndex] = dispatchClaim{eventID: ev.ID, at: ev.CreatedAt}
		case domain.EventSent:
			s.Dispatched[ev.QuestionIndex] = true
			at := ev.CreatedAt
			if c, ok := st.claims[ev.QuestionIndex]; ok {
				at = c.at
			}
			st.dispatchedAt[ev.QuestionIndex] = at
			if s.State == domain.AssessmentAwaitingDispatch && ev.QuestionIndex == s.Cursor && ev.QuestionIndex < n {
				s.State = domain.AssessmentAwaitingAnswer
			}
		case domain.EventAnswered:
			if s.State != domain.AssessmentAwaitingAnswer || ev.QuestionIndex != s.Cursor {
				continue
			}
			s.Responses = append(s.Responses, domain.AssessmentResponse{
				QuestionID: ev.QuestionID,
				Answer:     ev.Answer,
				AnsweredAt: ev.CreatedAt,
			})
			if ev.MessageID != "" {
				s.Consumed[ev.MessageID] = true
			}
			s.Cursor = ev.NextIndex
			s.State = domain.AssessmentAwaitingDispatch
		case domain.EventRejected:
			if ev.MessageID != "" {
				s.Consumed[ev.MessageID] = true
			}
		case domain.EventCompleted:
			s.State = domain.AssessmentCompleted
		}
	}
	return st
}
