package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"referral-chat/internal/codec"
	"referral-chat/internal/domain"
	"referral-chat/internal/realtime"
	"referral-chat/internal/repository"
)

// MessageService combina el store y el codec: conversaciones, envio y lectura
// de mensajes cifrados, y contabilidad de leidos/no leidos.
type MessageService struct {
	logger        *zap.Logger
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	codec         codec.Codec
	bus           realtime.Bus
	limiter       SendRateLimiter
	now           func() time.Time
}

var ErrMessageServiceNotConfigured = errors.New("message service not configured")

func NewMessageService(
	logger *zap.Logger,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	c codec.Codec,
	bus realtime.Bus,
	limiter SendRateLimiter,
) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		logger:        logger,
		conversations: conversations,
		messages:      messages,
		codec:         c,
		bus:           bus,
		limiter:       limiter,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MessageService) configured() bool {
	return s != nil && s.conversations != nil && s.messages != nil && s.codec != nil
}

// GetOrCreateConversation devuelve la conversacion unica del owner y la crea
// si no existe. Es segura de llamar repetidamente.
func (s *MessageService) GetOrCreateConversation(ctx context.Context, caller domain.Caller, ownerID string) (domain.Conversation, error) {
	if !s.configured() {
		return domain.Conversation{}, ErrMessageServiceNotConfigured
	}
	if caller.IsZero() {
		return domain.Conversation{}, ErrAuthRequired
	}
	ownerID, err := resolveOwner(caller, ownerID)
	if err != nil {
		return domain.Conversation{}, err
	}

	conversation, err := s.conversations.FindByOwner(ctx, ownerID)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, storeErr("find conversation", err)
	}

	now := s.now()
	if err := s.conversations.Create(ctx, domain.Conversation{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		LastActivityAt: now,
		CreatedAt:      now,
	}); err != nil {
		return domain.Conversation{}, storeErr("create conversation", err)
	}

	// Releer: otro cliente pudo haber ganado la insercion.
	conversation, err = s.conversations.FindByOwner(ctx, ownerID)
	if err != nil {
		return domain.Conversation{}, storeErr("find conversation", err)
	}
	s.logger.Info("conversation created",
		zap.String("conversation_id", conversation.ID),
		zap.String("owner_id", ownerID),
	)
	return conversation, nil
}

// Conversation obtiene una conversacion verificando el acceso del caller.
func (s *MessageService) Conversation(ctx context.Context, caller domain.Caller, conversationID string) (domain.Conversation, error) {
	if !s.configured() {
		return domain.Conversation{}, ErrMessageServiceNotConfigured
	}
	if caller.IsZero() {
		return domain.Conversation{}, ErrAuthRequired
	}
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if err := authorize(caller, conversation); err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

// SendMessage cifra y persiste un mensaje humano. Devuelve el mensaje con el
// cuerpo en claro.
func (s *MessageService) SendMessage(ctx context.Context, caller domain.Caller, conversationID, plaintext string) (domain.Message, error) {
	if !s.configured() {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}
	if caller.IsZero() {
		return domain.Message{}, ErrAuthRequired
	}
	body := strings.TrimSpace(plaintext)
	if body == "" {
		return domain.Message{}, ErrEmptyMessage
	}

	conversation, err := s.Conversation(ctx, caller, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if s.limiter != nil && !s.limiter.Allow(caller.UserID) {
		return domain.Message{}, ErrRateLimited
	}

	ciphertext, err := s.codec.Encrypt(body, conversation.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encrypt message: %w", err)
	}

	sender := caller.UserID
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		SenderID:       &sender,
		Body:           ciphertext,
		CreatedAt:      s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return domain.Message{}, storeErr("insert message", err)
	}
	s.afterInsert(ctx, msg)

	msg.Body = body
	return msg, nil
}

// SendSystemMessage persiste un mensaje sin autor y sin cifrar.
func (s *MessageService) SendSystemMessage(ctx context.Context, conversationID, text string) (domain.Message, error) {
	if !s.configured() {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Body:           text,
		CreatedAt:      s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return domain.Message{}, storeErr("insert system message", err)
	}
	s.afterInsert(ctx, msg)
	return msg, nil
}

// GetMessages devuelve el historial ascendente con los cuerpos descifrados.
// Un cuerpo ilegible se marca con DecryptFailed en lugar de fallar el listado.
func (s *MessageService) GetMessages(ctx context.Context, caller domain.Caller, conversationID string) ([]domain.Message, error) {
	conversation, err := s.Conversation(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	stored, err := s.messages.ListByConversationID(ctx, conversation.ID)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	out := make([]domain.Message, 0, len(stored))
	for _, msg := range stored {
		out = append(out, s.open(msg))
	}
	return out, nil
}

// GetMessage relee una fila completa a partir de una notificacion parcial.
func (s *MessageService) GetMessage(ctx context.Context, caller domain.Caller, messageID string) (domain.Message, error) {
	if !s.configured() {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}
	if caller.IsZero() {
		return domain.Message{}, ErrAuthRequired
	}
	msg, err := s.messages.GetByID(ctx, strings.TrimSpace(messageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	if err != nil {
		return domain.Message{}, storeErr("get message", err)
	}
	if _, err := s.Conversation(ctx, caller, msg.ConversationID); err != nil {
		return domain.Message{}, err
	}
	return s.open(msg), nil
}

// MarkRead fija read_at en los mensajes no leidos que el caller no escribio.
// Repetirla no modifica mensajes ya leidos.
func (s *MessageService) MarkRead(ctx context.Context, caller domain.Caller, conversationID string) (int64, error) {
	conversation, err := s.Conversation(ctx, caller, conversationID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkRead(ctx, conversation.ID, caller.UserID, s.now())
	if err != nil {
		return 0, storeErr("mark read", err)
	}
	return n, nil
}

// GetUnreadCount cuenta los mensajes no leidos de la conversacion del owner
// que no escribio el caller. Sin conversacion el conteo es cero.
func (s *MessageService) GetUnreadCount(ctx context.Context, caller domain.Caller, ownerID string) (int, error) {
	if !s.configured() {
		return 0, ErrMessageServiceNotConfigured
	}
	if caller.IsZero() {
		return 0, ErrAuthRequired
	}
	ownerID, err := resolveOwner(caller, ownerID)
	if err != nil {
		return 0, err
	}
	conversation, err := s.conversations.FindByOwner(ctx, ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr("find conversation", err)
	}
	return s.countUnread(ctx, conversation.ID, caller.UserID)
}

// CountUnread es la variante por id de conversacion usada por los controladores.
func (s *MessageService) CountUnread(ctx context.Context, caller domain.Caller, conversationID string) (int, error) {
	conversation, err := s.Conversation(ctx, caller, conversationID)
	if err != nil {
		return 0, err
	}
	return s.countUnread(ctx, conversation.ID, caller.UserID)
}

func (s *MessageService) countUnread(ctx context.Context, conversationID, readerID string) (int, error) {
	n, err := s.messages.CountUnread(ctx, conversationID, readerID)
	if err != nil {
		return 0, storeErr("count unread", err)
	}
	return n, nil
}

func (s *MessageService) loadConversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return domain.Conversation{}, ErrNotFound
	}
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, storeErr("get conversation", err)
	}
	return conversation, nil
}

// afterInsert actualiza la actividad y avisa al bus. El mensaje ya esta
// persistido, por eso los fallos aqui solo se registran.
func (s *MessageService) afterInsert(ctx context.Context, msg domain.Message) {
	if err := s.conversations.Touch(ctx, msg.ConversationID, msg.CreatedAt); err != nil {
		s.logger.Warn("touch conversation failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err),
		)
	}
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, realtime.Notification{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	}); err != nil {
		s.logger.Warn("publish message notification failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func (s *MessageService) open(msg domain.Message) domain.Message {
	if msg.IsSystem() {
		return msg
	}
	plain, err := s.codec.Decrypt(msg.Body, msg.ConversationID)
	if err != nil {
		s.logger.Warn("message decrypt failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		msg.Body = domain.UndecryptableBody
		msg.DecryptFailed = true
		return msg
	}
	msg.Body = plain
	return msg
}

func resolveOwner(caller domain.Caller, ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		if caller.IsStaff() {
			return "", ErrInvalidOwner
		}
		ownerID = caller.UserID
	}
	if !caller.IsStaff() && ownerID != caller.UserID {
		return "", ErrForbidden
	}
	return ownerID, nil
}

func authorize(caller domain.Caller, conversation domain.Conversation) error {
	if caller.IsStaff() || conversation.OwnerID == caller.UserID {
		return nil
	}
	return ErrForbidden
}
