package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"referral-chat/internal/domain"
	"referral-chat/internal/service"
)

// ChatHandler expone conversaciones, mensajes y la evaluacion por REST.
type ChatHandler struct {
	logger   *zap.Logger
	messages *service.MessageService
	engine   *service.AssessmentEngine
	triage   *service.TriageService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(
	logger *zap.Logger,
	messages *service.MessageService,
	engine *service.AssessmentEngine,
	triage *service.TriageService,
) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		logger:   logger,
		messages: messages,
		engine:   engine,
		triage:   triage,
	}
}

// OpenConversation maneja POST /conversations.
func (h *ChatHandler) OpenConversation(c *gin.Context) {
	var req struct {
		OwnerID string `json:"owner_id"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid open conversation request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	conversation, err := h.messages.GetOrCreateConversation(c.Request.Context(), GetCaller(c), req.OwnerID)
	if err != nil {
		writeError(c, h.logger, "open conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

// UnreadCount maneja GET /conversations/unread.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	n, err := h.messages.GetUnreadCount(c.Request.Context(), GetCaller(c), c.Query("owner_id"))
	if err != nil {
		writeError(c, h.logger, "unread count", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

// ListMessages maneja GET /conversations/:id/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	msgs, err := h.messages.GetMessages(c.Request.Context(), GetCaller(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage maneja POST /conversations/:id/messages. Un mensaje del owner
// tambien se ofrece al motor como respuesta a la evaluacion en curso.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()
	caller := GetCaller(c)
	msg, err := h.messages.SendMessage(ctx, caller, c.Param("id"), req.Body)
	if err != nil {
		writeError(c, h.logger, "post message", err)
		return
	}

	if h.engine != nil {
		conversation, err := h.messages.Conversation(ctx, caller, msg.ConversationID)
		if err == nil {
			err = h.engine.HandleInbound(ctx, conversation, msg)
		}
		if err != nil {
			h.logger.Warn("assessment routing failed",
				zap.String("conversation_id", msg.ConversationID),
				zap.Error(err),
			)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkRead maneja POST /conversations/:id/read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	updated, err := h.messages.MarkRead(c.Request.Context(), GetCaller(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "mark read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// StartAssessment maneja POST /conversations/:id/assessment.
func (h *ChatHandler) StartAssessment(c *gin.Context) {
	conversation, ok := h.authorizedConversation(c, "start assessment")
	if !ok {
		return
	}
	session, err := h.engine.Start(c.Request.Context(), conversation.ID)
	if err != nil {
		writeError(c, h.logger, "start assessment", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// GetAssessment maneja GET /conversations/:id/assessment.
func (h *ChatHandler) GetAssessment(c *gin.Context) {
	conversation, ok := h.authorizedConversation(c, "get assessment")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	session, err := h.engine.Session(ctx, conversation.ID)
	if err != nil {
		writeError(c, h.logger, "get assessment", err)
		return
	}

	resp := gin.H{"session": session}
	if session.State == domain.AssessmentCompleted {
		result, err := h.engine.Result(ctx, conversation.ID)
		switch {
		case err == nil:
			resp["result"] = result
		case !errors.Is(err, service.ErrNotFound):
			writeError(c, h.logger, "get assessment result", err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// AnswerAssessment maneja POST /conversations/:id/assessment/answer. La
// respuesta se publica como mensaje del estudiante, igual que en el chat.
func (h *ChatHandler) AnswerAssessment(c *gin.Context) {
	var req struct {
		Answer string `json:"answer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid answer request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	conversation, ok := h.authorizedConversation(c, "answer assessment")
	if !ok {
		return
	}
	caller := GetCaller(c)
	if caller.UserID != conversation.OwnerID {
		writeError(c, h.logger, "answer assessment", service.ErrForbidden)
		return
	}

	ctx := c.Request.Context()
	session, err := h.engine.Session(ctx, conversation.ID)
	if err != nil {
		writeError(c, h.logger, "answer assessment", err)
		return
	}
	if session.State != domain.AssessmentAwaitingAnswer {
		if session.Active() {
			writeError(c, h.logger, "answer assessment", service.ErrNotAwaitingAnswer)
		} else {
			writeError(c, h.logger, "answer assessment", service.ErrNoActiveAssessment)
		}
		return
	}

	msg, err := h.messages.SendMessage(ctx, caller, conversation.ID, req.Answer)
	if err != nil {
		writeError(c, h.logger, "answer assessment", err)
		return
	}
	if err := h.engine.SubmitAnswer(ctx, conversation.ID, msg.ID, msg.Body); err != nil {
		writeError(c, h.logger, "answer assessment", err)
		return
	}
	session, err = h.engine.Session(ctx, conversation.ID)
	if err != nil {
		writeError(c, h.logger, "answer assessment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "session": session})
}

// ResumeAssessment maneja POST /conversations/:id/assessment/resume.
func (h *ChatHandler) ResumeAssessment(c *gin.Context) {
	conversation, ok := h.authorizedConversation(c, "resume assessment")
	if !ok {
		return
	}
	session, err := h.engine.Resume(c.Request.Context(), conversation.ID)
	if err != nil {
		writeError(c, h.logger, "resume assessment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// ListTriage maneja GET /staff/conversations.
func (h *ChatHandler) ListTriage(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := h.triage.ListConversations(c.Request.Context(), GetCaller(c), limit)
	if err != nil {
		writeError(c, h.logger, "list triage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h *ChatHandler) authorizedConversation(c *gin.Context, op string) (domain.Conversation, bool) {
	if h.engine == nil {
		writeError(c, h.logger, op, service.ErrAssessmentNotConfigured)
		return domain.Conversation{}, false
	}
	conversation, err := h.messages.Conversation(c.Request.Context(), GetCaller(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, op, err)
		return domain.Conversation{}, false
	}
	return conversation, true
}
