package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"referral-chat/internal/domain"
	"referral-chat/internal/realtime"
	"referral-chat/internal/service"
)

const (
	streamReadTimeout  = 60 * time.Second
	streamPingInterval = 54 * time.Second
	streamWriteTimeout = 10 * time.Second
	streamQueueSize    = 64
)

// Tipos de frame que envia el cliente.
const (
	frameOpen            = "open"
	frameSend            = "send"
	frameMinimize        = "minimize"
	frameRestore         = "restore"
	frameStartAssessment = "start_assessment"
	frameResume          = "resume_assessment"
	frameClose           = "close"
)

// StreamHandler sirve la superficie de chat en vivo sobre websocket. Cada
// conexion tiene su propio SessionController.
type StreamHandler struct {
	logger   *zap.Logger
	messages *service.MessageService
	engine   *service.AssessmentEngine
	bus      realtime.Bus
	hub      *service.EventHub
	upgrader websocket.Upgrader
}

func NewStreamHandler(
	logger *zap.Logger,
	messages *service.MessageService,
	engine *service.AssessmentEngine,
	bus realtime.Bus,
	hub *service.EventHub,
	allowedOrigins []string,
) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		logger:   logger,
		messages: messages,
		engine:   engine,
		bus:      bus,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// originChecker acepta cualquier origen si la lista esta vacia.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

type clientFrame struct {
	Type      string `json:"type"`
	OwnerID   string `json:"owner_id,omitempty"`
	Body      string `json:"body,omitempty"`
	Minimized bool   `json:"minimized,omitempty"`
}

type serverFrame struct {
	Type         string                    `json:"type"`
	Conversation *domain.Conversation      `json:"conversation,omitempty"`
	Message      *domain.Message           `json:"message,omitempty"`
	Messages     []domain.Message          `json:"messages,omitempty"`
	Unread       *int                      `json:"unread,omitempty"`
	Assessment   *service.AssessmentNotice `json:"assessment,omitempty"`
	Session      *domain.AssessmentSession `json:"session,omitempty"`
	State        *service.SurfaceState     `json:"state,omitempty"`
	Error        string                    `json:"error,omitempty"`
	Timestamp    int64                     `json:"timestamp"`
}

// streamSink encola frames para el writer de la conexion. Nunca bloquea mas
// alla del cierre de la conexion.
type streamSink struct {
	ctx    context.Context
	out    chan<- serverFrame
	logger *zap.Logger
}

func (s *streamSink) push(f serverFrame) {
	f.Timestamp = time.Now().UnixMilli()
	select {
	case s.out <- f:
	case <-s.ctx.Done():
	}
}

func (s *streamSink) OnHistory(conversation domain.Conversation, history []domain.Message) {
	s.push(serverFrame{Type: "history", Conversation: &conversation, Messages: history})
}

func (s *streamSink) OnMessage(msg domain.Message) {
	s.push(serverFrame{Type: "message", Message: &msg})
}

func (s *streamSink) OnUnread(count int) {
	s.push(serverFrame{Type: "unread", Unread: &count})
}

func (s *streamSink) OnAssessmentEvent(n service.AssessmentNotice) {
	s.push(serverFrame{Type: "assessment", Assessment: &n})
}

func (s *streamSink) OnTransportError(err error) {
	s.logger.Warn("realtime subscription lost", zap.Error(err))
	s.push(serverFrame{Type: "error", Error: "realtime connection lost"})
}

// Serve maneja GET /ws.
func (h *StreamHandler) Serve(c *gin.Context) {
	if h.messages == nil || h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service not configured"})
		return
	}
	caller := GetCaller(c)
	if caller.IsZero() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("user_id", caller.UserID))
	logger.Info("stream connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	out := make(chan serverFrame, streamQueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, conn, out, logger)
	}()
	defer wg.Wait()
	defer cancel()

	sink := &streamSink{ctx: ctx, out: out, logger: logger}
	controller := service.NewSessionController(logger, caller, h.messages, h.engine, h.bus, h.hub, sink)
	defer controller.Close()

	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	})

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				sink.push(serverFrame{Type: "error", Error: "invalid frame"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("stream read failed", zap.Error(err))
			}
			logger.Info("stream disconnected")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		h.handleFrame(ctx, controller, sink, frame)
	}
}

func (h *StreamHandler) handleFrame(ctx context.Context, controller *service.SessionController, sink *streamSink, frame clientFrame) {
	var err error
	switch frame.Type {
	case frameOpen:
		// El frame "history" lo emite el propio Open via OnHistory.
		if _, err = controller.Open(ctx, frame.OwnerID, frame.Minimized); err == nil {
			h.pushState(controller, sink)
		}
	case frameSend:
		_, err = controller.Send(ctx, frame.Body)
	case frameMinimize:
		if err = controller.Minimize(ctx); err == nil {
			h.pushState(controller, sink)
		}
	case frameRestore:
		if err = controller.Restore(ctx); err == nil {
			h.pushState(controller, sink)
		}
	case frameStartAssessment:
		var session domain.AssessmentSession
		if session, err = controller.StartAssessment(ctx); err == nil {
			sink.push(serverFrame{Type: "session", Session: &session})
		}
	case frameResume:
		var session domain.AssessmentSession
		if session, err = controller.ResumeAssessment(ctx); err == nil {
			sink.push(serverFrame{Type: "session", Session: &session})
		}
	case frameClose:
		controller.Close()
		h.pushState(controller, sink)
	default:
		sink.push(serverFrame{Type: "error", Error: "unsupported frame type: " + frame.Type})
		return
	}
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("stream frame failed", zap.String("frame", frame.Type), zap.Error(err))
		}
		sink.push(serverFrame{Type: "error", Error: msg})
	}
}

func (h *StreamHandler) pushState(controller *service.SessionController, sink *streamSink) {
	state := controller.State()
	sink.push(serverFrame{Type: "state", State: &state})
}

// writeLoop es el unico goroutine que escribe en conn.
func (h *StreamHandler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan serverFrame, logger *zap.Logger) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteTimeout))
			return
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				logger.Warn("stream write failed", zap.Error(err))
				// Desbloquea al lector para que la conexion termine.
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
