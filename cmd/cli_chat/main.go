package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"referral-chat/internal/codec"
	"referral-chat/internal/config"
	"referral-chat/internal/db"
	"referral-chat/internal/domain"
	"referral-chat/internal/logging"
	"referral-chat/internal/realtime"
	"referral-chat/internal/repository"
	"referral-chat/internal/service"
)

const devChatSecret = "cli-dev-secret"

type options struct {
	memory   bool
	userID   string
	staff    bool
	ownerID  string
	pacing   time.Duration
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "cli_chat",
		Short: "Interactive terminal client for the referral chat",
		Long: `Opens a conversation as a student or staff member and relays lines typed
on stdin. Commands inside the chat:

  /assess   start the case assessment
  /resume   resume a stalled assessment
  /min      minimize the surface
  /restore  restore the surface
  /quit     leave`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "use in-memory storage instead of Postgres")
	cmd.Flags().StringVar(&opts.userID, "user", "cli-student", "user id of the caller")
	cmd.Flags().BoolVar(&opts.staff, "staff", false, "act as a staff member")
	cmd.Flags().StringVar(&opts.ownerID, "owner", "", "student whose conversation staff opens")
	cmd.Flags().DurationVar(&opts.pacing, "pacing", 0, "delay between assessment questions")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	return cmd
}

type stack struct {
	messages *service.MessageService
	engine   *service.AssessmentEngine
	bus      realtime.Bus
	hub      *service.EventHub
	close    func()
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_ = godotenv.Load()

	logger, err := logging.New(opts.logLevel, "")
	if err != nil {
		return err
	}
	defer logger.Sync()

	var st stack
	if opts.memory {
		st, err = memoryStack(logger, opts)
	} else {
		st, err = postgresStack(ctx, logger, opts)
	}
	if err != nil {
		return err
	}
	defer st.close()

	caller := domain.Caller{UserID: opts.userID, Role: domain.RoleStudent}
	if opts.staff {
		caller.Role = domain.RoleStaff
	}
	sink := &printSink{out: out}
	controller := service.NewSessionController(logger, caller, st.messages, st.engine, st.bus, st.hub, sink)
	defer controller.Close()

	if _, err := controller.Open(ctx, opts.ownerID, false); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handleLine(ctx, controller, sink, line); err != nil {
			if err == io.EOF {
				return nil
			}
			sink.printf("error: %v\n", err)
		}
	}
	return scanner.Err()
}

func handleLine(ctx context.Context, controller *service.SessionController, sink *printSink, line string) error {
	switch line {
	case "/quit":
		return io.EOF
	case "/assess":
		_, err := controller.StartAssessment(ctx)
		return err
	case "/resume":
		session, err := controller.ResumeAssessment(ctx)
		if err == nil {
			sink.printf("assessment %s at question %d\n", session.State, session.Cursor+1)
		}
		return err
	case "/min":
		return controller.Minimize(ctx)
	case "/restore":
		return controller.Restore(ctx)
	default:
		// El propio mensaje se imprime via OnMessage.
		_, err := controller.Send(ctx, line)
		return err
	}
}

func memoryStack(logger *zap.Logger, opts options) (stack, error) {
	secret := os.Getenv("CHAT_SECRET")
	if secret == "" {
		secret = devChatSecret
	}
	c, err := codec.NewAESCodec(secret)
	if err != nil {
		return stack{}, err
	}
	script, err := service.LoadAssessmentScript(os.Getenv("ASSESSMENT_SCRIPT_PATH"))
	if err != nil {
		return stack{}, err
	}

	conversations := repository.NewMemoryConversationRepository()
	bus := realtime.NewMemoryBus()
	hub := service.NewEventHub()
	messages := service.NewMessageService(logger, conversations, repository.NewMemoryMessageRepository(), c, bus, nil)
	engine := service.NewAssessmentEngine(logger, script, repository.NewMemoryAssessmentRepository(), conversations, messages, hub, opts.pacing)
	return stack{messages: messages, engine: engine, bus: bus, hub: hub, close: engine.Close}, nil
}

func postgresStack(ctx context.Context, logger *zap.Logger, opts options) (stack, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return stack{}, err
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return stack{}, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return stack{}, err
	}
	c, err := codec.NewAESCodec(cfg.ChatSecret)
	if err != nil {
		pool.Close()
		return stack{}, err
	}
	script, err := service.LoadAssessmentScript(cfg.AssessmentScriptPath)
	if err != nil {
		pool.Close()
		return stack{}, err
	}

	conversations := repository.NewPgConversationRepository(pool)
	// Sin Redis el bus solo ve los mensajes de este proceso.
	bus := realtime.NewMemoryBus()
	hub := service.NewEventHub()
	messages := service.NewMessageService(logger, conversations, repository.NewPgMessageRepository(pool), c, bus, nil)
	engine := service.NewAssessmentEngine(logger, script, repository.NewPgAssessmentRepository(pool), conversations, messages, hub, opts.pacing)
	return stack{
		messages: messages,
		engine:   engine,
		bus:      bus,
		hub:      hub,
		close: func() {
			engine.Close()
			pool.Close()
		},
	}, nil
}

// printSink escribe la superficie en la terminal.
type printSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *printSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *printSink) OnHistory(conversation domain.Conversation, history []domain.Message) {
	s.printf("conversation %s (owner %s)\n", conversation.ID, conversation.OwnerID)
	for _, msg := range history {
		s.OnMessage(msg)
	}
}

func (s *printSink) OnMessage(msg domain.Message) {
	who := msg.Sender()
	if who == "" {
		who = "system"
	}
	s.printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), who, msg.Body)
}

func (s *printSink) OnUnread(count int) {
	if count > 0 {
		s.printf("(%d unread)\n", count)
	}
}

func (s *printSink) OnAssessmentEvent(n service.AssessmentNotice) {
	if n.Kind != service.NoticeAssessmentCompleted || n.Result == nil {
		return
	}
	s.printf("assessment completed: severity %s (%s)\n", n.Result.Severity, n.Result.Color)
}

func (s *printSink) OnTransportError(err error) {
	s.printf("realtime connection lost: %v\n", err)
}
