package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"referral-chat/internal/codec"
	"referral-chat/internal/config"
	"referral-chat/internal/db"
	"referral-chat/internal/email"
	apihttp "referral-chat/internal/http"
	"referral-chat/internal/logging"
	"referral-chat/internal/realtime"
	"referral-chat/internal/repository"
	"referral-chat/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	chatCodec, err := codec.NewAESCodec(cfg.ChatSecret)
	if err != nil {
		logger.Fatal("codec init", zap.Error(err))
	}
	script, err := service.LoadAssessmentScript(cfg.AssessmentScriptPath)
	if err != nil {
		logger.Fatal("assessment script", zap.Error(err))
	}

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	bus, limiter := realtimeStack(cfg, redisClient, logger)

	api := buildAPI(cfg, logger, pool, chatCodec, script, bus, limiter)
	defer api.engine.Close()

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("script_version", script.Version()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}

type apiDeps struct {
	router http.Handler
	engine *service.AssessmentEngine
}

func buildAPI(
	cfg *config.Config,
	logger *zap.Logger,
	pool *pgxpool.Pool,
	chatCodec *codec.AESCodec,
	script *service.AssessmentScript,
	bus realtime.Bus,
	limiter service.SendRateLimiter,
) apiDeps {
	conversationRepo := repository.NewPgConversationRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)
	assessmentRepo := repository.NewPgAssessmentRepository(pool)

	hub := service.NewEventHub()
	messageSvc := service.NewMessageService(logger, conversationRepo, messageRepo, chatCodec, bus, limiter)
	engine := service.NewAssessmentEngine(logger, script, assessmentRepo, conversationRepo, messageSvc, hub, cfg.AssessmentPacing())
	engine.SetAlertSender(alertSender(cfg, logger), cfg.StaffAlertEmail)
	triageSvc := service.NewTriageService(logger, conversationRepo, messageRepo)

	jwtSvc := service.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL())
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	chatHandler := apihttp.NewChatHandler(logger, messageSvc, engine, triageSvc)
	streamHandler := apihttp.NewStreamHandler(logger, messageSvc, engine, bus, hub, cfg.WSAllowedOrigins)
	return apiDeps{
		router: apihttp.NewRouter(logger, jwtSvc, chatHandler, streamHandler),
		engine: engine,
	}
}

func alertSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	if cfg.SMTPHost == "" || cfg.StaffAlertEmail == "" {
		return email.NewDisabledSender("email sender not configured")
	}
	sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
	if err != nil {
		logger.Warn("smtp sender init failed", zap.Error(err))
		return email.NewDisabledSender(err.Error())
	}
	return sender
}

// connectRedis devuelve nil si Redis no esta configurado o no responde.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		logger.Warn("redis ping failed", zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}

func realtimeStack(cfg *config.Config, client *redis.Client, logger *zap.Logger) (realtime.Bus, service.SendRateLimiter) {
	if client == nil {
		logger.Info("using in-process realtime bus")
		return realtime.NewMemoryBus(), service.NewSendRateLimiter(cfg.SendRateWindow(), cfg.SendRateMax)
	}
	return realtime.NewRedisBus(client, logger),
		service.NewRedisSendRateLimiter(client, logger, cfg.SendRateWindow(), cfg.SendRateMax)
}
