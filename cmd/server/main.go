package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chattrix/internal/config"
	"chattrix/internal/domain"
	"chattrix/internal/httpserver"
	"chattrix/internal/push"
	"chattrix/internal/realtime"
	"chattrix/internal/security"
	"chattrix/internal/store/postgres"
	"chattrix/internal/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Env == "development" {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	var (
		users         domain.UserRepository
		messages      domain.MessageRepository
		conversations domain.ConversationRepository
		subscriptions domain.SubscriptionRepository
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		users = postgres.NewUserRepo(db)
		messages = postgres.NewMessageRepo(db)
		conversations = postgres.NewConversationRepo(db)
		subscriptions = postgres.NewSubscriptionRepo(db)
		log.Info("using postgres store")
	} else {
		db, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := sqlite.Migrate(db); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		users = sqlite.NewUserRepo(db)
		messages = sqlite.NewMessageRepo(db)
		conversations = sqlite.NewConversationRepo(db)
		subscriptions = sqlite.NewSubscriptionRepo(db)
		log.Info("using sqlite store", "path", cfg.DatabasePath)
	}

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	// Realtime engine
	var pushSender push.Sender = push.NoopSender{}
	if cfg.PushEnabled() {
		pushSender = push.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
		log.Info("web push enabled", "subject", cfg.VAPIDSubject)
	} else {
		log.Warn("VAPID keys not configured, web push disabled")
	}

	registry := realtime.NewConnectionRegistry()
	rooms := realtime.NewRoomManager(registry, log)
	locations := realtime.NewLocationTracker()
	notifier := realtime.NewNotificationDispatcher(
		rooms, subscriptions, pushSender, cfg.PushWorkers, cfg.PushQueueSize, log)
	rtRouter := realtime.NewRouter(
		registry, rooms, locations, notifier, users, messages, conversations, log)

	handler := httpserver.NewRouter(cfg, httpserver.Deps{
		Users:         users,
		Messages:      messages,
		Conversations: conversations,
		Subscriptions: subscriptions,
		Registry:      registry,
		Router:        rtRouter,
		Tokens:        tokenSvc,
		Hasher:        passwordHasher,
		Log:           log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", cfg.HTTPAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	notifier.Close()
}
