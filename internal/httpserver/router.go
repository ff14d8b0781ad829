package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"chattrix/internal/config"
	"chattrix/internal/domain"
	"chattrix/internal/realtime"
	"chattrix/internal/security"
	"chattrix/internal/service"
	"chattrix/internal/ws"
)

// Deps bundles everything the router wires together. Repositories arrive as
// interfaces so the sqlite and postgres stores are interchangeable here.
type Deps struct {
	Users         domain.UserRepository
	Messages      domain.MessageRepository
	Conversations domain.ConversationRepository
	Subscriptions domain.SubscriptionRepository

	Registry *realtime.ConnectionRegistry
	Router   *realtime.Router

	Tokens *security.TokenService
	Hasher *security.PasswordHasher

	Log *slog.Logger
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	authSvc := service.NewAuthService(d.Users, d.Tokens, d.Hasher)
	chatSvc := service.NewChatService(d.Users, d.Messages, d.Conversations, cfg.HistoryLimit)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName + " API",
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
		})

		// Push key is public so the frontend can subscribe before login completes
		r.Get("/push/vapid-key", handleVAPIDKey(cfg.VAPIDPublicKey))

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Tokens, d.Users, d.Log))

			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(d.Users))
				r.Get("/online", handleListOnlineUsers(d.Registry))
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", handlePublicHistory(chatSvc))
				r.Get("/pinned", handlePinnedMessages(chatSvc))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(chatSvc))
				r.Get("/{userID}/messages", handlePrivateHistory(chatSvc))
			})

			r.Post("/push/subscriptions", handleCreateSubscription(d.Subscriptions))
		})
	})

	// WebSocket endpoint
	r.Get("/ws", ws.MakeHandler(d.Router, d.Tokens, d.Users, cfg.CORSOrigins, d.Log))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
