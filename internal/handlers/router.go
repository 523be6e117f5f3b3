package handlers

import (
	"net/http"
	"time"

	"devlink-backend/internal/middleware"
	"devlink-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services are the dependencies the HTTP surface is built from
type Services struct {
	Users       *services.UserService
	Connections *services.ConnectionService
	Chat        *services.ChatService
	Payments    *services.PaymentService
	Hub         *services.WSHub
}

// NewRouter builds the HTTP router
func NewRouter(svc Services, allowedOrigins []string) http.Handler {
	connectionHandler := NewConnectionHandler(svc.Connections, svc.Users)
	userHandler := NewUserHandler(svc.Connections)
	chatHandler := NewChatHandler(svc.Chat)
	paymentHandler := NewPaymentHandler(svc.Payments)
	wsHandler := NewWebSocketHandler(svc.Hub, svc.Users, svc.Chat, allowedOrigins)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/payment/webhook", paymentHandler.Webhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(svc.Users))
			r.Use(chiMiddleware.Timeout(30 * time.Second))

			r.Post("/request/send/{status}/{toUserId}", connectionHandler.SendRequest)
			r.Post("/request/review/{status}/{requestId}", connectionHandler.ReviewRequest)

			r.Get("/user/requests/received", userHandler.ReceivedRequests)
			r.Get("/user/connections", userHandler.Connections)

			r.Get("/chat/{targetUserId}", chatHandler.GetThread)
			r.Post("/chat/{targetUserId}/messages", chatHandler.SendMessage)

			r.Post("/payment/create", paymentHandler.CreatePayment)
			r.Get("/premium/verify", paymentHandler.VerifyPremium)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS. An empty allow list allows any origin.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
