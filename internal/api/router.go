package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/api/middleware"
	"github.com/DimeNiceTry/EmotionClassifier/internal/api/shared"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RouterConfig holds everything the router needs.
type RouterConfig struct {
	Auth        *AuthHandler
	Predictions *PredictionHandler
	Users       *UserHandler
	AuthMW      *middleware.AuthMiddleware

	// HealthCheck reports whether dependencies are reachable. Nil means the
	// process is healthy whenever it can answer.
	HealthCheck func(ctx context.Context) error

	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP handler with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewTraceMiddleware(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders:   []string{middleware.TraceHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Post("/auth/register", cfg.Auth.Register)
	r.Post("/auth/login", cfg.Auth.Login)
	r.Post("/auth/refresh", cfg.Auth.RefreshToken)

	r.Group(func(r chi.Router) {
		r.Use(cfg.AuthMW.Authenticate)

		r.Post("/predictions/predict", cfg.Predictions.Predict)
		r.Get("/predictions/history", cfg.Predictions.History)
		r.Get("/predictions/{id}", cfg.Predictions.GetPrediction)

		r.Get("/users/me", cfg.Users.Me)
		r.Get("/users/balance", cfg.Users.Balance)
		r.Post("/users/balance/topup", cfg.Users.TopUp)
		r.Get("/users/transactions", cfg.Users.Transactions)
		r.Put("/users/telegram", cfg.Users.LinkTelegram)
	})

	r.Get("/health", healthHandler(cfg.HealthCheck))

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "unhealthy", err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
