package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DimeNiceTry/EmotionClassifier/internal/api"
	"github.com/DimeNiceTry/EmotionClassifier/internal/api/middleware"
	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/broker"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/postgres"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/DimeNiceTry/EmotionClassifier/internal/service"
	"github.com/DimeNiceTry/EmotionClassifier/internal/service/auth"
	"github.com/DimeNiceTry/EmotionClassifier/internal/service/dispatch"
	"github.com/DimeNiceTry/EmotionClassifier/internal/task"
	"github.com/shopspring/decimal"
)

// application holds the server's dependencies so they can be closed in
// order on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	broker  queue.Broker
	router  http.Handler
	sweeper *dispatch.Sweeper
}

func newApplication(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (*application, error) {
	cost, err := predictionCost(cfg.Billing)
	if err != nil {
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	b, err := broker.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue broker: %w", err)
	}

	tx := postgres.NewTransactor(db, log)
	stores := tx.Stores()
	hasher := auth.NewBcrypt(cfg.Auth.BCryptCost)

	users := service.NewUserService(stores.Users, tx, hasher, hasher, log)
	ledger := service.NewLedgerService(stores.Ledger, tx, log)
	dispatcher := dispatch.New(tx, stores.Ledger, stores.Tasks, b, dispatch.Config{
		TaskQueue:      cfg.Queue.TaskQueue,
		PublishTimeout: cfg.Queue.PublishTimeout,
		ValidateInput:  task.ValidateInput,
	}, log)

	router := api.NewRouter(api.RouterConfig{
		Auth:           api.NewAuthHandler(users, jwtService, cfg.Auth, log),
		Predictions:    api.NewPredictionHandler(dispatcher, cost, log),
		Users:          api.NewUserHandler(users, ledger, log),
		AuthMW:         middleware.NewAuthMiddleware(jwtService),
		HealthCheck:    healthCheck(db.PingContext, b),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         log,
	})

	app := &application{
		config: cfg,
		logger: log,
		db:     db,
		broker: b,
		router: router,
	}
	if cfg.Sweep.Enabled {
		app.sweeper = dispatch.NewSweeper(dispatcher, dispatch.SweepConfig{
			Interval:    cfg.Sweep.Interval,
			ExpireAfter: cfg.Sweep.ExpireAfter,
			BatchSize:   cfg.Sweep.BatchSize,
		}, log)
	}
	return app, nil
}

// healthCheck pings the database and, when the broker supports it, the
// broker.
func healthCheck(pingDB func(context.Context) error, b queue.Broker) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pingDB(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if p, ok := b.(queue.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("broker: %w", err)
			}
		}
		return nil
	}
}

// predictionCost parses the configured per-prediction price.
func predictionCost(cfg config.BillingConfig) (decimal.Decimal, error) {
	cost, err := decimal.NewFromString(cfg.PredictionCost)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid billing.prediction_cost %q: %w", cfg.PredictionCost, err)
	}
	if cost.IsNegative() {
		return decimal.Zero, fmt.Errorf("billing.prediction_cost cannot be negative, got %s", cost)
	}
	return cost, nil
}

// cleanup releases resources the application opened. The database is owned
// by the caller.
func (app *application) cleanup() {
	if app.broker != nil {
		if err := app.broker.Close(); err != nil {
			app.logger.Error("failed to close broker", slog.String("error", err.Error()))
		}
	}
}
