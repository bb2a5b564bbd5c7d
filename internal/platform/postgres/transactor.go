package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
)

// Transactor implements store.Transactor on a *sql.DB.
type Transactor struct {
	db     *sql.DB
	users  *PostgresUserStore
	ledger *PostgresLedgerStore
	tasks  *PostgresTaskStore
}

// NewTransactor builds a Transactor whose stores log through logger.
func NewTransactor(db *sql.DB, logger *slog.Logger) *Transactor {
	return &Transactor{
		db:     db,
		users:  NewPostgresUserStore(db, logger),
		ledger: NewPostgresLedgerStore(db, logger),
		tasks:  NewPostgresTaskStore(db, logger),
	}
}

var _ store.Transactor = (*Transactor)(nil)

// InTx implements store.Transactor.InTx
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.Stores{
			Users:  t.users.WithTx(tx),
			Ledger: t.ledger.WithTx(tx),
			Tasks:  t.tasks.WithTx(tx),
		})
	})
}

// Stores returns the non-transactional stores sharing the Transactor's pool.
func (t *Transactor) Stores() store.Stores {
	return store.Stores{Users: t.users, Ledger: t.ledger, Tasks: t.tasks}
}
