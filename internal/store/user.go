package store

import (
	"context"
	"database/sql"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
)

// UserStore defines the interface for user data persistence.
type UserStore interface {
	// Create saves a new user and assigns user.ID.
	// Returns ErrEmailExists if the email is already taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by id. Returns ErrUserNotFound if absent.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by email. Returns ErrUserNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// SetTelegramChat links (or with nil, unlinks) a Telegram chat for result push.
	SetTelegramChat(ctx context.Context, id int64, chatID *int64) error

	// WithTx returns a UserStore that runs on the given transaction.
	WithTx(tx *sql.Tx) UserStore
}
