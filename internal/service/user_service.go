package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/service/auth"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
)

// UserService provides registration, authentication and profile updates.
type UserService interface {
	// Register creates the user together with a zero-balance account.
	Register(ctx context.Context, email, password string) (*domain.User, error)

	// Authenticate returns the user when the password matches.
	// Returns ErrInvalidCredentials otherwise.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)

	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// LinkTelegram sets (or with nil, clears) the chat that receives results.
	LinkTelegram(ctx context.Context, userID int64, chatID *int64) error
}

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	users    store.UserStore
	tx       store.Transactor
	hasher   auth.PasswordHasher
	verifier auth.PasswordVerifier
	logger   *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(
	users store.UserStore,
	tx store.Transactor,
	hasher auth.PasswordHasher,
	verifier auth.PasswordVerifier,
	logger *slog.Logger,
) *UserServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserServiceImpl{
		users:    users,
		tx:       tx,
		hasher:   hasher,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

var _ UserService = (*UserServiceImpl)(nil)

// Register validates the credentials, hashes the password and creates the
// user and its account in one transaction.
func (s *UserServiceImpl) Register(ctx context.Context, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := domain.NewUser(email, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		log.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, NewServiceError("user", "register", "failed to hash password", err)
	}
	user.HashedPassword = hashed
	user.Password = ""

	err = s.tx.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		if err := st.Users.Create(ctx, user); err != nil {
			return err
		}
		_, err := st.Ledger.CreateAccount(ctx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			log.Debug("attempted to register existing email", slog.String("email", user.Email))
		} else {
			log.Error("failed to register user",
				slog.String("error", err.Error()),
				slog.String("email", user.Email))
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	log.Info("user registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate implements UserService.
func (s *UserServiceImpl) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Debug("password mismatch",
			slog.Int64("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser implements UserService.
func (s *UserServiceImpl) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return user, nil
}

// LinkTelegram implements UserService.
func (s *UserServiceImpl) LinkTelegram(ctx context.Context, userID int64, chatID *int64) error {
	if chatID != nil && *chatID == 0 {
		return fmt.Errorf("%w: chat id cannot be zero", domain.ErrValidation)
	}
	if err := s.users.SetTelegramChat(ctx, userID, chatID); err != nil {
		return fmt.Errorf("failed to link telegram chat: %w", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("telegram chat updated",
		slog.Int64("user_id", userID),
		slog.Bool("linked", chatID != nil))
	return nil
}
