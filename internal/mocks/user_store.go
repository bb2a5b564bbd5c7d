package mocks

import (
	"context"
	"database/sql"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
)

// MemoryUserStore implements store.UserStore in memory.
type MemoryUserStore struct {
	db *MemoryDB

	CreateFn func(ctx context.Context, user *domain.User) error
}

var _ store.UserStore = (*MemoryUserStore)(nil)

// Create implements store.UserStore.
func (m *MemoryUserStore) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, user)
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	for _, u := range m.db.state.users {
		if u.Email == user.Email {
			return store.ErrEmailExists
		}
	}
	m.db.state.nextUserID++
	user.ID = m.db.state.nextUserID
	stored := *user
	stored.Password = ""
	m.db.state.users[user.ID] = &stored
	return nil
}

// GetByID implements store.UserStore.
func (m *MemoryUserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.state.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// GetByEmail implements store.UserStore.
func (m *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.state.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrUserNotFound
}

// SetTelegramChat implements store.UserStore.
func (m *MemoryUserStore) SetTelegramChat(ctx context.Context, id int64, chatID *int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.state.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	if chatID == nil {
		u.TelegramChatID = nil
	} else {
		v := *chatID
		u.TelegramChatID = &v
	}
	return nil
}

// WithTx implements store.UserStore.
func (m *MemoryUserStore) WithTx(*sql.Tx) store.UserStore { return m }
