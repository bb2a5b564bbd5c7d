package mocks

import (
	"context"
	"sync"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
)

// MemoryDB is an in-memory datastore backing MemoryUserStore,
// MemoryLedgerStore and MemoryTaskStore.
type MemoryDB struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state memoryState

	Users  *MemoryUserStore
	Ledger *MemoryLedgerStore
	Tasks  *MemoryTaskStore

	// InTxFn overrides InTx when set.
	InTxFn func(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error
}

type memoryState struct {
	nextUserID   int64
	users        map[int64]*domain.User
	accounts     map[int64]*domain.Account
	transactions []*domain.Transaction
	tasks        map[uuid.UUID]*domain.Task
	taskOrder    []uuid.UUID
}

// NewMemoryDB returns an empty datastore.
func NewMemoryDB() *MemoryDB {
	db := &MemoryDB{
		state: memoryState{
			users:    make(map[int64]*domain.User),
			accounts: make(map[int64]*domain.Account),
			tasks:    make(map[uuid.UUID]*domain.Task),
		},
	}
	db.Users = &MemoryUserStore{db: db}
	db.Ledger = &MemoryLedgerStore{db: db}
	db.Tasks = &MemoryTaskStore{db: db}
	return db
}

var _ store.Transactor = (*MemoryDB)(nil)

// Stores returns the stores backed by this datastore.
func (db *MemoryDB) Stores() store.Stores {
	return store.Stores{Users: db.Users, Ledger: db.Ledger, Tasks: db.Tasks}
}

// InTx implements store.Transactor. Transactions are serialized; a failed
// function leaves the data exactly as it was before the call.
func (db *MemoryDB) InTx(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	if db.InTxFn != nil {
		return db.InTxFn(ctx, fn)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snapshot := db.state.clone()
	db.mu.Unlock()

	if err := fn(ctx, db.Stores()); err != nil {
		db.mu.Lock()
		db.state = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		nextUserID:   s.nextUserID,
		users:        make(map[int64]*domain.User, len(s.users)),
		accounts:     make(map[int64]*domain.Account, len(s.accounts)),
		transactions: make([]*domain.Transaction, len(s.transactions)),
		tasks:        make(map[uuid.UUID]*domain.Task, len(s.tasks)),
		taskOrder:    append([]uuid.UUID(nil), s.taskOrder...),
	}
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range s.accounts {
		a := *v
		c.accounts[k] = &a
	}
	copy(c.transactions, s.transactions)
	for k, v := range s.tasks {
		t := *v
		c.tasks[k] = &t
	}
	return c
}
