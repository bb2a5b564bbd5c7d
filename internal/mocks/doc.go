// Package mocks provides in-memory implementations of the store, queue and
// predictor interfaces for unit tests.
//
// The stores share a MemoryDB that also implements store.Transactor: a
// transaction snapshots the data and restores it when the function fails, so
// services see the same all-or-nothing behaviour as with PostgreSQL. Function
// fields (CreateFn, DebitFn, ...) override single methods to inject failures.
//
//	db := mocks.NewMemoryDB()
//	db.Tasks.CompleteFn = func(ctx context.Context, id uuid.UUID, r json.RawMessage, w string) (*domain.Task, error) {
//	    return nil, errors.New("datastore down")
//	}
package mocks
