package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when no predictor is registered for a task kind.
var ErrUnknownKind = errors.New("no predictor registered for task kind")

// Predictor computes the result of one task. Implementations must be safe
// for concurrent use and must honour ctx cancellation.
type Predictor interface {
	Predict(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Predict implements Predictor.
func (f PredictorFunc) Predict(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return f(ctx, input)
}

// Registry maps task kinds to predictors.
type Registry struct {
	mu         sync.RWMutex
	predictors map[string]Predictor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{predictors: make(map[string]Predictor)}
}

// Register binds kind to p, replacing any previous binding.
func (r *Registry) Register(kind string, p Predictor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictors[kind] = p
}

// Lookup returns the predictor for kind.
func (r *Registry) Lookup(kind string) (Predictor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predictors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return p, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.predictors))
	for k := range r.predictors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
