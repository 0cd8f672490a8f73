package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/notifyhub/step-engine/internal/domain"
)

// Handler carries out one step type once the dispatcher has decided the
// step should run. Channel senders, digest and delay all implement it.
type Handler interface {
	Execute(ctx context.Context, job *domain.Job) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

func (f HandlerFunc) Execute(ctx context.Context, job *domain.Job) error { return f(ctx, job) }

// Registry maps step types to handlers. Adding a step type is one Register
// call; the decision logic never changes. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.StepType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.StepType]Handler)}
}

// Register panics if t already has a handler.
func (r *Registry) Register(t domain.StepType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		panic(fmt.Sprintf("handler already registered for step type: %s", t))
	}
	r.handlers[t] = h
}

func (r *Registry) Lookup(t domain.StepType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered step types in lexical order.
func (r *Registry) Types() []domain.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.StepType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
