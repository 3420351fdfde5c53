// Package memory provides an in-memory Node Store. It is intended for tests,
// examples and short-lived sessions; nothing is persisted.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/pkg/core"
)

// WriteHook is called before every write. A non-nil error aborts the write.
// op is one of "insert", "update" or "delete".
type WriteHook func(op string, n core.Node) error

// Repository implements core.Repository with a mutex-guarded map.
type Repository struct {
	mu    sync.RWMutex
	nodes map[string]core.Node
	hook  WriteHook
	now   func() time.Time
}

// Option configures the repository.
type Option func(*Repository)

// WithWriteHook installs a hook used to inject failures.
func WithWriteHook(h WriteHook) Option {
	return func(r *Repository) { r.hook = h }
}

// WithClock overrides the time source for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates an empty store.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{nodes: make(map[string]core.Node), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetWriteHook replaces the write hook at runtime.
func (r *Repository) SetWriteHook(h WriteHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

// Initialize implements core.Repository.
func (r *Repository) Initialize(ctx context.Context) error { return nil }

// Get implements core.Repository.
func (r *Repository) Get(ctx context.Context, owner, id string) (core.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	if !ok || n.Owner != owner {
		return core.Node{}, core.ErrNotFound
	}
	return n.Clone(), nil
}

// Find implements core.Repository.
func (r *Repository) Find(ctx context.Context, f core.Filter) ([]core.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Node
	for _, n := range r.nodes {
		if f.Match(n) {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

// Insert implements core.Repository.
func (r *Repository) Insert(ctx context.Context, n core.Node) (core.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := r.callHook("insert", n); err != nil {
		return core.Node{}, err
	}
	now := r.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	r.nodes[n.ID] = n.Clone()
	return n, nil
}

// Update implements core.Repository.
func (r *Repository) Update(ctx context.Context, n core.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.nodes[n.ID]
	if !ok || old.Owner != n.Owner {
		return core.ErrNotFound
	}
	if err := r.callHook("update", n); err != nil {
		return err
	}
	n.CreatedAt = old.CreatedAt
	n.UpdatedAt = r.now()
	r.nodes[n.ID] = n.Clone()
	return nil
}

// Delete implements core.Repository.
func (r *Repository) Delete(ctx context.Context, owner, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok || n.Owner != owner {
		return core.ErrNotFound
	}
	if err := r.callHook("delete", n); err != nil {
		return err
	}
	delete(r.nodes, id)
	return nil
}

// Len returns the number of stored nodes across all owners.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

func (r *Repository) callHook(op string, n core.Node) error {
	if r.hook == nil {
		return nil
	}
	return r.hook(op, n)
}

var _ core.Repository = (*Repository)(nil)
