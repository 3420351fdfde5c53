// Package ancestry reveals a deep node by loading its ancestor chain and the
// children of every ancestor, so a lazily loaded tree can be expanded down to it.
package ancestry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor/pkg/core"
)

// Store is the remote side the resolver fetches from.
type Store interface {
	Get(ctx context.Context, id string) (core.Node, error)
	Children(ctx context.Context, parentID string) ([]core.Node, error)
}

// Cache is the local state the resolver reads and fills.
type Cache interface {
	Lookup(id string) (core.Node, bool)
	LookupTrash(id string) (core.Node, bool)
	Remember(n core.Node)
	IsLoaded(id string) bool
	MarkLoaded(parentID string, children []core.Node)
}

// Result describes a resolved path.
type Result struct {
	// Chain lists ancestor IDs from the root down to the direct parent.
	Chain []string
	// Loaded lists the ancestors whose children were fetched by this call.
	Loaded []string
	// Broken is set when the parent links loop back on themselves.
	Broken bool
	// Detached is set when the chain does not reach the root through active
	// ancestors. A detached trashed node is shown under the flat trash root.
	Detached bool
}

// Resolver walks parent links upward.
type Resolver struct {
	store       Store
	cache       Cache
	logger      *slog.Logger
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for broken chain warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConcurrency bounds the number of parallel child fetches.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New creates a Resolver.
func New(store Store, cache Cache, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		cache:       cache,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve collects the ancestors of target and loads the children of each one
// not loaded yet. A cycle is reported through Result.Broken, not as an error.
func (r *Resolver) Resolve(ctx context.Context, target core.Node) (Result, error) {
	var res Result
	inTrash := target.Trashed()
	seen := map[string]bool{target.ID: true}

	for cur := target; cur.ParentID != nil; {
		pid := *cur.ParentID
		if seen[pid] {
			r.logger.Warn("circular parent reference detected", "id", target.ID, "at", pid)
			res.Broken = true
			break
		}
		seen[pid] = true

		parent, err := r.lookup(ctx, pid, inTrash)
		if errors.Is(err, core.ErrNotFound) {
			r.logger.Warn("ancestor not found", "id", target.ID, "missing", pid)
			res.Detached = true
			break
		}
		if err != nil {
			return res, core.AsError("resolve", target.ID, err)
		}
		if inTrash && parent.Trashed() {
			res.Detached = true
			break
		}
		res.Chain = append(res.Chain, pid)
		cur = parent
	}
	slices.Reverse(res.Chain)

	if inTrash && res.Detached {
		return res, nil
	}
	loaded, err := r.loadChildren(ctx, res.Chain)
	res.Loaded = loaded
	if err != nil {
		return res, core.AsError("resolve", target.ID, err)
	}
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, id string, inTrash bool) (core.Node, error) {
	if inTrash {
		if n, ok := r.cache.LookupTrash(id); ok {
			return n, nil
		}
	}
	if n, ok := r.cache.Lookup(id); ok {
		return n, nil
	}
	n, err := r.store.Get(ctx, id)
	if err != nil {
		return core.Node{}, err
	}
	if !n.Trashed() {
		r.cache.Remember(n)
	}
	return n, nil
}

func (r *Resolver) loadChildren(ctx context.Context, chain []string) ([]string, error) {
	var pending []string
	for _, id := range chain {
		if !r.cache.IsLoaded(id) {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range pending {
		g.Go(func() error {
			children, err := r.store.Children(gctx, id)
			if err != nil {
				return err
			}
			r.cache.MarkLoaded(id, children)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pending, nil
}
