// Package client holds the state of a client session over a Node Store API: the
// lazily loaded subset of the tree, the trash and the open node. Mutations are
// applied locally first, sent to the store, then committed or rolled back.
package client

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor/pkg/ancestry"
	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/tree"
)

// Remote is the store API the manager talks to. Both the in-process service and
// the HTTP client implement it.
type Remote interface {
	ListRoot(ctx context.Context) ([]core.Node, error)
	ListChildren(ctx context.Context, parentID string) ([]core.Node, error)
	ListTrash(ctx context.Context) ([]core.Node, error)
	Get(ctx context.Context, id string) (core.Node, error)
	Create(ctx context.Context, in core.CreateInput) (core.Node, error)
	Update(ctx context.Context, id string, p core.Patch) (core.Node, error)
	Move(ctx context.Context, id string, parentID *string) (core.Node, error)
	Delete(ctx context.Context, id string, mode core.DeleteMode) (core.DeleteResult, error)
	Restore(ctx context.Context, id string) (core.RestoreResult, error)
}

// DefaultRequestTimeout bounds every remote call issued by a mutation.
const DefaultRequestTimeout = 10 * time.Second

// Manager is the optimistic cache of one session. It is safe for concurrent use.
type Manager struct {
	remote  Remote
	owner   string
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu    sync.Mutex
	state Snapshot

	keys     *keyQueue
	inflight sync.WaitGroup
	events   chan core.Event
	resolver *ancestry.Resolver
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRequestTimeout bounds each remote call of a mutation.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock overrides the time used to stamp optimistic soft deletes.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.events = make(chan core.Event, n)
		}
	}
}

// New creates a Manager for owner over remote.
func New(remote Remote, owner string, opts ...Option) *Manager {
	m := &Manager{
		remote:  remote,
		owner:   owner,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultRequestTimeout,
		now:     time.Now,
		state:   newSnapshot(),
		keys:    newKeyQueue(),
		events:  make(chan core.Event, 64),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.resolver = ancestry.New(storeView{m}, cacheView{m}, ancestry.WithLogger(m.logger))
	return m
}

// Owner returns the owner this session acts for.
func (m *Manager) Owner() string { return m.owner }

// Events streams one event per settled mutation. Events are dropped when
// nobody drains the channel.
func (m *Manager) Events() <-chan core.Event { return m.events }

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Tree renders the active forest as currently loaded.
func (m *Manager) Tree() []*tree.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tree.Build(values(m.state.Active), m.state.Loaded)
}

// TrashTree renders the known trash.
func (m *Manager) TrashTree() []*tree.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tree.BuildTrash(values(m.state.Trash))
}

// Wait blocks until every in-flight mutation has settled.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Close waits for in-flight mutations and closes the event channel. The
// manager must not be used afterwards.
func (m *Manager) Close() error {
	m.Wait()
	close(m.events)
	return nil
}

func (m *Manager) scoped(ctx context.Context) context.Context {
	if m.owner == "" {
		return ctx
	}
	return core.WithOwner(ctx, m.owner)
}

// FetchRoot loads the root level. It resets the loaded folders and the trash
// cache, then reveals the open node again if there is one.
func (m *Manager) FetchRoot(ctx context.Context) ([]core.Node, error) {
	roots, err := m.remote.ListRoot(m.scoped(ctx))
	if err != nil {
		return nil, core.AsError("fetch-root", "", err)
	}

	m.mu.Lock()
	m.state.Active = make(map[string]core.Node, len(roots))
	for _, n := range roots {
		m.state.Active[n.ID] = n
	}
	m.state.Loaded = make(map[string]bool)
	m.state.Trash = make(map[string]core.Node)
	m.state.TrashLoaded = false
	var open *core.Node
	if m.state.Open != nil {
		n := m.state.Open.Clone()
		open = &n
	}
	m.mu.Unlock()

	if open != nil && open.ParentID != nil {
		if _, err := m.resolver.Resolve(ctx, *open); err != nil {
			m.logger.Warn("failed to reveal open node", "id", open.ID, "error", err)
		}
	}
	return roots, nil
}

// FetchChildren loads the active children of a folder and marks it loaded.
// Known children that the store no longer lists under the folder are dropped.
func (m *Manager) FetchChildren(ctx context.Context, parentID string) ([]core.Node, error) {
	children, err := m.remote.ListChildren(m.scoped(ctx), parentID)
	if err != nil {
		return nil, core.AsError("fetch-children", parentID, err)
	}
	m.mu.Lock()
	m.mergeChildren(parentID, children)
	m.mu.Unlock()
	return children, nil
}

func (m *Manager) mergeChildren(parentID string, children []core.Node) {
	fresh := make(map[string]bool, len(children))
	for _, n := range children {
		fresh[n.ID] = true
		m.state.Active[n.ID] = n
	}
	for id, n := range m.state.Active {
		if n.Parent() == parentID && !fresh[id] {
			delete(m.state.Active, id)
		}
	}
	m.state.Loaded[parentID] = true
}

// FetchTrash loads the trash. The list is cached until force is set or the root
// is fetched again.
func (m *Manager) FetchTrash(ctx context.Context, force bool) ([]core.Node, error) {
	m.mu.Lock()
	if m.state.TrashLoaded && !force {
		out := values(m.state.Trash)
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()

	nodes, err := m.remote.ListTrash(m.scoped(ctx))
	if err != nil {
		return nil, core.AsError("fetch-trash", "", err)
	}
	m.mu.Lock()
	m.state.Trash = make(map[string]core.Node, len(nodes))
	for _, n := range nodes {
		m.state.Trash[n.ID] = n
		delete(m.state.Active, n.ID)
	}
	m.state.TrashLoaded = true
	m.mu.Unlock()
	return nodes, nil
}

// Open fetches a node with its content, makes it the open node and loads its
// ancestor chain so the tree can be expanded down to it.
func (m *Manager) Open(ctx context.Context, id string) (core.Node, ancestry.Result, error) {
	n, err := m.remote.Get(m.scoped(ctx), id)
	if err != nil {
		return core.Node{}, ancestry.Result{}, core.AsError("open", id, err)
	}
	m.mu.Lock()
	open := n.Clone()
	m.state.Open = &open
	m.mu.Unlock()

	res, err := m.resolver.Resolve(ctx, n)
	return n, res, err
}

// Refresh re-fetches the root, every folder that was loaded and, when it was
// loaded, the trash.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	var folders []string
	for id := range m.state.Loaded {
		folders = append(folders, id)
	}
	trash := m.state.TrashLoaded
	m.mu.Unlock()

	if _, err := m.FetchRoot(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range folders {
		g.Go(func() error {
			_, err := m.FetchChildren(gctx, id)
			if core.KindOf(err) == core.KindNotFound {
				return nil
			}
			return err
		})
	}
	if trash {
		g.Go(func() error {
			_, err := m.FetchTrash(gctx, true)
			return err
		})
	}
	return g.Wait()
}

func (m *Manager) emit(e core.Event) {
	select {
	case m.events <- e:
	default:
		m.logger.Debug("event dropped", "event", e.String())
	}
}

// storeView and cacheView adapt the manager to the ancestor resolver.
type storeView struct{ m *Manager }

func (v storeView) Get(ctx context.Context, id string) (core.Node, error) {
	return v.m.remote.Get(v.m.scoped(ctx), id)
}

func (v storeView) Children(ctx context.Context, parentID string) ([]core.Node, error) {
	return v.m.remote.ListChildren(v.m.scoped(ctx), parentID)
}

type cacheView struct{ m *Manager }

func (v cacheView) Lookup(id string) (core.Node, bool) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	n, ok := v.m.state.Active[id]
	return n, ok
}

func (v cacheView) LookupTrash(id string) (core.Node, bool) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	n, ok := v.m.state.Trash[id]
	return n, ok
}

func (v cacheView) Remember(n core.Node) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.state.Active[n.ID]; !ok {
		v.m.state.Active[n.ID] = n.Summary()
	}
}

func (v cacheView) IsLoaded(id string) bool {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return v.m.state.Loaded[id]
}

func (v cacheView) MarkLoaded(parentID string, children []core.Node) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	v.m.mergeChildren(parentID, children)
}
