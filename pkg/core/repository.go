package core

import "context"

// State selects nodes by trash status.
type State int

const (
	StateActive State = iota
	StateTrashed
	StateAny
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTrashed:
		return "trashed"
	default:
		return "any"
	}
}

// Matches reports whether n belongs to the state.
func (s State) Matches(n Node) bool {
	switch s {
	case StateActive:
		return !n.Trashed()
	case StateTrashed:
		return n.Trashed()
	default:
		return true
	}
}

// Filter is the query shape every store must answer. Owner is mandatory.
type Filter struct {
	Owner string
	// ParentID restricts results to direct children of a node.
	ParentID *string
	// RootOnly restricts results to nodes without a parent. Ignored when ParentID is set.
	RootOnly bool
	State    State
}

// Match reports whether n satisfies the filter.
func (f Filter) Match(n Node) bool {
	if n.Owner != f.Owner {
		return false
	}
	if f.ParentID != nil {
		if n.ParentID == nil || *n.ParentID != *f.ParentID {
			return false
		}
	} else if f.RootOnly && n.ParentID != nil {
		return false
	}
	return f.State.Matches(n)
}

// Repository defines the contract of the Node Store: a flat collection of nodes
// with per-record CRUD and simple filter queries. It enforces no referential
// integrity and offers no transaction across records.
type Repository interface {
	// Initialize ensures the underlying storage is ready (directories, schema, indexes).
	Initialize(ctx context.Context) error

	// Get retrieves a node owned by owner. Missing or foreign nodes return ErrNotFound.
	Get(ctx context.Context, owner, id string) (Node, error)

	// Find returns the nodes matching the filter, in no particular order.
	Find(ctx context.Context, f Filter) ([]Node, error)

	// Insert stores a new node. An empty ID is assigned by the store; the stored node is returned.
	Insert(ctx context.Context, n Node) (Node, error)

	// Update replaces an existing node. Missing nodes return ErrNotFound.
	Update(ctx context.Context, n Node) error

	// Delete removes a node. Missing nodes return ErrNotFound.
	Delete(ctx context.Context, owner, id string) error
}

// Closer is implemented by stores holding connections.
type Closer interface {
	Close(ctx context.Context) error
}

// Watchable is implemented by stores that can report changes made by other processes.
type Watchable interface {
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}
