package client

import (
	"maps"
	"sort"

	"github.com/aretw0/arbor/pkg/core"
)

// Snapshot is the client-visible state of a session.
type Snapshot struct {
	// Active holds every known node that is not in the trash.
	Active map[string]core.Node
	// Trash holds the known trashed nodes.
	Trash map[string]core.Node
	// Loaded is the set of folder IDs whose children have been fetched.
	Loaded map[string]bool
	// TrashLoaded is set once the trash list has been fetched.
	TrashLoaded bool
	// Open is the node currently open, content included.
	Open *core.Node
}

func newSnapshot() Snapshot {
	return Snapshot{
		Active: make(map[string]core.Node),
		Trash:  make(map[string]core.Node),
		Loaded: make(map[string]bool),
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Active:      make(map[string]core.Node, len(s.Active)),
		Trash:       make(map[string]core.Node, len(s.Trash)),
		Loaded:      maps.Clone(s.Loaded),
		TrashLoaded: s.TrashLoaded,
	}
	if out.Loaded == nil {
		out.Loaded = make(map[string]bool)
	}
	for id, n := range s.Active {
		out.Active[id] = n.Clone()
	}
	for id, n := range s.Trash {
		out.Trash[id] = n.Clone()
	}
	if s.Open != nil {
		n := s.Open.Clone()
		out.Open = &n
	}
	return out
}

// Find returns a known node from either set.
func (s Snapshot) Find(id string) (core.Node, bool) {
	if n, ok := s.Active[id]; ok {
		return n, true
	}
	n, ok := s.Trash[id]
	return n, ok
}

func values(m map[string]core.Node) []core.Node {
	out := make([]core.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// edit rewrites the node id wherever the session holds a copy of it and returns
// the function undoing exactly that change.
func (s *Snapshot) edit(id string, change func(*core.Node), revert func(*core.Node)) func(*Snapshot) {
	touch := func(st *Snapshot, fn func(*core.Node)) {
		if n, ok := st.Active[id]; ok {
			fn(&n)
			st.Active[id] = n
		}
		if n, ok := st.Trash[id]; ok {
			fn(&n)
			st.Trash[id] = n
		}
		if st.Open != nil && st.Open.ID == id {
			fn(st.Open)
		}
	}
	touch(s, change)
	return func(st *Snapshot) { touch(st, revert) }
}

// transfer moves nodes between the active and trash sets, applying fn to each
// moved copy. The returned function puts the original copies back.
func (s *Snapshot) transfer(nodes []core.Node, toTrash bool, fn func(core.Node) core.Node) func(*Snapshot) {
	from, to := s.Active, s.Trash
	if !toTrash {
		from, to = s.Trash, s.Active
	}
	var openBefore *core.Node
	moved := make([]core.Node, 0, len(nodes))
	for _, n := range nodes {
		prev, ok := from[n.ID]
		if !ok {
			continue
		}
		delete(from, n.ID)
		to[n.ID] = fn(prev.Clone())
		moved = append(moved, prev)
		if s.Open != nil && s.Open.ID == n.ID {
			before := s.Open.Clone()
			openBefore = &before
			*s.Open = fn(s.Open.Clone())
		}
	}
	return func(st *Snapshot) {
		from, to := st.Active, st.Trash
		if !toTrash {
			from, to = st.Trash, st.Active
		}
		for _, prev := range moved {
			delete(to, prev.ID)
			from[prev.ID] = prev
		}
		if openBefore != nil && st.Open != nil && st.Open.ID == openBefore.ID {
			*st.Open = *openBefore
		}
	}
}

// remove drops nodes from the trash set. The returned function reinserts them.
func (s *Snapshot) remove(nodes []core.Node) func(*Snapshot) {
	var removed []core.Node
	for _, n := range nodes {
		if prev, ok := s.Trash[n.ID]; ok {
			delete(s.Trash, n.ID)
			removed = append(removed, prev)
		}
	}
	return func(st *Snapshot) {
		for _, prev := range removed {
			st.Trash[prev.ID] = prev
		}
	}
}
