package cascade

import (
	"context"

	"github.com/aretw0/arbor/pkg/core"
)

// Pool is an in-memory ChildLister over an already materialized set of nodes.
// The client cache uses it to mirror a cascade over the nodes it currently knows.
type Pool struct {
	byParent map[string][]core.Node
	byID     map[string]core.Node
}

// NewPool indexes the given node sets. Later sets win on duplicate IDs.
func NewPool(sets ...[]core.Node) *Pool {
	p := &Pool{
		byParent: make(map[string][]core.Node),
		byID:     make(map[string]core.Node),
	}
	for _, set := range sets {
		for _, n := range set {
			p.byID[n.ID] = n
		}
	}
	for _, n := range p.byID {
		if n.ParentID != nil {
			p.byParent[*n.ParentID] = append(p.byParent[*n.ParentID], n)
		}
	}
	return p
}

// Lookup returns a known node by ID.
func (p *Pool) Lookup(id string) (core.Node, bool) {
	n, ok := p.byID[id]
	return n, ok
}

// Children implements ChildLister.
func (p *Pool) Children(_ context.Context, owner, parentID string, state core.State) ([]core.Node, error) {
	var out []core.Node
	for _, n := range p.byParent[parentID] {
		if n.Owner == owner && state.Matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}
