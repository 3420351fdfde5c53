// Package cascade computes descendant closures and applies lifecycle transitions
// (soft delete, restore, purge) uniformly to a node and everything below it.
//
// The same closure and planning code serves the authoritative service, which
// walks the store, and the client cache, which walks only the nodes it knows.
package cascade

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/core"
)

// ChildLister lists the direct children of a node in the given state.
type ChildLister interface {
	Children(ctx context.Context, owner, parentID string, state core.State) ([]core.Node, error)
}

// RepositoryLister answers child queries against a Node Store.
type RepositoryLister struct {
	Repo core.Repository
}

// Children implements ChildLister.
func (l RepositoryLister) Children(ctx context.Context, owner, parentID string, state core.State) ([]core.Node, error) {
	return l.Repo.Find(ctx, core.Filter{Owner: owner, ParentID: &parentID, State: state})
}

// Walk visits every descendant of rootID breadth first. Each node is visited at
// most once, so a cycle in parent links ends the walk instead of looping.
// Returning false from fn stops the walk early.
func Walk(ctx context.Context, lister ChildLister, owner, rootID string, state core.State, fn func(core.Node) bool) error {
	visited := map[string]struct{}{rootID: {}}
	queue := []string{rootID}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := queue[0]
		queue = queue[1:]

		children, err := lister.Children(ctx, owner, id, state)
		if err != nil {
			return fmt.Errorf("listing children of %s: %w", id, err)
		}
		sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })

		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			if !fn(child) {
				return nil
			}
			if child.IsFolder() {
				queue = append(queue, child.ID)
			}
		}
	}
	return nil
}

// Closure returns every descendant of rootID in breadth-first order, excluding the root.
func Closure(ctx context.Context, lister ChildLister, owner, rootID string, state core.State) ([]core.Node, error) {
	var out []core.Node
	err := Walk(ctx, lister, owner, rootID, state, func(n core.Node) bool {
		out = append(out, n)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Contains reports whether candidateID is rootID itself or one of its descendants.
func Contains(ctx context.Context, lister ChildLister, owner, rootID, candidateID string, state core.State) (bool, error) {
	if rootID == candidateID {
		return true, nil
	}
	found := false
	err := Walk(ctx, lister, owner, rootID, state, func(n core.Node) bool {
		found = n.ID == candidateID
		return !found
	})
	return found, err
}
