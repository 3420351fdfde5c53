package ancestry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/ancestry"
	"github.com/aretw0/arbor/pkg/core"
)

type fakeStore struct {
	mu      sync.Mutex
	nodes   map[string]core.Node
	gets    []string
	failDir string
}

func newStore(nodes ...core.Node) *fakeStore {
	s := &fakeStore{nodes: map[string]core.Node{}}
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (core.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, id)
	n, ok := s.nodes[id]
	if !ok {
		return core.Node{}, core.ErrNotFound
	}
	return n, nil
}

func (s *fakeStore) Children(_ context.Context, parentID string) ([]core.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parentID == s.failDir {
		return nil, errors.New("connection reset")
	}
	var out []core.Node
	for _, n := range s.nodes {
		if n.Parent() == parentID && !n.Trashed() {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeCache struct {
	mu     sync.Mutex
	active map[string]core.Node
	trash  map[string]core.Node
	loaded map[string]bool
}

func newCache() *fakeCache {
	return &fakeCache{active: map[string]core.Node{}, trash: map[string]core.Node{}, loaded: map[string]bool{}}
}

func (c *fakeCache) Lookup(id string) (core.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.active[id]
	return n, ok
}

func (c *fakeCache) LookupTrash(id string) (core.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.trash[id]
	return n, ok
}

func (c *fakeCache) Remember(n core.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[n.ID] = n
}

func (c *fakeCache) IsLoaded(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded[id]
}

func (c *fakeCache) MarkLoaded(parentID string, children []core.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range children {
		c.active[n.ID] = n
	}
	c.loaded[parentID] = true
}

func folder(id string, parent *string) core.Node {
	n := core.NewFolder("o", id, parent)
	n.ID = id
	return n
}

func leaf(id string, parent *string) core.Node {
	n := core.NewLeaf("o", id, parent, "")
	n.ID = id
	return n
}

func TestResolve_DeepNode(t *testing.T) {
	// root -> a -> b -> c -> target, with a sibling beside b.
	store := newStore(
		folder("root", nil),
		folder("a", core.Ref("root")),
		folder("b", core.Ref("a")),
		folder("sib", core.Ref("a")),
		folder("c", core.Ref("b")),
		leaf("target", core.Ref("c")),
	)
	cache := newCache()
	cache.Remember(store.nodes["root"])
	cache.loaded["root"] = true

	res, err := ancestry.New(store, cache).Resolve(context.Background(), store.nodes["target"])
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "a", "b", "c"}, res.Chain)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, res.Loaded)
	assert.False(t, res.Broken)
	assert.False(t, res.Detached)

	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, cache.IsLoaded(id), id)
	}
	_, ok := cache.Lookup("sib")
	assert.True(t, ok, "siblings of each ancestor are loaded")
	assert.NotContains(t, store.gets, "root", "known ancestors are not fetched")
}

func TestResolve_RootLevel(t *testing.T) {
	store := newStore(leaf("n", nil))
	res, err := ancestry.New(store, newCache()).Resolve(context.Background(), store.nodes["n"])
	require.NoError(t, err)
	assert.Empty(t, res.Chain)
	assert.Empty(t, res.Loaded)
}

func TestResolve_Cycle(t *testing.T) {
	store := newStore(
		folder("a", core.Ref("b")),
		folder("b", core.Ref("a")),
		leaf("n", core.Ref("a")),
	)
	done := make(chan struct{})
	var res ancestry.Result
	var err error
	go func() {
		defer close(done)
		res, err = ancestry.New(store, newCache()).Resolve(context.Background(), store.nodes["n"])
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resolver did not terminate on a cycle")
	}
	require.NoError(t, err)
	assert.True(t, res.Broken)
	assert.Equal(t, []string{"b", "a"}, res.Chain)
}

func TestResolve_TrashedTargetDetached(t *testing.T) {
	at := time.Now()
	parent := folder("p", nil)
	parent.DeletedAt = &at
	target := leaf("n", core.Ref("p"))
	target.DeletedAt = &at

	store := newStore(parent, target)
	cache := newCache()
	cache.trash["p"] = parent

	res, err := ancestry.New(store, cache).Resolve(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, res.Detached)
	assert.Empty(t, res.Loaded)
	assert.Empty(t, store.gets, "trash pool is consulted first")
}

func TestResolve_TrashedTargetMissingParent(t *testing.T) {
	at := time.Now()
	target := leaf("n", core.Ref("gone"))
	target.DeletedAt = &at

	res, err := ancestry.New(newStore(target), newCache()).Resolve(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, res.Detached)
}

func TestResolve_ChildFetchFailure(t *testing.T) {
	store := newStore(folder("a", nil), leaf("n", core.Ref("a")))
	store.failDir = "a"

	_, err := ancestry.New(store, newCache()).Resolve(context.Background(), store.nodes["n"])
	require.Error(t, err)
	assert.Equal(t, core.KindTransient, core.KindOf(err))
}
