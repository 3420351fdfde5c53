package tree_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/tree"
)

func folder(id, name string, parent *string) core.Node {
	n := core.NewFolder("o", name, parent)
	n.ID = id
	return n
}

func leaf(id, name string, parent *string) core.Node {
	n := core.NewLeaf("o", name, parent, "")
	n.ID = id
	return n
}

func keys(nodes []*tree.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestBuild_LazyLoad(t *testing.T) {
	nodes := []core.Node{
		folder("a", "A", nil),
		leaf("n1", "n1", core.Ref("a")),
		folder("b", "B", nil),
		leaf("n2", "n2", core.Ref("b")),
		leaf("orphan", "orphan", core.Ref("gone")),
	}

	forest := tree.Build(nodes, map[string]bool{"a": true})
	require.Equal(t, []string{"a", "b"}, keys(forest))
	assert.Equal(t, []string{"n1"}, keys(forest[0].Children))
	assert.Empty(t, forest[1].Children, "children of an unloaded folder are hidden")
	assert.Nil(t, tree.Find(forest, "orphan"))
	assert.Equal(t, 3, tree.Count(forest))
}

func TestBuild_SortOrder(t *testing.T) {
	nodes := []core.Node{
		leaf("1", "alpha", nil),
		folder("2", "zeta", nil),
		leaf("3", "Beta", nil),
		leaf("4", "beta", nil),
		folder("5", "Alpha", nil),
		leaf("6", "beta", nil),
	}
	forest := tree.Build(nodes, nil)
	assert.Equal(t, []string{"5", "2", "1", "3", "4", "6"}, keys(forest))
}

func TestBuildTrash(t *testing.T) {
	at := time.Now()
	a := folder("a", "A", nil)
	a.DeletedAt = &at
	n := leaf("n", "n", core.Ref("a"))
	n.DeletedAt = &at
	stray := leaf("s", "stray", core.Ref("active-folder"))
	stray.DeletedAt = &at

	forest := tree.BuildTrash([]core.Node{n, stray, a})
	require.Equal(t, []string{"a", "s"}, keys(forest))
	assert.Equal(t, []string{"n"}, keys(forest[0].Children))
	assert.True(t, forest[0].Children[0].Trashed)
}

func TestMatch(t *testing.T) {
	nodes := []core.Node{
		folder("a", "Projects", nil),
		leaf("p1", "project plan", core.Ref("a")),
		folder("b", "Ideas", nil),
		leaf("i1", "Side PROJECT", core.Ref("b")),
	}
	forest := tree.Build(nodes, map[string]bool{"a": true, "b": true})
	assert.Equal(t, []string{"i1", "a"}, tree.Match(forest, "project"))
	assert.Empty(t, tree.Match(forest, "missing"))
}

func TestDropTarget(t *testing.T) {
	at := time.Now()
	gone := folder("t", "trash", nil)
	gone.DeletedAt = &at
	nodes := []core.Node{
		folder("a", "A", nil),
		folder("b", "B", core.Ref("a")),
		leaf("n", "n", core.Ref("a")),
	}
	forest := tree.Build(nodes, map[string]bool{"a": true})
	forest = append(forest, tree.BuildTrash([]core.Node{gone})...)

	parent, ok := tree.DropTarget(forest, "x", "b", tree.Onto)
	require.True(t, ok)
	assert.Equal(t, "b", *parent)

	parent, ok = tree.DropTarget(forest, "x", "n", tree.Between)
	require.True(t, ok)
	assert.Equal(t, "a", *parent)

	parent, ok = tree.DropTarget(forest, "x", "a", tree.Between)
	require.True(t, ok)
	assert.Nil(t, parent)

	_, ok = tree.DropTarget(forest, "x", "n", tree.Onto)
	assert.False(t, ok, "notes cannot hold children")

	_, ok = tree.DropTarget(forest, "x", "t", tree.Onto)
	assert.False(t, ok, "trash is not a drop target")

	_, ok = tree.DropTarget(forest, "a", "a", tree.Onto)
	assert.False(t, ok)
}
