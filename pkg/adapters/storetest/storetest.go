// Package storetest holds the behaviour every Node Store adapter must share.
// Adapter packages call Run from their own tests.
package storetest

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/service"
)

// Open returns a fresh, initialized, empty store.
type Open func(t *testing.T) core.Repository

// Run exercises repo semantics against a store produced by open.
func Run(t *testing.T, open Open) {
	t.Run("InsertAssignsID", func(t *testing.T) { testInsertAssignsID(t, open(t)) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
	t.Run("Find", func(t *testing.T) { testFind(t, open(t)) })
	t.Run("CascadeThroughService", func(t *testing.T) { testCascade(t, open(t)) })
}

func insert(t *testing.T, repo core.Repository, n core.Node) core.Node {
	t.Helper()
	out, err := repo.Insert(context.Background(), n)
	require.NoError(t, err)
	return out
}

func ids(nodes []core.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	slices.Sort(out)
	return out
}

func testInsertAssignsID(t *testing.T, repo core.Repository) {
	n := insert(t, repo, core.NewLeaf("alice", "Groceries", nil, "milk"))
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.False(t, n.UpdatedAt.IsZero())

	got, err := repo.Get(context.Background(), "alice", n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Name)
}

func testRoundTrip(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	deleted := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	folder := core.NewFolder("alice", "Projects", nil)
	folder.ID = "f1"
	insert(t, repo, folder)

	leaf := core.NewLeaf("alice", "Plan: Q3", core.Ref("f1"), "line one\n---\nline three\n")
	leaf.ID = "n1"
	leaf.DeletedAt = &deleted
	leaf.Tags = []string{"work", "draft"}
	leaf.Collaborators = []string{"bob"}
	insert(t, repo, leaf)

	gotFolder, err := repo.Get(ctx, "alice", "f1")
	require.NoError(t, err)
	assert.True(t, gotFolder.IsFolder())
	assert.Nil(t, gotFolder.ParentID)
	assert.Equal(t, "alice", gotFolder.Owner)

	got, err := repo.Get(ctx, "alice", "n1")
	require.NoError(t, err)
	assert.False(t, got.IsFolder())
	assert.Equal(t, "Plan: Q3", got.Name)
	assert.Equal(t, "line one\n---\nline three\n", got.Content())
	require.NotNil(t, got.ParentID)
	assert.Equal(t, "f1", *got.ParentID)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, deleted.Equal(*got.DeletedAt))
	assert.Equal(t, []string{"work", "draft"}, got.Tags)
	assert.Equal(t, []string{"bob"}, got.Collaborators)
}

func testUpdate(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	n := insert(t, repo, core.NewLeaf("alice", "old", nil, "body"))

	n.Name = "new"
	n.ParentID = core.Ref("elsewhere")
	n.CreatedAt = time.Time{}
	require.NoError(t, repo.Update(ctx, n))

	got, err := repo.Get(ctx, "alice", n.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, "elsewhere", got.Parent())
	assert.False(t, got.CreatedAt.IsZero(), "CreatedAt is kept by the store")
	assert.Equal(t, "body", got.Content())
}

func testNotFound(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	n := insert(t, repo, core.NewLeaf("alice", "mine", nil, ""))

	_, err := repo.Get(ctx, "alice", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = repo.Get(ctx, "mallory", n.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	foreign := n
	foreign.Owner = "mallory"
	assert.ErrorIs(t, repo.Update(ctx, foreign), core.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "mallory", n.ID), core.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "alice", n.ID))
	assert.ErrorIs(t, repo.Delete(ctx, "alice", n.ID), core.ErrNotFound)
	_, err = repo.Get(ctx, "alice", n.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testFind(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	now := time.Now()

	a := core.NewFolder("alice", "A", nil)
	a.ID = "a"
	b := core.NewLeaf("alice", "B", core.Ref("a"), "")
	b.ID = "b"
	c := core.NewLeaf("alice", "C", core.Ref("a"), "")
	c.ID = "c"
	c.DeletedAt = &now
	r := core.NewLeaf("alice", "R", nil, "")
	r.ID = "r"
	other := core.NewLeaf("bob", "X", nil, "")
	other.ID = "x"
	for _, n := range []core.Node{a, b, c, r, other} {
		insert(t, repo, n)
	}

	for _, tc := range []struct {
		name   string
		filter core.Filter
		want   []string
	}{
		{"root active", core.Filter{Owner: "alice", RootOnly: true}, []string{"a", "r"}},
		{"children active", core.Filter{Owner: "alice", ParentID: core.Ref("a")}, []string{"b"}},
		{"children any", core.Filter{Owner: "alice", ParentID: core.Ref("a"), State: core.StateAny}, []string{"b", "c"}},
		{"trash", core.Filter{Owner: "alice", State: core.StateTrashed}, []string{"c"}},
		{"all", core.Filter{Owner: "alice", State: core.StateAny}, []string{"a", "b", "c", "r"}},
		{"other owner", core.Filter{Owner: "bob"}, []string{"x"}},
		{"unknown owner", core.Filter{Owner: "nobody"}, []string{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.Find(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(got))
		})
	}

	// A second pass must agree with the first whatever the store caches.
	got, err := repo.Find(ctx, core.Filter{Owner: "alice", State: core.StateAny})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "r"}, ids(got))
}

func testCascade(t *testing.T, repo core.Repository) {
	svc := service.New(repo)
	ctx := core.WithOwner(context.Background(), "alice")

	a, err := svc.Create(ctx, core.CreateInput{Name: "A", IsFolder: true})
	require.NoError(t, err)
	b, err := svc.Create(ctx, core.CreateInput{Name: "B", IsFolder: true, ParentID: core.Ref(a.ID)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, core.CreateInput{Name: "n", ParentID: core.Ref(b.ID), Content: "hello"})
	require.NoError(t, err)

	res, err := svc.Delete(ctx, a.ID, core.DeleteSoft)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTrashed, res.Outcome)

	trash, err := repo.Find(ctx, core.Filter{Owner: "alice", State: core.StateTrashed})
	require.NoError(t, err)
	require.Len(t, trash, 3)
	for _, n := range trash {
		require.NotNil(t, n.DeletedAt)
	}

	restored, err := svc.Restore(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.ChildrenCount)

	trash, err = repo.Find(ctx, core.Filter{Owner: "alice", State: core.StateTrashed})
	require.NoError(t, err)
	assert.Empty(t, trash)

	_, err = svc.Delete(ctx, a.ID, core.DeleteSoft)
	require.NoError(t, err)
	res, err = svc.Delete(ctx, a.ID, core.DeletePermanent)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomePurged, res.Outcome)

	all, err := repo.Find(ctx, core.Filter{Owner: "alice", State: core.StateAny})
	require.NoError(t, err)
	assert.Empty(t, all)
}
