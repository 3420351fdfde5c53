package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/service"
)

type fixture struct {
	repo *memory.Repository
	svc  *service.Service
	ctx  context.Context
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: memory.NewRepository(),
		ctx:  core.WithOwner(context.Background(), "alice"),
		now:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.repo = memory.NewRepository(memory.WithClock(clock))
	f.svc = service.New(f.repo, service.WithClock(clock))
	return f
}

func (f *fixture) tick() { f.now = f.now.Add(time.Second) }

func (f *fixture) folder(t *testing.T, name string, parent *string) core.Node {
	t.Helper()
	n, err := f.svc.Create(f.ctx, core.CreateInput{Name: name, ParentID: parent, IsFolder: true})
	require.NoError(t, err)
	f.tick()
	return n
}

func (f *fixture) note(t *testing.T, name string, parent *string, content string) core.Node {
	t.Helper()
	n, err := f.svc.Create(f.ctx, core.CreateInput{Name: name, ParentID: parent, Content: content})
	require.NoError(t, err)
	f.tick()
	return n
}

func (f *fixture) raw(t *testing.T, id string) core.Node {
	t.Helper()
	n, err := f.repo.Get(f.ctx, "alice", id)
	require.NoError(t, err)
	return n
}

func TestService_RequiresOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListRoot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnauthorized))
}

func TestService_OwnerIsolation(t *testing.T) {
	f := newFixture(t)
	n := f.note(t, "private", nil, "secret")

	bob := core.WithOwner(context.Background(), "bob")
	_, err := f.svc.Get(bob, n.ID)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	roots, err := f.svc.ListRoot(bob)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	note := f.note(t, "leaf", nil, "x")

	_, err := f.svc.Create(f.ctx, core.CreateInput{Name: "  "})
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))

	_, err = f.svc.Create(f.ctx, core.CreateInput{Name: "child", ParentID: &note.ID})
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err), "a note cannot be a parent")

	missing := "nope"
	_, err = f.svc.Create(f.ctx, core.CreateInput{Name: "child", ParentID: &missing})
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))
}

func TestService_CreateDuplicate(t *testing.T) {
	f := newFixture(t)
	src := f.note(t, "src", nil, "hello")

	dup, err := f.svc.Create(f.ctx, core.CreateInput{Name: "copy", DuplicateFromID: src.ID})
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "hello", dup.Content())
}

func TestService_ListsAreSummaries(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	f.note(t, "n1", &a.ID, "body")

	children, err := f.svc.ListChildren(f.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Empty(t, children[0].Content())

	full, err := f.svc.Get(f.ctx, children[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "body", full.Content())
}

func TestService_UpdateRejectsFolderContent(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	content := "x"
	_, err := f.svc.Update(f.ctx, a.ID, core.Patch{Content: &content})
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))

	name := "Renamed"
	got, err := f.svc.Update(f.ctx, a.ID, core.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.True(t, got.IsFolder())
}

func TestService_MoveCycleRejected(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	b := f.folder(t, "B", &a.ID)
	c := f.folder(t, "C", &b.ID)

	_, err := f.svc.Move(f.ctx, a.ID, &c.ID)
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))

	_, err = f.svc.Move(f.ctx, a.ID, &a.ID)
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))

	// Through Update as well.
	_, err = f.svc.Update(f.ctx, a.ID, core.Patch{Parent: &core.ParentRef{ID: &b.ID}})
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))

	assert.Nil(t, f.raw(t, a.ID).ParentID, "refused move must not write")
}

func TestService_MoveToRootAndIntoFolder(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	b := f.folder(t, "B", &a.ID)
	n := f.note(t, "n", &b.ID, "")

	moved, err := f.svc.Move(f.ctx, b.ID, nil)
	require.NoError(t, err)
	assert.True(t, moved.IsRoot())

	moved, err = f.svc.Move(f.ctx, a.ID, &b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, moved.Parent())

	_, err = f.svc.Move(f.ctx, a.ID, &n.ID)
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err), "a note is not a valid parent")
}

func TestService_SoftDeleteCascades(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	b := f.folder(t, "B", &a.ID)
	n1 := f.note(t, "n1", &a.ID, "")
	n2 := f.note(t, "n2", &b.ID, "")

	res, err := f.svc.Delete(f.ctx, a.ID, core.DeleteSoft)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTrashed, res.Outcome)
	assert.Equal(t, 4, res.Affected)

	target := f.raw(t, a.ID)
	require.NotNil(t, target.DeletedAt)
	for _, id := range []string{b.ID, n1.ID, n2.ID} {
		d := f.raw(t, id)
		require.NotNil(t, d.DeletedAt, id)
		assert.False(t, d.DeletedAt.Before(*target.DeletedAt))
	}

	roots, err := f.svc.ListRoot(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, roots)

	trash, err := f.svc.ListTrash(f.ctx)
	require.NoError(t, err)
	assert.Len(t, trash, 4)
}

func TestService_SoftDeleteKeepsLaterTimestamps(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	n := f.note(t, "n", &a.ID, "")

	_, err := f.svc.Delete(f.ctx, n.ID, core.DeleteSoft)
	require.NoError(t, err)
	first := *f.raw(t, n.ID).DeletedAt

	f.tick()
	_, err = f.svc.Delete(f.ctx, a.ID, core.DeleteSoft)
	require.NoError(t, err)

	parent := *f.raw(t, a.ID).DeletedAt
	child := *f.raw(t, n.ID).DeletedAt
	assert.True(t, parent.After(first))
	assert.False(t, child.Before(parent))
}

func TestService_DeleteModes(t *testing.T) {
	f := newFixture(t)
	n := f.note(t, "n", nil, "")

	_, err := f.svc.Delete(f.ctx, n.ID, core.DeletePermanent)
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err), "active nodes must be trashed first")

	res, err := f.svc.Delete(f.ctx, n.ID, core.DeleteAuto)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTrashed, res.Outcome)

	res, err = f.svc.Delete(f.ctx, n.ID, core.DeleteSoft)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeNoop, res.Outcome)

	res, err = f.svc.Delete(f.ctx, n.ID, core.DeleteAuto)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomePurged, res.Outcome)

	_, err = f.svc.Get(f.ctx, n.ID)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	_, err = f.svc.Delete(f.ctx, n.ID, core.DeletePermanent)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestService_PurgeRemovesSubtree(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	b := f.folder(t, "B", &a.ID)
	f.note(t, "n", &b.ID, "")
	keep := f.note(t, "keep", nil, "")

	_, err := f.svc.Delete(f.ctx, a.ID, core.DeleteSoft)
	require.NoError(t, err)
	res, err := f.svc.Delete(f.ctx, a.ID, core.DeletePermanent)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Affected)
	assert.Equal(t, 1, f.repo.Len())
	f.raw(t, keep.ID)
}

func TestService_RestoreRequiresActiveParent(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	n := f.note(t, "n", &a.ID, "")

	_, err := f.svc.Delete(f.ctx, a.ID, core.DeleteSoft)
	require.NoError(t, err)

	_, err = f.svc.Restore(f.ctx, n.ID)
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))
	assert.True(t, f.raw(t, n.ID).Trashed(), "refused restore must not write")

	res, err := f.svc.Restore(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChildrenCount)
	assert.False(t, res.Node.Trashed())
	assert.False(t, f.raw(t, n.ID).Trashed())

	_, err = f.svc.Restore(f.ctx, a.ID)
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))
}

func TestService_RestoreOrphanedByPurge(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	n := f.note(t, "n", &a.ID, "")

	_, err := f.svc.Delete(f.ctx, n.ID, core.DeleteSoft)
	require.NoError(t, err)
	// Remove the parent directly, leaving the trashed note orphaned.
	require.NoError(t, f.repo.Delete(f.ctx, "alice", a.ID))

	_, err = f.svc.Restore(f.ctx, n.ID)
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))
}

func TestService_PartialCascade(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	b := f.folder(t, "B", &a.ID)
	n := f.note(t, "n", &a.ID, "")

	boom := errors.New("disk full")
	f.repo.SetWriteHook(func(op string, node core.Node) error {
		if node.ID == b.ID {
			return boom
		}
		return nil
	})

	_, err := f.svc.Delete(f.ctx, a.ID, core.DeleteSoft)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPartialCascade))

	var e *core.Error
	require.True(t, errors.As(err, &e))
	assert.ElementsMatch(t, []string{a.ID, n.ID}, e.Applied)
	assert.Equal(t, []string{b.ID}, e.Failed)
	assert.ErrorIs(t, err, boom)

	// The operation is idempotent: retrying once the store recovers completes it.
	f.repo.SetWriteHook(nil)
	_, err = f.svc.Delete(f.ctx, a.ID, core.DeleteSoft)
	require.NoError(t, err)
	assert.True(t, f.raw(t, b.ID).Trashed())
}

func TestService_TargetFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	n := f.note(t, "n", &a.ID, "")

	f.repo.SetWriteHook(func(op string, node core.Node) error {
		if node.ID == a.ID {
			return errors.New("unavailable")
		}
		return nil
	})
	_, err := f.svc.Delete(f.ctx, a.ID, core.DeleteSoft)
	assert.Equal(t, core.KindTransient, core.KindOf(err))
	assert.False(t, f.raw(t, n.ID).Trashed())
}

func TestService_Search(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "Golang", nil)
	f.note(t, "first", &a.ID, "Learning golang every day is fun")
	f.note(t, "Go tips", nil, "nothing here")
	gone := f.note(t, "old golang", nil, "")
	_, err := f.svc.Delete(f.ctx, gone.ID, core.DeleteSoft)
	require.NoError(t, err)

	page, err := f.svc.Search(f.ctx, core.SearchQuery{Q: "GOLANG"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1, "folders and trashed notes are excluded")
	assert.Equal(t, "first", page.Data[0].Node.Name)
	assert.Contains(t, page.Data[0].Excerpt, "<strong>golang</strong>")
	assert.False(t, page.HasMore)

	page, err = f.svc.Search(f.ctx, core.SearchQuery{Q: "  "})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestService_SearchPaging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.note(t, "match", nil, "")
	}
	page, err := f.svc.Search(f.ctx, core.SearchQuery{Q: "match", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)

	page, err = f.svc.Search(f.ctx, core.SearchQuery{Q: "match", Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.False(t, page.HasMore)
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name    string
		content string
		term    string
		want    string
	}{
		{"empty", "", "x", ""},
		{"short no match", "hello", "x", "hello"},
		{"long no match", "abcdefghijklmnopqrstuvwxyz", "0", "abcdefghijklmnopqrst..."},
		{"match at start", "Go is a language designed at Google", "go", "<strong>Go</strong> is a language des..."},
		{"match in middle", "0123456789abcdefghijXYZklmnopqrstuvwxyz", "xyz", "...abcdefghij<strong>XYZ</strong>klmnopqrst..."},
		{"match at end", "some longer text ending in word", "word", "... text ending in <strong>word</strong>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.Excerpt(tt.content, tt.term))
		})
	}
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t)
	a := f.folder(t, "A", nil)
	f.note(t, "n1", &a.ID, "short")
	long := ""
	for i := 0; i < 70; i++ {
		long += "x"
	}
	f.note(t, "n2", nil, long)
	gone := f.note(t, "n3", nil, "")
	_, err := f.svc.Delete(f.ctx, gone.ID, core.DeleteSoft)
	require.NoError(t, err)

	st, err := f.svc.Stats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Notes)
	assert.Equal(t, 1, st.Folders)
	assert.Equal(t, 1, st.Trash)
	assert.Equal(t, 2, st.Recent)
	require.Len(t, st.RecentNotes, 2)
	assert.Equal(t, "n2", st.RecentNotes[0].Name)
	assert.Len(t, []rune(st.RecentNotes[0].Content()), 63)
	require.Len(t, st.Activity, 7)
	assert.Equal(t, "2026-03-14", st.Activity[6].Date)
	assert.Equal(t, 3, st.Activity[6].Count)
}

func TestService_State(t *testing.T) {
	f := newFixture(t)
	_, _ = f.svc.ListRoot(f.ctx)
	st, ok := f.svc.State().(service.ServiceState)
	require.True(t, ok)
	assert.Equal(t, 1, st.Calls["list-root"])
	assert.Equal(t, "service", f.svc.ComponentType())
}
