package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/httpapi"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/client"
	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/service"
)

type fixture struct {
	repo   *memory.Repository
	server *httptest.Server
	api    *httpapi.Client
	ctx    context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewRepository()
	srv := httptest.NewServer(httpapi.NewServer(service.New(repo)))
	t.Cleanup(srv.Close)
	return &fixture{
		repo:   repo,
		server: srv,
		api:    httpapi.NewClient(srv.URL),
		ctx:    core.WithOwner(context.Background(), "alice"),
	}
}

func (f *fixture) create(t *testing.T, name string, folder bool, parent *string) core.Node {
	t.Helper()
	n, err := f.api.Create(f.ctx, core.CreateInput{Name: name, IsFolder: folder, ParentID: parent})
	require.NoError(t, err)
	return n
}

func TestServer_RequiresOwner(t *testing.T) {
	f := setup(t)

	_, err := f.api.ListRoot(context.Background())
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	resp, err := http.Get(f.server.URL + "/note?root=true")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	f := setup(t)
	assert.NoError(t, f.api.Health(context.Background()))
}

func TestServer_ListsAndGet(t *testing.T) {
	f := setup(t)
	projects := f.create(t, "Projects", true, nil)
	note, err := f.api.Create(f.ctx, core.CreateInput{Name: "Notes A", ParentID: core.Ref(projects.ID), Content: "secret body"})
	require.NoError(t, err)

	root, err := f.api.ListRoot(f.ctx)
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, projects.ID, root[0].ID)

	children, err := f.api.ListChildren(f.ctx, projects.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Empty(t, children[0].Content(), "list views strip content")

	full, err := f.api.Get(f.ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret body", full.Content())

	active, err := f.api.ListActive(f.ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = f.api.Get(core.WithOwner(context.Background(), "mallory"), note.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestServer_PatchParentSemantics(t *testing.T) {
	f := setup(t)
	folder := f.create(t, "F", true, nil)
	note := f.create(t, "n", false, core.Ref(folder.ID))

	// Absent parentId keeps the parent.
	name := "renamed"
	got, err := f.api.Update(f.ctx, note.ID, core.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, folder.ID, got.Parent())

	// Explicit null moves to the root.
	got, err = f.api.Update(f.ctx, note.ID, core.Patch{Parent: &core.ParentRef{}})
	require.NoError(t, err)
	assert.True(t, got.IsRoot())

	// Unknown fields are ignored.
	req, _ := http.NewRequest(http.MethodPatch, f.server.URL+"/note/"+note.ID,
		strings.NewReader(`{"owner":"mallory","isFolder":true,"name":"again"}`))
	req.Header.Set(httpapi.DefaultOwnerHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	after, err := f.api.Get(f.ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "again", after.Name)
	assert.Equal(t, "alice", after.Owner)
	assert.False(t, after.IsFolder())
}

func TestServer_MoveRejectsCycle(t *testing.T) {
	f := setup(t)
	projects := f.create(t, "Projects", true, nil)
	child := f.create(t, "Sub", true, core.Ref(projects.ID))

	_, err := f.api.Move(f.ctx, projects.ID, core.Ref(child.ID))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = f.api.Move(f.ctx, child.ID, nil)
	assert.NoError(t, err)
}

func TestServer_DeleteModes(t *testing.T) {
	f := setup(t)
	n := f.create(t, "n", false, nil)

	res, err := f.api.Delete(f.ctx, n.ID, core.DeletePermanent)
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "active nodes cannot be purged")

	res, err = f.api.Delete(f.ctx, n.ID, core.DeleteAuto)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTrashed, res.Outcome)

	res, err = f.api.Delete(f.ctx, n.ID, core.DeleteSoft)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeNoop, res.Outcome)

	trash, err := f.api.ListTrash(f.ctx)
	require.NoError(t, err)
	assert.Len(t, trash, 1)

	res, err = f.api.Delete(f.ctx, n.ID, core.DeleteAuto)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomePurged, res.Outcome)

	_, err = f.api.Get(f.ctx, n.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestServer_RestoreRequiresActiveParent(t *testing.T) {
	f := setup(t)
	projects := f.create(t, "Projects", true, nil)
	note := f.create(t, "Notes A", false, core.Ref(projects.ID))

	_, err := f.api.Delete(f.ctx, projects.ID, core.DeleteSoft)
	require.NoError(t, err)

	_, err = f.api.Restore(f.ctx, note.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	res, err := f.api.Restore(f.ctx, projects.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChildrenCount)
	assert.False(t, res.Node.Trashed())
}

func TestServer_PartialCascade(t *testing.T) {
	f := setup(t)
	a := f.create(t, "A", true, nil)
	b := f.create(t, "B", false, core.Ref(a.ID))

	f.repo.SetWriteHook(func(op string, n core.Node) error {
		if n.ID == b.ID {
			return errors.New("disk full")
		}
		return nil
	})

	_, err := f.api.Delete(f.ctx, a.ID, core.DeleteSoft)
	require.Error(t, err)
	var e *core.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, core.KindPartialCascade, e.Kind)
	assert.Equal(t, []string{a.ID}, e.Applied)
	assert.Equal(t, []string{b.ID}, e.Failed)
}

func TestServer_SearchAndStats(t *testing.T) {
	f := setup(t)
	_, err := f.api.Create(f.ctx, core.CreateInput{Name: "Go notes", Content: "channels and goroutines"})
	require.NoError(t, err)
	f.create(t, "Go folder", true, nil)

	page, err := f.api.Search(f.ctx, core.SearchQuery{Q: "go"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Go notes", page.Data[0].Node.Name)
	assert.False(t, page.HasMore)

	empty, err := f.api.Search(f.ctx, core.SearchQuery{Q: "nothing matches"})
	require.NoError(t, err)
	assert.Empty(t, empty.Data)

	st, err := f.api.Stats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Notes)
	assert.Equal(t, 1, st.Folders)
	assert.Len(t, st.Activity, 7)
}

func TestServer_LegacyQueryRoutes(t *testing.T) {
	f := setup(t)
	n := f.create(t, "n", false, nil)

	do := func(method, path, body string) int {
		req, _ := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
		req.Header.Set(httpapi.DefaultOwnerHeader, "alice")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPatch, "/note?id="+n.ID, `{"name":"legacy"}`))
	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/note?id="+n.ID, ""))
	assert.Equal(t, http.StatusOK, do(http.MethodPut, "/note?id="+n.ID, ""))
	assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/note", `{not json`))

	got, err := f.api.Get(f.ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "legacy", got.Name)
	assert.False(t, got.Trashed())
}

func TestClient_TransientOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := httpapi.NewClient(srv.URL).ListRoot(core.WithOwner(context.Background(), "alice"))
	assert.ErrorIs(t, err, core.ErrTransient)
	assert.True(t, core.Retryable(err))
}

func TestClient_TransientOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := httpapi.NewClient(url).Get(core.WithOwner(context.Background(), "alice"), "x")
	assert.ErrorIs(t, err, core.ErrTransient)
}

func TestClient_CustomAuthenticator(t *testing.T) {
	repo := memory.NewRepository()
	auth := httpapi.AuthenticatorFunc(func(r *http.Request) (string, error) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			return "", errors.New("bad token")
		}
		return "alice", nil
	})
	srv := httptest.NewServer(httpapi.NewServer(service.New(repo), httpapi.WithAuthenticator(auth)))
	defer srv.Close()

	_, err := httpapi.NewClient(srv.URL).ListRoot(context.Background())
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = httpapi.NewClient(srv.URL, httpapi.WithHeader("Authorization", "Bearer s3cret")).ListRoot(context.Background())
	assert.NoError(t, err)
}

// The optimistic client drives the store through HTTP exactly as it does in process.
func TestManagerOverHTTP(t *testing.T) {
	f := setup(t)
	m := client.New(f.api, "alice")
	defer m.Close()
	ctx := context.Background()

	projects, err := m.Create(ctx, core.CreateInput{Name: "Projects", IsFolder: true})
	require.NoError(t, err)
	_, err = m.FetchChildren(ctx, projects.ID)
	require.NoError(t, err)
	note, err := m.Create(ctx, core.CreateInput{Name: "Notes A", ParentID: core.Ref(projects.ID)})
	require.NoError(t, err)

	_, err = m.Move(ctx, projects.ID, core.Ref(note.ID))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = m.SoftDelete(ctx, projects.ID)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.NotContains(t, snap.Active, projects.ID)
	assert.NotContains(t, snap.Active, note.ID)

	_, err = m.Restore(ctx, note.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	stored, err := f.api.Get(f.ctx, note.ID)
	require.NoError(t, err)
	assert.True(t, stored.Trashed())
}
