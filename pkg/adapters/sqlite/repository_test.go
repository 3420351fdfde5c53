package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/aretw0/arbor/pkg/adapters/storetest"
	"github.com/aretw0/arbor/pkg/core"
)

func open(t *testing.T, path string) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(sqlite.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	require.NoError(t, repo.Initialize(context.Background()))
	return repo
}

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Repository {
		return open(t, filepath.Join(t.TempDir(), "arbor.db"))
	})
}

func TestRepository_Memory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Repository {
		return open(t, ":memory:")
	})
}

func TestRepository_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.db")
	ctx := context.Background()

	first := open(t, path)
	n, err := first.Insert(ctx, core.NewLeaf("alice", "kept", nil, "body"))
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := open(t, path)
	got, err := second.Get(ctx, "alice", n.ID)
	require.NoError(t, err)
	assert.Equal(t, "body", got.Content())
	assert.True(t, n.CreatedAt.Equal(got.CreatedAt))
}

func TestRepository_DuplicateID(t *testing.T) {
	repo := open(t, ":memory:")
	n := core.NewFolder("alice", "f", nil)
	n.ID = "f1"
	_, err := repo.Insert(context.Background(), n)
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), n)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestRepository_UpdateKeepsFolderFlag(t *testing.T) {
	repo := open(t, ":memory:")
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	n := core.NewFolder("alice", "f", nil)
	n.CreatedAt = clock
	n, err := repo.Insert(ctx, n)
	require.NoError(t, err)

	n.Body = core.Leaf{Content: "sneaky"}
	require.NoError(t, repo.Update(ctx, n))

	got, err := repo.Get(ctx, "alice", n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFolder())
	assert.True(t, clock.Equal(got.CreatedAt))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(sqlite.Config{})
	assert.Error(t, err)
}
