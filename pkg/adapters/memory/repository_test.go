package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/storetest"
	"github.com/aretw0/arbor/pkg/core"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Repository {
		return memory.NewRepository()
	})
}

func TestRepository_WriteHook(t *testing.T) {
	refused := errors.New("refused")
	repo := memory.NewRepository(memory.WithWriteHook(func(op string, n core.Node) error {
		if op == "insert" {
			return refused
		}
		return nil
	}))

	_, err := repo.Insert(context.Background(), core.NewLeaf("alice", "n", nil, ""))
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 0, repo.Len())
}
