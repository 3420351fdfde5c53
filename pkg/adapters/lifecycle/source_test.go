package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/lifecycle"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/client"
	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/service"
)

func TestSource_Filters(t *testing.T) {
	in := make(chan core.Event, 4)
	in <- core.NewEvent(core.EventCreate, "alice", "a")
	in <- core.NewEvent(core.EventTrash, "alice", "a")
	in <- core.NewEvent(core.EventTrash, "bob", "b")
	in <- core.NewEvent(core.EventModify, "alice", "a")
	close(in)

	src := lifecycle.NewSource(in, lifecycle.WithTypes(core.EventTrash), lifecycle.WithOwner("alice"))
	require.NoError(t, src.Start(context.Background()))

	var got []string
	for e := range src.Events() {
		got = append(got, e.String())
	}
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "TRASH")
}

func TestSource_StopsOnCancel(t *testing.T) {
	in := make(chan core.Event)
	ctx, cancel := context.WithCancel(context.Background())
	src := lifecycle.NewSource(in)
	require.NoError(t, src.Start(ctx))
	cancel()

	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not close after cancel")
	}
}

func TestSource_ManagerEvents(t *testing.T) {
	m := client.New(service.New(memory.NewRepository()), "alice")
	defer m.Close()

	src := lifecycle.NewSource(m.Events(), lifecycle.WithTypes(core.EventCreate))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Start(ctx))

	n, err := m.Create(context.Background(), core.CreateInput{Name: "Inbox", IsFolder: true})
	require.NoError(t, err)

	select {
	case e := <-src.Events():
		ev, ok := e.(core.Event)
		require.True(t, ok)
		assert.Equal(t, n.ID, ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no create event")
	}
}
