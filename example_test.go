package arbor_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/core"
)

// Example_basic creates a folder with a note, trashes the folder and restores it.
func Example_basic() {
	tmpDir, err := os.MkdirTemp("", "arbor-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	store, err := arbor.New(ctx, tmpDir, arbor.WithAutoInit(true), arbor.WithVersioning(false))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close(ctx)

	alice := core.WithOwner(ctx, "alice")
	folder, err := store.Create(alice, core.CreateInput{Name: "Projects", IsFolder: true})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := store.Create(alice, core.CreateInput{Name: "Plan", ParentID: core.Ref(folder.ID)}); err != nil {
		log.Fatal(err)
	}

	res, err := store.Delete(alice, folder.ID, core.DeleteAuto)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Outcome, res.Affected)

	restored, err := store.Restore(alice, folder.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(restored.Node.Name, restored.ChildrenCount)
	// Output:
	// trashed 2
	// Projects 1
}

// ExampleNewManager shows the optimistic client refusing a move into a descendant.
func ExampleNewManager() {
	ctx := context.Background()
	store, err := arbor.New(ctx, "", arbor.WithAdapter(arbor.AdapterMemory))
	if err != nil {
		log.Fatal(err)
	}

	m := arbor.NewManager(store, "alice")
	defer m.Close()

	outer, _ := m.Create(ctx, core.CreateInput{Name: "Outer", IsFolder: true})
	inner, _ := m.Create(ctx, core.CreateInput{Name: "Inner", IsFolder: true, ParentID: core.Ref(outer.ID)})

	_, err = m.Move(ctx, outer.ID, core.Ref(inner.ID))
	fmt.Println(core.KindOf(err))
	// Output:
	// invalid_transition
}
