package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/core"
)

func main() {
	adapter := flag.String("adapter", arbor.AdapterFS, "Store to benchmark: fs, memory or sqlite")
	fanout := flag.Int("fanout", 10, "Children per folder")
	depth := flag.Int("depth", 3, "Folder levels below the root folder")
	keep := flag.Bool("keep", false, "Keep the benchmark vault after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "arbor_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	uri := benchDir
	if *adapter == arbor.AdapterSQLite {
		uri = filepath.Join(benchDir, "bench.db")
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	open := func() *arbor.Store {
		store, err := arbor.New(context.Background(), uri,
			arbor.WithAdapter(*adapter),
			arbor.WithLogger(logger),
			arbor.WithAutoInit(true),
			arbor.WithVersioning(false),
		)
		if err != nil {
			panic(err)
		}
		return store
	}

	store := open()
	ctx := core.WithOwner(context.Background(), "bench")

	fmt.Printf("Generating tree (fanout %d, depth %d) with the %s adapter...\n", *fanout, *depth, *adapter)
	start := time.Now()
	root, err := store.Create(ctx, core.CreateInput{Name: "root", IsFolder: true})
	if err != nil {
		panic(err)
	}
	total := 1 + grow(ctx, store, root.ID, *fanout, *depth)
	fmt.Printf("Generated %d nodes in %v\n", total, time.Since(start))

	step := func(name string, fn func() error) time.Duration {
		start := time.Now()
		if err := fn(); err != nil {
			panic(fmt.Errorf("%s: %w", name, err))
		}
		d := time.Since(start)
		fmt.Printf("  %-14s %v\n", name, d)
		return d
	}

	fmt.Println("Running...")
	cold := step("list (cold)", func() error { _, err := store.ListActive(ctx); return err })
	if *adapter != arbor.AdapterMemory {
		_ = store.Close(ctx)
		store = open()
	}
	warm := step("list (reopen)", func() error { _, err := store.ListActive(ctx); return err })
	trash := step("soft delete", func() error { _, err := store.Delete(ctx, root.ID, core.DeleteSoft); return err })
	restore := step("restore", func() error { _, err := store.Restore(ctx, root.ID); return err })
	step("soft delete", func() error { _, err := store.Delete(ctx, root.ID, core.DeleteSoft); return err })
	purge := step("purge", func() error { _, err := store.Delete(ctx, root.ID, core.DeletePermanent); return err })
	_ = store.Close(ctx)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d nodes, %s):\n", total, *adapter)
	fmt.Printf("  List cold:   %v\n", cold)
	fmt.Printf("  List reopen: %v\n", warm)
	fmt.Printf("  Trash:       %v (%v/node)\n", trash, trash/time.Duration(total))
	fmt.Printf("  Restore:     %v\n", restore)
	fmt.Printf("  Purge:       %v\n", purge)
	fmt.Printf("--------------------------------------------------\n")
}

// grow adds fanout children under parent: folders while depth remains, notes
// on the last level. It returns the number of nodes created.
func grow(ctx context.Context, store *arbor.Store, parent string, fanout, depth int) int {
	created := 0
	for i := 0; i < fanout; i++ {
		in := core.CreateInput{
			Name:     fmt.Sprintf("node %d-%d", depth, i),
			ParentID: core.Ref(parent),
			IsFolder: depth > 0,
		}
		if !in.IsFolder {
			in.Content = fmt.Sprintf("# Benchmark note %d\nThis is a test note.", i)
		}
		n, err := store.Create(ctx, in)
		if err != nil {
			panic(err)
		}
		created++
		if depth > 0 {
			created += grow(ctx, store, n.ID, fanout, depth-1)
		}
	}
	return created
}
