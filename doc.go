// Package arbor is the composition root of a hierarchical note store.
//
// Notes and folders form a forest per owner. Deleting a folder moves its whole
// subtree to the trash, restoring brings it back, and purging removes it. The
// same cascade rules run on the authoritative service and inside the optimistic
// client, which applies every change locally first and rolls it back when the
// store refuses it.
//
// Stores are pluggable through core.Repository: plain files (Markdown or JSON
// with frontmatter, optionally versioned with git), SQLite, Neo4j and memory.
// The service can be served over HTTP and the client can talk to it remotely.
//
// Usage:
//
//	store, err := arbor.New(ctx, "./vault", arbor.WithAutoInit(true))
//	if err != nil {
//		return err
//	}
//	defer store.Close(ctx)
//
//	m := arbor.NewManager(store, "alice")
//	folder, err := m.Create(ctx, core.CreateInput{Name: "Projects", IsFolder: true})
package arbor
