package fs

import (
	"slices"
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState is the snapshot reported to introspection tooling.
type RepositoryState struct {
	Path          string         `json:"path"`
	SystemDir     string         `json:"system_dir"`
	Format        string         `json:"format"`
	Formats       []string       `json:"formats"`
	Gitless       bool           `json:"gitless"`
	ReadOnly      bool           `json:"read_only"`
	Indexed       int            `json:"indexed"`
	Trashed       int            `json:"trashed"`
	PerOwner      map[string]int `json:"per_owner,omitempty"`
	WatcherActive bool           `json:"watcher_active"`
	LastReconcile *time.Time     `json:"last_reconcile,omitempty"`
}

// State implements introspection.Introspectable. Counts come from the
// metadata index, so they lag files written behind the watcher's back.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := RepositoryState{
		Path:          r.Path,
		SystemDir:     r.config.SystemDir,
		Format:        r.config.Format,
		Gitless:       r.config.Gitless,
		ReadOnly:      r.readOnly,
		WatcherActive: r.watcherActive,
		LastReconcile: r.lastReconcile,
	}
	for ext := range r.serializers {
		st.Formats = append(st.Formats, ext)
	}
	slices.Sort(st.Formats)

	r.cache.Range(func(_ string, e *indexEntry) bool {
		st.Indexed++
		if e.Meta.Deleted != nil {
			st.Trashed++
		}
		if st.PerOwner == nil {
			st.PerOwner = make(map[string]int)
		}
		st.PerOwner[e.Owner]++
		return true
	})
	return st
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string { return "node-store" }

var (
	_ introspection.Introspectable = (*Repository)(nil)
	_ introspection.Component      = (*Repository)(nil)
)

func (r *Repository) setWatcherActive(active bool) {
	r.mu.Lock()
	r.watcherActive = active
	r.mu.Unlock()
}

func (r *Repository) recordReconcile() {
	now := time.Now()
	r.mu.Lock()
	r.lastReconcile = &now
	r.mu.Unlock()
}
