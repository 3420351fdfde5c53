package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/arbor/pkg/core"
)

// Watch reports node files created, changed or removed by any process.
// pattern is a doublestar glob over "<owner>/<file>" paths; empty means all.
// The channel is closed when ctx ends.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := r.addOwnerDirs(watcher); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	_ = watcher.Add(filepath.Join(r.Path, ".git"))

	// Prime the index so a later reconcile only reports real differences.
	if err := r.primeIndex(ctx); err != nil {
		r.logger.Debug("index priming failed", "error", err)
	}

	events := make(chan core.Event, 64)
	w := &watchLoop{
		repo:      r,
		pattern:   pattern,
		events:    events,
		watcher:   watcher,
		debouncer: newDebouncer(50 * time.Millisecond),
	}
	r.setWatcherActive(true)

	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		r.reportError(fmt.Errorf("watcher stopped: %w", err))
	}))
	return events, nil
}

// Reconcile compares the files on disk with the index and returns the
// differences as events, updating the index as it goes.
func (r *Repository) Reconcile(ctx context.Context) ([]core.Event, error) {
	defer r.recordReconcile()

	owners, err := os.ReadDir(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}

	seen := make(map[string]bool)
	var out []core.Event
	now := time.Now().Unix()

	for _, o := range owners {
		if !o.IsDir() || !validName(o.Name()) {
			continue
		}
		owner := o.Name()
		files, err := os.ReadDir(filepath.Join(r.Path, owner))
		if err != nil {
			continue
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if f.IsDir() || !r.isNodeFile(f.Name()) {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			relPath := owner + "/" + f.Name()
			seen[relPath] = true

			_, known := r.cache.Lookup(relPath)
			if _, fresh := r.cache.Get(relPath, info.ModTime()); fresh {
				continue
			}
			n, err := r.read(filepath.Join(r.Path, owner, f.Name()), owner)
			if err != nil {
				continue
			}
			r.cache.Set(relPath, &indexEntry{Owner: owner, Meta: toFrontmatter(n), LastModified: info.ModTime()})

			t := core.EventModify
			if !known {
				t = core.EventCreate
			}
			out = append(out, core.Event{Type: t, ID: n.ID, Owner: owner, Timestamp: now})
		}
	}

	r.cache.Range(func(relPath string, entry *indexEntry) bool {
		if !seen[relPath] {
			out = append(out, core.Event{Type: core.EventDelete, ID: entry.Meta.ID, Owner: entry.Owner, Timestamp: now})
		}
		return true
	})
	r.cache.Prune("", seen)

	if err := r.cache.Save(); err != nil {
		r.logger.Debug("failed to save index cache", "error", err)
	}
	return out, nil
}

func (r *Repository) primeIndex(ctx context.Context) error {
	_, err := r.Reconcile(ctx)
	return err
}

func (r *Repository) addOwnerDirs(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(r.Path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.Path, err)
	}
	entries, err := os.ReadDir(r.Path)
	if err != nil {
		return fmt.Errorf("failed to list store: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && validName(e.Name()) {
			if err := watcher.Add(filepath.Join(r.Path, e.Name())); err != nil {
				return fmt.Errorf("failed to watch %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

func (r *Repository) reportError(err error) {
	if r.config.ErrorHandler != nil {
		r.config.ErrorHandler(err)
		return
	}
	r.logger.Error("fs store error", "error", err)
}

type watchLoop struct {
	repo      *Repository
	pattern   string
	events    chan core.Event
	watcher   *fsnotify.Watcher
	debouncer *debouncer
}

func (w *watchLoop) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if w.repo.logger.Enabled(ctx, slog.LevelDebug) {
				w.repo.logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.repo.logger.Error("watcher panic", "error", err)
			}
		}
	}()
	defer close(w.events)
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	gitLocked := false
	err = w.loop(ctx, &gitLocked)

	// Timers still pending would send on a closed channel.
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchLoop) loop(ctx context.Context, gitLocked *bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errWatcherClosed
			}

			if locked, handled := w.gitLockEvent(event); handled {
				wasLocked := *gitLocked
				*gitLocked = locked
				if wasLocked && !locked {
					w.reconcile(ctx)
				}
				continue
			}
			if *gitLocked {
				continue
			}
			w.handle(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errWatcherClosed
			}
			w.repo.reportError(fmt.Errorf("fsnotify: %w", wErr))
		}
	}
}

// gitLockEvent tracks .git/index.lock: while git holds it, file events are
// checkout noise and are replaced by a reconcile once it is released.
func (w *watchLoop) gitLockEvent(event fsnotify.Event) (locked, handled bool) {
	if filepath.Base(event.Name) != "index.lock" || filepath.Base(filepath.Dir(event.Name)) != ".git" {
		return false, false
	}
	// Our own commits take the index lock too; they are already reflected in the index.
	if event.Has(fsnotify.Create) {
		w.repo.logger.Debug("git operation detected, pausing watcher")
		return true, true
	}
	w.repo.logger.Debug("git operation finished, reconciling")
	return false, true
}

func (w *watchLoop) reconcile(ctx context.Context) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		events, err := w.repo.Reconcile(ctx)
		if err != nil {
			return err
		}
		for _, e := range events {
			if w.matches(e.Owner + "/" + e.ID + w.repo.config.Format) {
				w.deliver(ctx, e)
			}
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		w.repo.reportError(fmt.Errorf("reconcile: %w", err))
	}))
}

func (w *watchLoop) handle(ctx context.Context, event fsnotify.Event) {
	relPath := w.repo.rel(event.Name)
	parts := strings.Split(relPath, "/")

	// A new owner directory: start watching it.
	if len(parts) == 1 && event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && validName(parts[0]) {
			_ = w.watcher.Add(event.Name)
		}
		return
	}
	if len(parts) != 2 || !validName(parts[0]) || !w.repo.isNodeFile(parts[1]) {
		return
	}
	if !w.matches(relPath) {
		return
	}

	// The event kind is decided when the burst settles, against the index,
	// so writes made through this repository are not echoed back.
	w.debouncer.add(relPath, func() {
		if e, ok := w.external(relPath); ok {
			w.deliver(ctx, e)
		}
	})
}

// external classifies the current state of relPath against the index and
// records it. ok is false when the index already reflects the file.
func (w *watchLoop) external(relPath string) (core.Event, bool) {
	owner, file, _ := strings.Cut(relPath, "/")
	id := strings.TrimSuffix(file, filepath.Ext(file))
	path := filepath.Join(w.repo.Path, owner, file)
	e := core.Event{ID: id, Owner: owner, Timestamp: time.Now().Unix()}

	prev, known := w.repo.cache.Lookup(relPath)
	info, err := os.Stat(path)
	if err != nil {
		if !known {
			return e, false
		}
		w.repo.cache.Delete(relPath)
		e.ID = prev.Meta.ID
		e.Type = core.EventDelete
		return e, true
	}
	if _, fresh := w.repo.cache.Get(relPath, info.ModTime()); fresh {
		return e, false
	}

	n, err := w.repo.read(path, owner)
	if err != nil {
		w.repo.logger.Debug("ignoring unreadable node file", "path", relPath, "error", err)
		return e, false
	}
	w.repo.cache.Set(relPath, &indexEntry{Owner: owner, Meta: toFrontmatter(n), LastModified: info.ModTime()})

	e.ID = n.ID
	e.Type = core.EventCreate
	if known {
		e.Type = core.EventModify
	}
	return e, true
}

func (w *watchLoop) matches(relPath string) bool {
	ok, err := doublestar.Match(w.pattern, relPath)
	return err == nil && ok
}

func (w *watchLoop) deliver(ctx context.Context, e core.Event) {
	// The channel may already be closed if shutdown outlived the wait.
	defer func() { _ = recover() }()
	select {
	case w.events <- e:
	case <-ctx.Done():
	}
}

// debouncer runs only the last callback of a burst per key.
type debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
	stopped bool
}

func newDebouncer(wait time.Duration) *debouncer {
	return &debouncer{
		wait:   wait,
		timers: make(map[string]*time.Timer),
	}
}

func (d *debouncer) add(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.timers[key]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.wait, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[key] == t {
			delete(d.timers, key)
		}
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = t
}

func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
