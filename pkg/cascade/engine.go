package cascade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/core"
)

// Report describes the outcome of a cascade.
type Report struct {
	Transition Transition
	Target     core.Node
	// Descendants holds the post-transition copies of every descendant reached.
	Descendants []core.Node
	// Written counts records actually updated or removed. Descendants already in
	// the requested state are skipped.
	Written int
}

// Engine applies transitions against a Node Store. The store offers no
// multi-record transaction, so the target is written first and descendants after
// it; a descendant failure is reported as a partial cascade.
type Engine struct {
	repo   core.Repository
	lister ChildLister
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used to stamp soft deletes.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLister overrides how children are discovered (defaults to the repository).
func WithLister(l ChildLister) Option {
	return func(e *Engine) { e.lister = l }
}

// NewEngine creates an Engine over repo.
func NewEngine(repo core.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		lister: RepositoryLister{Repo: repo},
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SoftDelete moves target and its whole subtree to the trash.
func (e *Engine) SoftDelete(ctx context.Context, target core.Node) (Report, error) {
	if err := SoftDelete.CheckTarget(target); err != nil {
		return Report{}, err
	}
	return e.apply(ctx, SoftDelete, target, e.now(), true)
}

// Resume finishes the soft delete of an already trashed target: descendants left
// active by an earlier partial cascade are stamped with the target's timestamp.
// The target itself is not written.
func (e *Engine) Resume(ctx context.Context, target core.Node) (Report, error) {
	if !target.Trashed() {
		return Report{}, core.Errorf(core.KindInvalidTransition, string(SoftDelete), target.ID, "node is not in trash")
	}
	return e.apply(ctx, SoftDelete, target, *target.DeletedAt, false)
}

// Restore brings target and its trashed subtree back, after checking that the
// parent of target is present and active. A refused restore writes nothing.
func (e *Engine) Restore(ctx context.Context, target core.Node) (Report, error) {
	if err := Restore.CheckTarget(target); err != nil {
		return Report{}, err
	}
	if target.ParentID != nil {
		parent, err := e.repo.Get(ctx, target.Owner, *target.ParentID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			return Report{}, CheckRestoreParent(target, nil)
		case err != nil:
			return Report{}, core.AsError(string(Restore), target.ID, err)
		}
		if err := CheckRestoreParent(target, &parent); err != nil {
			return Report{}, err
		}
	}
	return e.apply(ctx, Restore, target, e.now(), true)
}

// Purge permanently removes target and its whole subtree. Target must be in trash.
func (e *Engine) Purge(ctx context.Context, target core.Node) (Report, error) {
	if err := Purge.CheckTarget(target); err != nil {
		return Report{}, err
	}
	return e.apply(ctx, Purge, target, e.now(), true)
}

func (e *Engine) apply(ctx context.Context, t Transition, target core.Node, now time.Time, writeTarget bool) (Report, error) {
	descendants, err := Closure(ctx, e.lister, target.Owner, target.ID, t.Scope())
	if err != nil {
		return Report{}, core.AsError(string(t), target.ID, err)
	}

	planned := Plan(t, target, descendants, now)
	report := Report{Transition: t, Target: planned[0], Descendants: planned[1:]}

	// Target first: if it fails nothing has changed and the error is returned as is.
	var applied []string
	if writeTarget {
		if err := e.write(ctx, t, planned[0]); err != nil {
			return Report{}, core.AsError(string(t), target.ID, err)
		}
		report.Written++
		applied = append(applied, target.ID)
	}

	var failed []string
	var firstErr error
	for i, n := range planned[1:] {
		if !e.needsWrite(t, descendants[i], n) {
			continue
		}
		err := e.write(ctx, t, n)
		switch {
		case err == nil:
			report.Written++
			applied = append(applied, n.ID)
		case errors.Is(err, core.ErrNotFound):
			// Removed concurrently by another session; nothing left to do.
			e.logger.Debug("cascade target vanished", "transition", t, "id", n.ID)
		default:
			e.logger.Warn("cascade write failed", "transition", t, "id", n.ID, "error", err)
			failed = append(failed, n.ID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(failed) > 0 {
		return report, &core.Error{
			Kind:    core.KindPartialCascade,
			Op:      string(t),
			ID:      target.ID,
			Msg:     "cascade stopped part way, re-fetch the subtree",
			Err:     firstErr,
			Applied: applied,
			Failed:  failed,
		}
	}

	e.logger.Debug("cascade applied", "transition", t, "id", target.ID, "descendants", len(descendants), "written", report.Written)
	return report, nil
}

func (e *Engine) needsWrite(t Transition, before, after core.Node) bool {
	if t == Purge {
		return true
	}
	switch {
	case before.DeletedAt == nil && after.DeletedAt == nil:
		return false
	case before.DeletedAt == nil || after.DeletedAt == nil:
		return true
	default:
		return !before.DeletedAt.Equal(*after.DeletedAt)
	}
}

func (e *Engine) write(ctx context.Context, t Transition, n core.Node) error {
	if t == Purge {
		return e.repo.Delete(ctx, n.Owner, n.ID)
	}
	return e.repo.Update(ctx, n)
}
