// Package service is the authoritative API layer over a Node Store. It scopes
// every call to the owner carried by the context, validates transitions and runs
// the cascade engine for trash, restore and purge.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arbor/pkg/cascade"
	"github.com/aretw0/arbor/pkg/core"
)

// Service handles the business logic for nodes.
type Service struct {
	repo   core.Repository
	engine *cascade.Engine
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	calls map[string]int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for trash timestamps and stats.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new Service over repo.
func New(repo core.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		calls:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = cascade.NewEngine(repo, cascade.WithClock(s.now), cascade.WithLogger(s.logger))
	return s
}

// Repository exposes the underlying store.
func (s *Service) Repository() core.Repository {
	return s.repo
}

// ListRoot returns the active root-level nodes.
func (s *Service) ListRoot(ctx context.Context) ([]core.Node, error) {
	return s.list(ctx, "list-root", core.Filter{RootOnly: true, State: core.StateActive})
}

// ListChildren returns the active direct children of parentID.
func (s *Service) ListChildren(ctx context.Context, parentID string) ([]core.Node, error) {
	return s.list(ctx, "list-children", core.Filter{ParentID: &parentID, State: core.StateActive})
}

// ListTrash returns every trashed node.
func (s *Service) ListTrash(ctx context.Context) ([]core.Node, error) {
	return s.list(ctx, "list-trash", core.Filter{State: core.StateTrashed})
}

// ListActive returns every active node.
func (s *Service) ListActive(ctx context.Context) ([]core.Node, error) {
	return s.list(ctx, "list-active", core.Filter{State: core.StateActive})
}

func (s *Service) list(ctx context.Context, op string, f core.Filter) ([]core.Node, error) {
	owner, err := s.begin(ctx, op)
	if err != nil {
		return nil, err
	}
	f.Owner = owner
	nodes, err := s.repo.Find(ctx, f)
	if err != nil {
		return nil, core.AsError(op, "", err)
	}
	SortRecent(nodes)
	for i := range nodes {
		nodes[i] = nodes[i].Summary()
	}
	return nodes, nil
}

// Get returns the full node, content included.
func (s *Service) Get(ctx context.Context, id string) (core.Node, error) {
	owner, err := s.begin(ctx, "get")
	if err != nil {
		return core.Node{}, err
	}
	return s.get(ctx, "get", owner, id)
}

// Create stores a new folder or note.
func (s *Service) Create(ctx context.Context, in core.CreateInput) (core.Node, error) {
	owner, err := s.begin(ctx, "create")
	if err != nil {
		return core.Node{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return core.Node{}, core.Errorf(core.KindInvalidTransition, "create", "", "name cannot be empty")
	}
	if in.ParentID != nil {
		if _, err := s.activeFolder(ctx, "create", owner, *in.ParentID); err != nil {
			return core.Node{}, err
		}
	}

	var n core.Node
	if in.IsFolder {
		n = core.NewFolder(owner, name, in.ParentID)
	} else {
		n = core.NewLeaf(owner, name, in.ParentID, in.Content)
	}

	if in.DuplicateFromID != "" {
		src, err := s.get(ctx, "create", owner, in.DuplicateFromID)
		if err != nil {
			return core.Node{}, err
		}
		if !in.IsFolder && !src.IsFolder() {
			n.Body = core.Leaf{Content: src.Content()}
		}
		n.Tags = append([]string(nil), src.Tags...)
	}

	created, err := s.repo.Insert(ctx, n)
	if err != nil {
		return core.Node{}, core.AsError("create", "", err)
	}
	s.logger.Debug("node created", "id", created.ID, "folder", created.IsFolder(), "parent", created.Parent())
	return created, nil
}

// Update applies the allow-listed fields of p. A parent change goes through the
// same checks as Move.
func (s *Service) Update(ctx context.Context, id string, p core.Patch) (core.Node, error) {
	owner, err := s.begin(ctx, "update")
	if err != nil {
		return core.Node{}, err
	}
	n, err := s.get(ctx, "update", owner, id)
	if err != nil {
		return core.Node{}, err
	}
	if n.Trashed() {
		return core.Node{}, core.Errorf(core.KindInvalidTransition, "update", id, "cannot update a node in trash")
	}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return core.Node{}, core.Errorf(core.KindInvalidTransition, "update", id, "name cannot be empty")
		}
		n.Name = name
	}
	if p.Content != nil {
		if n.IsFolder() {
			return core.Node{}, core.Errorf(core.KindInvalidTransition, "update", id, "folders have no content")
		}
		n.Body = core.Leaf{Content: *p.Content}
	}
	if p.Parent != nil && !core.SameParent(n.ParentID, p.Parent.ID) {
		if err := s.checkMove(ctx, owner, n, p.Parent.ID); err != nil {
			return core.Node{}, err
		}
		n.ParentID = p.Parent.ID
	}

	if err := s.repo.Update(ctx, n); err != nil {
		return core.Node{}, core.AsError("update", id, err)
	}
	return s.get(ctx, "update", owner, id)
}

// Move reparents a node. parentID == nil moves it to the root.
func (s *Service) Move(ctx context.Context, id string, parentID *string) (core.Node, error) {
	owner, err := s.begin(ctx, "move")
	if err != nil {
		return core.Node{}, err
	}
	n, err := s.get(ctx, "move", owner, id)
	if err != nil {
		return core.Node{}, err
	}
	if n.Trashed() {
		return core.Node{}, core.Errorf(core.KindInvalidTransition, "move", id, "cannot move a node in trash")
	}
	if core.SameParent(n.ParentID, parentID) {
		return n, nil
	}
	if err := s.checkMove(ctx, owner, n, parentID); err != nil {
		return core.Node{}, err
	}

	n.ParentID = parentID
	if err := s.repo.Update(ctx, n); err != nil {
		return core.Node{}, core.AsError("move", id, err)
	}
	s.logger.Debug("node moved", "id", id, "parent", n.Parent())
	return s.get(ctx, "move", owner, id)
}

// checkMove enforces the move preconditions: an active folder of the same owner
// as the new parent, and no cycle.
func (s *Service) checkMove(ctx context.Context, owner string, n core.Node, parentID *string) error {
	if parentID == nil {
		return nil
	}
	if *parentID == n.ID {
		return core.Errorf(core.KindInvalidTransition, "move", n.ID, "cannot move a folder inside itself")
	}
	if _, err := s.activeFolder(ctx, "move", owner, *parentID); err != nil {
		return err
	}
	if !n.IsFolder() {
		return nil
	}
	inside, err := cascade.Contains(ctx, cascade.RepositoryLister{Repo: s.repo}, owner, n.ID, *parentID, core.StateActive)
	if err != nil {
		return core.AsError("move", n.ID, err)
	}
	if inside {
		return core.Errorf(core.KindInvalidTransition, "move", n.ID, "cannot move a folder inside its own descendant")
	}
	return nil
}

// Delete trashes or purges a node according to mode.
func (s *Service) Delete(ctx context.Context, id string, mode core.DeleteMode) (core.DeleteResult, error) {
	owner, err := s.begin(ctx, "delete")
	if err != nil {
		return core.DeleteResult{}, err
	}
	n, err := s.get(ctx, "delete", owner, id)
	if err != nil {
		return core.DeleteResult{}, err
	}

	if mode == "" {
		mode = core.DeleteAuto
	}
	purge := false
	switch mode {
	case core.DeleteAuto:
		purge = n.Trashed()
	case core.DeleteSoft:
		if n.Trashed() {
			return s.resume(ctx, n)
		}
	case core.DeletePermanent:
		purge = true
	default:
		return core.DeleteResult{}, core.Errorf(core.KindInvalidTransition, "delete", id, "unknown delete mode %q", mode)
	}

	if purge {
		report, err := s.engine.Purge(ctx, n)
		if err != nil {
			s.logFailure("purge", id, err)
			return core.DeleteResult{}, err
		}
		return core.DeleteResult{ID: id, Outcome: core.OutcomePurged, Affected: report.Written, Message: "Note deleted permanently"}, nil
	}

	report, err := s.engine.SoftDelete(ctx, n)
	if err != nil {
		s.logFailure("trash", id, err)
		return core.DeleteResult{}, err
	}
	return core.DeleteResult{ID: id, Outcome: core.OutcomeTrashed, Affected: report.Written, Message: "Note moved to trash"}, nil
}

// resume re-applies a soft delete to an already trashed node, completing any
// descendants an earlier partial cascade left behind.
func (s *Service) resume(ctx context.Context, n core.Node) (core.DeleteResult, error) {
	report, err := s.engine.Resume(ctx, n)
	if err != nil {
		s.logFailure("trash", n.ID, err)
		return core.DeleteResult{}, err
	}
	if report.Written == 0 {
		return core.DeleteResult{ID: n.ID, Outcome: core.OutcomeNoop, Message: "Note already in trash"}, nil
	}
	return core.DeleteResult{ID: n.ID, Outcome: core.OutcomeTrashed, Affected: report.Written, Message: "Note moved to trash"}, nil
}

// Restore brings a trashed node and its trashed subtree back.
func (s *Service) Restore(ctx context.Context, id string) (core.RestoreResult, error) {
	owner, err := s.begin(ctx, "restore")
	if err != nil {
		return core.RestoreResult{}, err
	}
	n, err := s.get(ctx, "restore", owner, id)
	if err != nil {
		return core.RestoreResult{}, err
	}
	report, err := s.engine.Restore(ctx, n)
	if err != nil {
		s.logFailure("restore", id, err)
		return core.RestoreResult{}, err
	}
	return core.RestoreResult{Node: report.Target, ChildrenCount: len(report.Descendants)}, nil
}

func (s *Service) get(ctx context.Context, op, owner, id string) (core.Node, error) {
	if id == "" {
		return core.Node{}, core.Errorf(core.KindNotFound, op, id, "node ID cannot be empty")
	}
	n, err := s.repo.Get(ctx, owner, id)
	if err != nil {
		return core.Node{}, core.AsError(op, id, err)
	}
	return n, nil
}

func (s *Service) activeFolder(ctx context.Context, op, owner, id string) (core.Node, error) {
	parent, err := s.repo.Get(ctx, owner, id)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.Node{}, core.AsError(op, id, err)
	}
	if err != nil || !parent.IsFolder() || parent.Trashed() {
		return core.Node{}, core.Errorf(core.KindInvalidTransition, op, id, "parent folder not found or not a folder")
	}
	return parent, nil
}

func (s *Service) begin(ctx context.Context, op string) (string, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
	return owner, nil
}

func (s *Service) logFailure(op, id string, err error) {
	if core.KindOf(err) == core.KindPartialCascade {
		s.logger.Error("cascade partially applied", "op", op, "id", id, "error", err)
		return
	}
	s.logger.Debug("operation refused", "op", op, "id", id, "error", err)
}

// SortRecent orders nodes by UpdatedAt descending, then by ID.
func SortRecent(nodes []core.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if !nodes[i].UpdatedAt.Equal(nodes[j].UpdatedAt) {
			return nodes[i].UpdatedAt.After(nodes[j].UpdatedAt)
		}
		return nodes[i].ID < nodes[j].ID
	})
}

var (
	_ core.API     = (*Service)(nil)
	_ core.Backend = (*Service)(nil)
)
