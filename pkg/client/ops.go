package client

import (
	"context"
	"strings"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/arbor/pkg/cascade"
	"github.com/aretw0/arbor/pkg/core"
)

// mutation is one optimistic operation: a local effect, the remote call that
// makes it authoritative and an optional commit once the store agreed.
type mutation struct {
	op    string
	id    string
	event core.EventType

	// apply runs under the state lock and returns the exact inverse of what it
	// changed. A nil undo means nothing was applied locally.
	apply func(s *Snapshot) (undo func(*Snapshot), err error)
	call  func(ctx context.Context) error
	// commit runs under the state lock after a successful call.
	commit func(s *Snapshot)
	// affected lists folders to re-fetch when the store reports a partial cascade.
	// The empty ID stands for the root.
	affected []string
	// scope, when set, returns every node the mutation may touch. It is read
	// under the state lock before queueing.
	scope func(s *Snapshot) []string
}

// run serializes m behind earlier mutations of the nodes it touches and executes it on a
// context detached from the caller. When ctx ends first the caller gets a
// transient error while the mutation still settles in the background.
func (m *Manager) run(ctx context.Context, mu *mutation) error {
	keys := []string{mu.id}
	if mu.scope != nil {
		m.mu.Lock()
		keys = mu.scope(&m.state)
		m.mu.Unlock()
	}
	t := m.keys.enqueue(keys...)
	done := make(chan error, 1)

	m.inflight.Add(1)
	lifecycle.Go(context.WithoutCancel(ctx), func(bg context.Context) error {
		defer m.inflight.Done()
		defer t.release()
		t.wait()
		err := m.execute(bg, mu)
		t.release()
		done <- err
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		m.logger.Error("mutation panicked", "op", mu.op, "id", mu.id, "error", err)
		select {
		case done <- core.Wrap(core.KindTransient, mu.op, mu.id, err):
		default:
		}
	}))

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		m.logger.Debug("request abandoned, settling in background", "op", mu.op, "id", mu.id)
		return core.Wrap(core.KindTransient, mu.op, mu.id, ctx.Err())
	}
}

func (m *Manager) execute(ctx context.Context, mu *mutation) error {
	m.mu.Lock()
	undo, err := mu.apply(&m.state)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(m.scoped(ctx), m.timeout)
	defer cancel()

	err = mu.call(rctx)
	if err == nil {
		if mu.commit != nil {
			m.mu.Lock()
			mu.commit(&m.state)
			m.mu.Unlock()
		}
		m.emit(core.NewEvent(mu.event, m.owner, mu.id))
		return nil
	}

	cerr := core.AsError(mu.op, mu.id, err)
	if undo != nil {
		m.mu.Lock()
		undo(&m.state)
		m.mu.Unlock()
	}
	if cerr.Kind == core.KindPartialCascade {
		// Part of the cascade was written: the mirror is rolled back, then the
		// store is read again for what actually moved.
		m.logger.Warn("partial cascade, re-fetching affected state", "op", mu.op, "id", mu.id, "failed", cerr.Failed)
		m.reconcile(ctx, mu.affected)
		ev := core.NewEvent(mu.event, m.owner, mu.id)
		ev.Err = cerr
		m.emit(ev)
		return cerr
	}

	m.logger.Debug("rolled back", "op", mu.op, "id", mu.id, "error", cerr)
	ev := core.NewEvent(core.EventRollback, m.owner, mu.id)
	ev.Err = cerr
	m.emit(ev)
	return cerr
}

func (m *Manager) reconcile(ctx context.Context, folders []string) {
	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.FetchTrash(rctx, true); err != nil {
		m.logger.Warn("trash re-fetch failed", "error", err)
	}
	for _, id := range folders {
		if id == "" {
			if err := m.mergeRoot(rctx); err != nil {
				m.logger.Warn("root re-fetch failed", "error", err)
			}
			continue
		}
		m.mu.Lock()
		loaded := m.state.Loaded[id]
		m.mu.Unlock()
		if !loaded {
			continue
		}
		if _, err := m.FetchChildren(rctx, id); err != nil {
			m.logger.Warn("folder re-fetch failed", "id", id, "error", err)
		}
	}
}

// mergeRoot re-reads the root level without resetting the rest of the session.
func (m *Manager) mergeRoot(ctx context.Context) error {
	roots, err := m.remote.ListRoot(m.scoped(ctx))
	if err != nil {
		return core.AsError("fetch-root", "", err)
	}
	fresh := make(map[string]bool, len(roots))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range roots {
		fresh[n.ID] = true
		m.state.Active[n.ID] = n
	}
	for id, n := range m.state.Active {
		if n.ParentID == nil && !fresh[id] {
			delete(m.state.Active, id)
		}
	}
	return nil
}

// cascadeScope returns the target and its known descendants in set.
func cascadeScope(id string, set func(s *Snapshot) map[string]core.Node, state core.State) func(*Snapshot) []string {
	return func(s *Snapshot) []string {
		keys := []string{id}
		if target, ok := set(s)[id]; ok {
			for _, n := range closure(set(s), target, state) {
				keys = append(keys, n.ID)
			}
		}
		return keys
	}
}

func activeSet(s *Snapshot) map[string]core.Node { return s.Active }
func trashSet(s *Snapshot) map[string]core.Node { return s.Trash }

// folderIDs returns the target's parent, the target and every folder among nodes.
func folderIDs(target core.Node, nodes []core.Node) []string {
	out := []string{target.Parent(), target.ID}
	for _, n := range nodes {
		if n.IsFolder() {
			out = append(out, n.ID)
		}
	}
	return out
}

func noop(*Snapshot) (func(*Snapshot), error) { return nil, nil }

// Create stores a new node. Nothing is shown locally before the store assigns an ID.
func (m *Manager) Create(ctx context.Context, in core.CreateInput) (core.Node, error) {
	var created core.Node
	mu := &mutation{
		op:    "create",
		event: core.EventCreate,
		apply: noop,
		call: func(ctx context.Context) error {
			n, err := m.remote.Create(ctx, in)
			created = n
			return err
		},
		commit: func(s *Snapshot) {
			s.Active[created.ID] = created.Summary()
		},
	}
	// Creates have no ID yet; serialize them behind the parent instead.
	if in.ParentID != nil {
		mu.id = *in.ParentID
	}
	if err := m.run(ctx, mu); err != nil {
		return core.Node{}, err
	}
	return created, nil
}

// Rename changes the name of a node.
func (m *Manager) Rename(ctx context.Context, id, name string) (core.Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Node{}, core.Errorf(core.KindInvalidTransition, "rename", id, "name cannot be empty")
	}
	var updated core.Node
	mu := &mutation{
		op:    "rename",
		id:    id,
		event: core.EventModify,
		apply: func(s *Snapshot) (func(*Snapshot), error) {
			prev, ok := s.Find(id)
			if !ok {
				return nil, nil
			}
			return s.edit(id,
				func(n *core.Node) { n.Name = name },
				func(n *core.Node) { n.Name = prev.Name },
			), nil
		},
		call: func(ctx context.Context) error {
			n, err := m.remote.Update(ctx, id, core.Patch{Name: &name})
			updated = n
			return err
		},
		commit: func(s *Snapshot) {
			s.edit(id, func(n *core.Node) { n.UpdatedAt = updated.UpdatedAt }, nil)
		},
	}
	if err := m.run(ctx, mu); err != nil {
		return core.Node{}, err
	}
	return updated, nil
}

// UpdateContent replaces the content of a note.
func (m *Manager) UpdateContent(ctx context.Context, id, content string) (core.Node, error) {
	var updated core.Node
	mu := &mutation{
		op:    "update-content",
		id:    id,
		event: core.EventModify,
		apply: func(s *Snapshot) (func(*Snapshot), error) {
			if n, ok := s.Find(id); ok && n.IsFolder() {
				return nil, core.Errorf(core.KindInvalidTransition, "update-content", id, "folders have no content")
			}
			// List copies carry no content, so only the open node is rewritten.
			if s.Open == nil || s.Open.ID != id {
				return nil, nil
			}
			if s.Open.IsFolder() {
				return nil, core.Errorf(core.KindInvalidTransition, "update-content", id, "folders have no content")
			}
			before := s.Open.Body
			s.Open.Body = core.Leaf{Content: content}
			return func(st *Snapshot) {
				if st.Open != nil && st.Open.ID == id {
					st.Open.Body = before
				}
			}, nil
		},
		call: func(ctx context.Context) error {
			n, err := m.remote.Update(ctx, id, core.Patch{Content: &content})
			updated = n
			return err
		},
		commit: func(s *Snapshot) {
			s.edit(id, func(n *core.Node) { n.UpdatedAt = updated.UpdatedAt }, nil)
		},
	}
	if err := m.run(ctx, mu); err != nil {
		return core.Node{}, err
	}
	return updated, nil
}

// Move reparents a node. A nil parentID moves it to the root.
func (m *Manager) Move(ctx context.Context, id string, parentID *string) (core.Node, error) {
	var moved core.Node
	mu := &mutation{
		op:    "move",
		id:    id,
		event: core.EventMove,
		apply: func(s *Snapshot) (func(*Snapshot), error) {
			prev, ok := s.Active[id]
			if !ok {
				return nil, nil
			}
			if parentID != nil {
				if err := m.checkMove(s, prev, *parentID); err != nil {
					return nil, err
				}
			}
			before := prev.ParentID
			return s.edit(id,
				func(n *core.Node) { n.ParentID = cloneRef(parentID) },
				func(n *core.Node) { n.ParentID = cloneRef(before) },
			), nil
		},
		call: func(ctx context.Context) error {
			n, err := m.remote.Move(ctx, id, parentID)
			moved = n
			return err
		},
		commit: func(s *Snapshot) {
			s.edit(id, func(n *core.Node) { n.UpdatedAt = moved.UpdatedAt }, nil)
		},
	}
	if err := m.run(ctx, mu); err != nil {
		return core.Node{}, err
	}
	return moved, nil
}

// checkMove mirrors the store's move validation over the known nodes, so an
// obviously invalid move fails without a round trip.
func (m *Manager) checkMove(s *Snapshot, n core.Node, parentID string) error {
	if parentID == n.ID {
		return core.Errorf(core.KindInvalidTransition, "move", n.ID, "cannot move a folder inside itself")
	}
	if parent, ok := s.Find(parentID); ok && (!parent.IsFolder() || parent.Trashed()) {
		return core.Errorf(core.KindInvalidTransition, "move", n.ID, "parent folder not found or not a folder")
	}
	if !n.IsFolder() {
		return nil
	}
	inside, _ := cascade.Contains(context.Background(), cascade.NewPool(values(s.Active)), n.Owner, n.ID, parentID, core.StateActive)
	if inside {
		return core.Errorf(core.KindInvalidTransition, "move", n.ID, "cannot move a folder inside its own descendant")
	}
	return nil
}

// SoftDelete moves a node and its known descendants to the trash.
func (m *Manager) SoftDelete(ctx context.Context, id string) (core.DeleteResult, error) {
	var res core.DeleteResult
	mu := &mutation{op: "soft-delete", id: id, event: core.EventTrash,
		scope: cascadeScope(id, activeSet, core.StateAny)}
	mu.apply = func(s *Snapshot) (func(*Snapshot), error) {
		target, ok := s.Active[id]
		if !ok {
			return nil, nil
		}
		desc := closure(s.Active, target, core.StateAny)
		mu.affected = folderIDs(target, desc)
		stamp := m.now()
		return s.transfer(append([]core.Node{target}, desc...), true, func(n core.Node) core.Node {
			n, _ = cascade.Stamp(n, stamp)
			return n
		}), nil
	}
	mu.call = func(ctx context.Context) error {
		r, err := m.remote.Delete(ctx, id, core.DeleteSoft)
		res = r
		return err
	}
	if err := m.run(ctx, mu); err != nil {
		return core.DeleteResult{}, err
	}
	return res, nil
}

// Restore brings a node and its known trashed descendants back.
func (m *Manager) Restore(ctx context.Context, id string) (core.RestoreResult, error) {
	var res core.RestoreResult
	mu := &mutation{op: "restore", id: id, event: core.EventRestore,
		scope: cascadeScope(id, trashSet, core.StateTrashed)}
	mu.apply = func(s *Snapshot) (func(*Snapshot), error) {
		target, ok := s.Trash[id]
		if !ok {
			return nil, nil
		}
		if target.ParentID != nil {
			parent, known := s.Find(*target.ParentID)
			if !known || parent.Trashed() {
				// Leave the decision to the store; nothing is applied locally.
				return nil, nil
			}
		}
		desc := closure(s.Trash, target, core.StateTrashed)
		mu.affected = folderIDs(target, desc)
		return s.transfer(append([]core.Node{target}, desc...), false, unstamp), nil
	}
	mu.call = func(ctx context.Context) error {
		r, err := m.remote.Restore(ctx, id)
		res = r
		return err
	}
	mu.commit = func(s *Snapshot) {
		if _, ok := s.Active[id]; ok || res.Node.ID != id {
			return
		}
		// Nothing was applied locally: bring back the known descendants too.
		if target, ok := s.Trash[id]; ok {
			s.transfer(closure(s.Trash, target, core.StateTrashed), false, unstamp)
		}
		s.Active[id] = res.Node.Summary()
		delete(s.Trash, id)
	}
	if err := m.run(ctx, mu); err != nil {
		return core.RestoreResult{}, err
	}
	return res, nil
}

// PermanentDelete purges a trashed node and its known trashed descendants.
func (m *Manager) PermanentDelete(ctx context.Context, id string) (core.DeleteResult, error) {
	var res core.DeleteResult
	mu := &mutation{op: "permanent-delete", id: id, event: core.EventDelete,
		scope: cascadeScope(id, trashSet, core.StateTrashed)}
	mu.apply = func(s *Snapshot) (func(*Snapshot), error) {
		target, ok := s.Trash[id]
		if !ok {
			return nil, nil
		}
		desc := closure(s.Trash, target, core.StateTrashed)
		mu.affected = []string{target.Parent()}
		undo := s.remove(append([]core.Node{target}, desc...))
		if s.Open != nil && s.Open.ID == id {
			open := *s.Open
			s.Open = nil
			inner := undo
			undo = func(st *Snapshot) {
				inner(st)
				if st.Open == nil {
					restored := open
					st.Open = &restored
				}
			}
		}
		return undo, nil
	}
	mu.call = func(ctx context.Context) error {
		r, err := m.remote.Delete(ctx, id, core.DeletePermanent)
		res = r
		return err
	}
	if err := m.run(ctx, mu); err != nil {
		return core.DeleteResult{}, err
	}
	return res, nil
}

// closure returns the known descendants of target within set.
func closure(set map[string]core.Node, target core.Node, state core.State) []core.Node {
	nodes, _ := cascade.Closure(context.Background(), cascade.NewPool(values(set)), target.Owner, target.ID, state)
	return nodes
}

func unstamp(n core.Node) core.Node {
	n, _ = cascade.Unstamp(n)
	return n
}

func cloneRef(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
