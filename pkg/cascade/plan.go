package cascade

import (
	"time"

	"github.com/aretw0/arbor/pkg/core"
)

// Transition names a lifecycle change applied across a closure.
type Transition string

const (
	SoftDelete Transition = "soft-delete"
	Restore    Transition = "restore"
	Purge      Transition = "purge"
)

// Scope returns the state of the descendants a transition must reach.
// Soft delete and purge reach every descendant so that nothing below a trashed or
// purged folder is left behind; restore only brings back what is in the trash.
func (t Transition) Scope() core.State {
	if t == Restore {
		return core.StateTrashed
	}
	return core.StateAny
}

// CheckTarget validates the state of the target for a transition.
func (t Transition) CheckTarget(target core.Node) error {
	switch t {
	case SoftDelete:
		if target.Trashed() {
			return core.Errorf(core.KindInvalidTransition, string(t), target.ID, "node is already in trash")
		}
	case Restore, Purge:
		if !target.Trashed() {
			return core.Errorf(core.KindInvalidTransition, string(t), target.ID, "node is not in trash")
		}
	}
	return nil
}

// CheckRestoreParent enforces the restore precondition: a node with a parent can
// only come back when that parent exists and is active. parent is nil when the
// parent could not be found.
func CheckRestoreParent(target core.Node, parent *core.Node) error {
	if target.ParentID == nil {
		return nil
	}
	if parent == nil || parent.Trashed() {
		return core.Errorf(core.KindInvalidTransition, string(Restore), target.ID,
			"parent folder does not exist or is in trash, restore the parent first")
	}
	return nil
}

// Stamp returns the soft-deleted copy of n at now. Nodes trashed at or after now
// are returned unchanged, so re-processing an already deleted subtree is a no-op
// while every descendant ends up with a timestamp no earlier than its ancestor's.
func Stamp(n core.Node, now time.Time) (core.Node, bool) {
	if n.DeletedAt != nil && !n.DeletedAt.Before(now) {
		return n, false
	}
	out := n.Clone()
	t := now
	out.DeletedAt = &t
	return out, true
}

// Unstamp returns the restored copy of n.
func Unstamp(n core.Node) (core.Node, bool) {
	if n.DeletedAt == nil {
		return n, false
	}
	out := n.Clone()
	out.DeletedAt = nil
	return out, true
}

// Plan returns the post-transition copies of target and descendants. For purge
// the nodes are returned unchanged: they are the set to remove.
func Plan(t Transition, target core.Node, descendants []core.Node, now time.Time) []core.Node {
	all := make([]core.Node, 0, len(descendants)+1)
	all = append(all, target)
	all = append(all, descendants...)

	out := make([]core.Node, 0, len(all))
	for _, n := range all {
		switch t {
		case SoftDelete:
			n, _ = Stamp(n, now)
		case Restore:
			n, _ = Unstamp(n)
		}
		out = append(out, n)
	}
	return out
}
