package tree

import "github.com/aretw0/arbor/pkg/core"

// Placement says where a dragged node was released relative to the drop node.
type Placement int

const (
	// Onto drops the node inside the drop node.
	Onto Placement = iota
	// Between drops the node next to the drop node, at the same level.
	Between
)

// DropTarget computes the new parent for a drag and drop onto the node dropID.
// Dropping onto a folder moves inside it; dropping between siblings moves to
// their parent (nil for the root level). ok is false when the drop is not
// allowed: unknown or trashed drop node, dropping onto a note, or onto itself.
func DropTarget(forest []*Node, dragID, dropID string, where Placement) (parentID *string, ok bool) {
	drop := Find(forest, dropID)
	if drop == nil || drop.Trashed || dragID == dropID {
		return nil, false
	}
	if where == Onto {
		if !drop.IsFolder {
			return nil, false
		}
		return core.Ref(drop.ID), true
	}
	if drop.ParentID == nil {
		return nil, true
	}
	return core.Ref(*drop.ParentID), true
}
