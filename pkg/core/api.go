package core

import "context"

// CreateInput carries the fields accepted when creating a node.
type CreateInput struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
	IsFolder bool    `json:"isFolder"`
	Content  string  `json:"content,omitempty"`
	// DuplicateFromID copies content and tags from an existing note.
	DuplicateFromID string `json:"duplicateFromId,omitempty"`
}

// Patch is a partial update. Only the allow-listed fields below can change.
type Patch struct {
	Name    *string
	Content *string
	// Parent, when set, moves the node. Parent.ID == nil moves it to the root.
	Parent *ParentRef
}

// ParentRef wraps a nullable parent ID so "move to root" differs from "keep".
type ParentRef struct {
	ID *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Content == nil && p.Parent == nil
}

// DeleteMode selects what a delete request means.
type DeleteMode string

const (
	// DeleteAuto trashes an active node and purges a trashed one.
	DeleteAuto DeleteMode = "auto"
	// DeleteSoft trashes the node. Already trashed nodes are left as they are.
	DeleteSoft DeleteMode = "soft"
	// DeletePermanent purges a trashed node and its subtree.
	DeletePermanent DeleteMode = "permanent"
)

// DeleteOutcome tells what a delete request actually did.
type DeleteOutcome string

const (
	OutcomeTrashed DeleteOutcome = "trashed"
	OutcomePurged  DeleteOutcome = "purged"
	OutcomeNoop    DeleteOutcome = "noop"
)

// DeleteResult is returned by a delete request.
type DeleteResult struct {
	ID       string        `json:"id"`
	Outcome  DeleteOutcome `json:"outcome"`
	Affected int           `json:"affected"`
	Message  string        `json:"message"`
}

// RestoreResult is returned by a restore request.
type RestoreResult struct {
	Node          Node `json:"note"`
	ChildrenCount int  `json:"childrenCount"`
}

// SearchQuery asks for a page of notes matching Q.
type SearchQuery struct {
	Q     string
	Page  int
	Limit int
}

// SearchHit is a note matching a search, with a highlighted excerpt of its content.
type SearchHit struct {
	Node    Node   `json:"note"`
	Excerpt string `json:"excerpt"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Data    []SearchHit `json:"data"`
	HasMore bool        `json:"hasMore"`
}

// DayCount is the number of notes created on Date (YYYY-MM-DD).
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats summarizes an owner's tree.
type Stats struct {
	Notes       int        `json:"total"`
	Folders     int        `json:"folders"`
	Trash       int        `json:"trash"`
	Recent      int        `json:"recent"`
	RecentNotes []Node     `json:"recentNotes"`
	Activity    []DayCount `json:"activityData"`
}

// API is the operation set of the Node Store API layer. Every call is scoped to
// the owner carried by the context (see WithOwner).
type API interface {
	ListRoot(ctx context.Context) ([]Node, error)
	ListChildren(ctx context.Context, parentID string) ([]Node, error)
	ListTrash(ctx context.Context) ([]Node, error)
	Get(ctx context.Context, id string) (Node, error)
	Create(ctx context.Context, in CreateInput) (Node, error)
	Update(ctx context.Context, id string, p Patch) (Node, error)
	Move(ctx context.Context, id string, parentID *string) (Node, error)
	Delete(ctx context.Context, id string, mode DeleteMode) (DeleteResult, error)
	Restore(ctx context.Context, id string) (RestoreResult, error)
	Search(ctx context.Context, q SearchQuery) (SearchPage, error)
}

// Backend is the full surface served over HTTP and driven by the CLI: the API
// plus the read-only views next to it.
type Backend interface {
	API
	ListActive(ctx context.Context) ([]Node, error)
	Stats(ctx context.Context) (Stats, error)
}
