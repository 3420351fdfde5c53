package core

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Body is the variant part of a Node. It is either Folder or Leaf.
type Body interface {
	isBody()
}

// Folder is the body of a node that can hold children. It carries no content.
type Folder struct{}

// Leaf is the body of a note. Leaves hold content and never have children.
type Leaf struct {
	Content string
}

func (Folder) isBody() {}
func (Leaf) isBody()   {}

// Node is the central entity of the domain: a folder or a note in an owner's tree.
// The folder/leaf discriminator lives in Body and never changes after creation.
type Node struct {
	ID            string
	Name          string
	ParentID      *string
	DeletedAt     *time.Time
	Owner         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Tags          []string
	Collaborators []string
	Body          Body
}

// NewFolder returns an active folder node.
func NewFolder(owner, name string, parentID *string) Node {
	return Node{Owner: owner, Name: name, ParentID: cloneString(parentID), Body: Folder{}}
}

// NewLeaf returns an active note with the given content.
func NewLeaf(owner, name string, parentID *string, content string) Node {
	return Node{Owner: owner, Name: name, ParentID: cloneString(parentID), Body: Leaf{Content: content}}
}

// IsFolder reports whether the node can hold children.
func (n Node) IsFolder() bool {
	_, ok := n.Body.(Folder)
	return ok
}

// Content returns the note body, or "" for folders.
func (n Node) Content() string {
	if l, ok := n.Body.(Leaf); ok {
		return l.Content
	}
	return ""
}

// Trashed reports whether the node is in the trash.
func (n Node) Trashed() bool {
	return n.DeletedAt != nil
}

// IsRoot reports whether the node sits at the top level.
func (n Node) IsRoot() bool {
	return n.ParentID == nil
}

// Parent returns the parent ID or "" for root-level nodes.
func (n Node) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (n Node) Clone() Node {
	out := n
	out.ParentID = cloneString(n.ParentID)
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		out.DeletedAt = &t
	}
	out.Tags = slices.Clone(n.Tags)
	out.Collaborators = slices.Clone(n.Collaborators)
	return out
}

// Summary strips content and auxiliary lists, the shape used by list views.
func (n Node) Summary() Node {
	out := n.Clone()
	if !out.IsFolder() {
		out.Body = Leaf{}
	}
	out.Tags = nil
	out.Collaborators = nil
	return out
}

// Validate checks the fields every stored node must carry.
func (n Node) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return Errorf(KindInvalidTransition, "validate", n.ID, "name cannot be empty")
	}
	if n.Owner == "" {
		return Errorf(KindInvalidTransition, "validate", n.ID, "owner cannot be empty")
	}
	if n.Body == nil {
		return Errorf(KindInvalidTransition, "validate", n.ID, "node has no body")
	}
	return nil
}

// SameParent reports whether two parent references point at the same place.
func SameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ref returns a pointer to a copy of s, or nil when s is empty.
func Ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// wireNode is the JSON shape shared by the HTTP API, the fs store and the CLI.
type wireNode struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Content       string     `json:"content"`
	IsFolder      bool       `json:"isFolder"`
	ParentID      *string    `json:"parentId"`
	DeletedAt     *time.Time `json:"deletedAt"`
	Owner         string     `json:"owner"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Tags          []string   `json:"tags,omitempty"`
	Collaborators []string   `json:"collaborators,omitempty"`
}

// MarshalJSON flattens the body into the isFolder/content pair.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireNode{
		ID:            n.ID,
		Name:          n.Name,
		Content:       n.Content(),
		IsFolder:      n.IsFolder(),
		ParentID:      n.ParentID,
		DeletedAt:     n.DeletedAt,
		Owner:         n.Owner,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
		Tags:          n.Tags,
		Collaborators: n.Collaborators,
	})
}

// UnmarshalJSON rebuilds the body from the isFolder/content pair.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = Node{
		ID:            w.ID,
		Name:          w.Name,
		ParentID:      w.ParentID,
		DeletedAt:     w.DeletedAt,
		Owner:         w.Owner,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
		Tags:          w.Tags,
		Collaborators: w.Collaborators,
	}
	if w.IsFolder {
		n.Body = Folder{}
	} else {
		n.Body = Leaf{Content: w.Content}
	}
	return nil
}
