package fs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/pkg/core"
)

// Serializer defines how a node is laid out in a file.
type Serializer interface {
	// Parse reads a node from r. The owner is not stored in the file; the
	// repository fills it in from the directory the file lives in.
	Parse(r io.Reader) (core.Node, error)
	// Serialize converts the node to bytes.
	Serialize(n core.Node) ([]byte, error)
}

// DefaultSerializers returns the supported formats keyed by file extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".md":   MarkdownSerializer{},
		".json": JSONSerializer{},
	}
}

// frontmatter is the metadata block of a node file.
type frontmatter struct {
	ID            string     `yaml:"id" json:"id"`
	Name          string     `yaml:"name" json:"name"`
	Folder        bool       `yaml:"folder,omitempty" json:"isFolder,omitempty"`
	Parent        *string    `yaml:"parent,omitempty" json:"parentId,omitempty"`
	Deleted       *time.Time `yaml:"deleted,omitempty" json:"deletedAt,omitempty"`
	Created       time.Time  `yaml:"created" json:"createdAt"`
	Updated       time.Time  `yaml:"updated" json:"updatedAt"`
	Tags          []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Collaborators []string   `yaml:"collaborators,omitempty" json:"collaborators,omitempty"`
}

func toFrontmatter(n core.Node) frontmatter {
	return frontmatter{
		ID:            n.ID,
		Name:          n.Name,
		Folder:        n.IsFolder(),
		Parent:        n.ParentID,
		Deleted:       n.DeletedAt,
		Created:       n.CreatedAt,
		Updated:       n.UpdatedAt,
		Tags:          n.Tags,
		Collaborators: n.Collaborators,
	}
}

func (f frontmatter) node(content string) core.Node {
	n := core.Node{
		ID:            f.ID,
		Name:          f.Name,
		ParentID:      f.Parent,
		DeletedAt:     f.Deleted,
		CreatedAt:     f.Created,
		UpdatedAt:     f.Updated,
		Tags:          f.Tags,
		Collaborators: f.Collaborators,
	}
	if f.Folder {
		n.Body = core.Folder{}
	} else {
		n.Body = core.Leaf{Content: content}
	}
	return n
}

// --- Markdown Serializer ---

// MarkdownSerializer stores metadata as YAML frontmatter and the note content as the body.
type MarkdownSerializer struct{}

func (MarkdownSerializer) Parse(r io.Reader) (core.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Node{}, err
	}

	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		return core.Node{}, errors.New("missing frontmatter")
	}

	rest := data[3:]
	parts := bytes.SplitN(rest, []byte("\n---"), 2)
	if len(parts) == 1 {
		return core.Node{}, errors.New("frontmatter started but no closing delimiter found")
	}

	var fm frontmatter
	if err := yaml.Unmarshal(parts[0], &fm); err != nil {
		return core.Node{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	content := strings.TrimPrefix(string(parts[1]), "\r")
	content = strings.TrimPrefix(content, "\n")
	return fm.node(content), nil
}

func (MarkdownSerializer) Serialize(n core.Node) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(toFrontmatter(n)); err != nil {
		return nil, err
	}
	encoder.Close()
	buf.WriteString("---\n")
	buf.WriteString(n.Content())
	return buf.Bytes(), nil
}

// --- JSON Serializer ---

// JSONSerializer stores the whole node as one JSON object.
type JSONSerializer struct{}

type jsonNode struct {
	frontmatter
	Content string `json:"content,omitempty"`
}

func (JSONSerializer) Parse(r io.Reader) (core.Node, error) {
	var payload jsonNode
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return core.Node{}, fmt.Errorf("invalid json: %w", err)
	}
	return payload.node(payload.Content), nil
}

func (JSONSerializer) Serialize(n core.Node) ([]byte, error) {
	return json.MarshalIndent(jsonNode{frontmatter: toFrontmatter(n), Content: n.Content()}, "", "  ")
}
