// Package neo4j implements the Node Store on a Neo4j graph. Every node is an
// :ArborNode vertex; the parent link is a property so the store stays a flat
// collection without referential integrity.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/aretw0/arbor/pkg/core"
)

// Label is the vertex label used for stored nodes.
const Label = "ArborNode"

// Config holds the connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	// Database selects a named database; empty uses the server default.
	Database string
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Repository implements core.Repository on Neo4j.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	owned    bool
	logger   *slog.Logger
	now      func() time.Time
}

// Open connects to the server described by cfg and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j: URI is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to %s: %w", cfg.URI, err)
	}
	r := New(driver, cfg)
	r.owned = true
	return r, nil
}

// New wraps an existing driver. The caller keeps ownership of it.
func New(driver neo4j.DriverWithContext, cfg Config) *Repository {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Repository{driver: driver, database: cfg.Database, logger: logger, now: now}
}

// Initialize creates the uniqueness constraint and lookup index.
func (r *Repository) Initialize(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE CONSTRAINT arbor_node_id IF NOT EXISTS FOR (n:` + Label + `) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX arbor_node_owner IF NOT EXISTS FOR (n:` + Label + `) ON (n.owner, n.parentId)`,
	} {
		if _, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			return res.Consume(ctx)
		}); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Close releases the driver if the repository opened it.
func (r *Repository) Close(ctx context.Context) error {
	if !r.owned {
		return nil
	}
	return r.driver.Close(ctx)
}

// Get implements core.Repository.
func (r *Repository) Get(ctx context.Context, owner, id string) (core.Node, error) {
	nodes, err := r.query(ctx, `MATCH (n:`+Label+` {id: $id, owner: $owner}) RETURN n`,
		map[string]any{"id": id, "owner": owner})
	if err != nil {
		return core.Node{}, fmt.Errorf("reading node %s: %w", id, err)
	}
	if len(nodes) == 0 {
		return core.Node{}, core.ErrNotFound
	}
	return nodes[0], nil
}

// Find implements core.Repository.
func (r *Repository) Find(ctx context.Context, f core.Filter) ([]core.Node, error) {
	where := []string{"n.owner = $owner"}
	params := map[string]any{"owner": f.Owner}

	switch {
	case f.ParentID != nil:
		where = append(where, "n.parentId = $parent")
		params["parent"] = *f.ParentID
	case f.RootOnly:
		where = append(where, "n.parentId IS NULL")
	}
	switch f.State {
	case core.StateActive:
		where = append(where, "n.deletedAt IS NULL")
	case core.StateTrashed:
		where = append(where, "n.deletedAt IS NOT NULL")
	}

	nodes, err := r.query(ctx, `MATCH (n:`+Label+`) WHERE `+strings.Join(where, " AND ")+` RETURN n`, params)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	return nodes, nil
}

// Insert implements core.Repository.
func (r *Repository) Insert(ctx context.Context, n core.Node) (core.Node, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := r.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	props := toProps(n)
	props["isFolder"] = n.IsFolder()
	props["createdAt"] = n.CreatedAt.UnixNano()

	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `CREATE (n:`+Label+`) SET n = $props`, map[string]any{"props": props})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		var nerr *neo4j.Neo4jError
		if errors.As(err, &nerr) && strings.Contains(nerr.Code, "ConstraintValidationFailed") {
			return core.Node{}, core.Errorf(core.KindInvalidTransition, "insert", n.ID, "node already exists")
		}
		return core.Node{}, fmt.Errorf("inserting node: %w", err)
	}
	return n, nil
}

// Update implements core.Repository. isFolder and createdAt are left untouched.
func (r *Repository) Update(ctx context.Context, n core.Node) error {
	n.UpdatedAt = r.now()
	props := toProps(n)
	delete(props, "id")
	delete(props, "owner")

	count, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Setting a property to null removes it, which clears parentId and deletedAt.
		res, err := tx.Run(ctx, `
			MATCH (n:`+Label+` {id: $id, owner: $owner})
			SET n.name = $props.name, n.content = $props.content, n.parentId = $props.parentId,
			    n.deletedAt = $props.deletedAt, n.updatedAt = $props.updatedAt,
			    n.tags = $props.tags, n.collaborators = $props.collaborators
			RETURN count(n) AS c`,
			map[string]any{"id": n.ID, "owner": n.Owner, "props": props})
		if err != nil {
			return nil, err
		}
		return single[int64](ctx, res, "c")
	})
	if err != nil {
		return fmt.Errorf("updating node %s: %w", n.ID, err)
	}
	if count.(int64) == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Delete implements core.Repository.
func (r *Repository) Delete(ctx context.Context, owner, id string) error {
	count, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:`+Label+` {id: $id, owner: $owner})
			DETACH DELETE n
			RETURN count(*) AS c`,
			map[string]any{"id": id, "owner": owner})
		if err != nil {
			return nil, err
		}
		return single[int64](ctx, res, "c")
	})
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}
	if count.(int64) == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Purge removes every stored node. Meant for tests and resets.
func (r *Repository) Purge(ctx context.Context) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:`+Label+`) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

func (r *Repository) closeSession(ctx context.Context, s neo4j.SessionWithContext) {
	if err := s.Close(ctx); err != nil {
		r.logger.Warn("closing neo4j session", "error", err)
	}
}

func (r *Repository) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	s := r.session(ctx, neo4j.AccessModeWrite)
	defer r.closeSession(ctx, s)
	return s.ExecuteWrite(ctx, work)
}

func (r *Repository) query(ctx context.Context, cypher string, params map[string]any) ([]core.Node, error) {
	s := r.session(ctx, neo4j.AccessModeRead)
	defer r.closeSession(ctx, s)

	result, err := s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var nodes []core.Node
		for res.Next(ctx) {
			v, ok := res.Record().Get("n")
			if !ok {
				continue
			}
			vertex, ok := v.(neo4j.Node)
			if !ok {
				continue
			}
			nodes = append(nodes, fromProps(vertex.Props))
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]core.Node), nil
}

func single[T any](ctx context.Context, res neo4j.ResultWithContext, key string) (T, error) {
	var zero T
	record, err := res.Single(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := record.Get(key)
	if !ok {
		return zero, fmt.Errorf("missing column %q", key)
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type %T for %q", v, key)
	}
	return out, nil
}

func toProps(n core.Node) map[string]any {
	props := map[string]any{
		"id":            n.ID,
		"owner":         n.Owner,
		"name":          n.Name,
		"content":       n.Content(),
		"parentId":      nil,
		"deletedAt":     nil,
		"updatedAt":     n.UpdatedAt.UnixNano(),
		"tags":          nonNil(n.Tags),
		"collaborators": nonNil(n.Collaborators),
	}
	if n.ParentID != nil {
		props["parentId"] = *n.ParentID
	}
	if n.DeletedAt != nil {
		props["deletedAt"] = n.DeletedAt.UnixNano()
	}
	return props
}

func fromProps(props map[string]any) core.Node {
	n := core.Node{
		ID:            str(props["id"]),
		Owner:         str(props["owner"]),
		Name:          str(props["name"]),
		CreatedAt:     nanos(props["createdAt"]),
		UpdatedAt:     nanos(props["updatedAt"]),
		Tags:          strs(props["tags"]),
		Collaborators: strs(props["collaborators"]),
	}
	if folder, _ := props["isFolder"].(bool); folder {
		n.Body = core.Folder{}
	} else {
		n.Body = core.Leaf{Content: str(props["content"])}
	}
	if p, ok := props["parentId"].(string); ok {
		n.ParentID = &p
	}
	if _, ok := props["deletedAt"].(int64); ok {
		t := nanos(props["deletedAt"])
		n.DeletedAt = &t
	}
	return n
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func nanos(v any) time.Time {
	i, _ := v.(int64)
	return time.Unix(0, i)
}

func strs(v any) []string {
	list, _ := v.([]any)
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ core.Repository = (*Repository)(nil)
	_ core.Closer     = (*Repository)(nil)
)
