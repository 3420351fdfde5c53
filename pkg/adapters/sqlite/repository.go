// Package sqlite implements the Node Store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aretw0/arbor/pkg/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	name          TEXT NOT NULL,
	is_folder     INTEGER NOT NULL DEFAULT 0,
	content       TEXT NOT NULL DEFAULT '',
	parent_id     TEXT,
	deleted_at    INTEGER,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	tags          TEXT NOT NULL DEFAULT '[]',
	collaborators TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_nodes_owner_parent ON nodes(owner, parent_id);
CREATE INDEX IF NOT EXISTS idx_nodes_owner_deleted ON nodes(owner, deleted_at);
`

const columns = `id, owner, name, is_folder, content, parent_id, deleted_at, created_at, updated_at, tags, collaborators`

// Config holds the configuration for the SQLite repository.
type Config struct {
	// Path is the database file, or ":memory:".
	Path   string
	Logger *slog.Logger
	Clock  func() time.Time
}

// Repository implements core.Repository on SQLite. Parent links are plain
// columns: the store enforces no referential integrity between rows.
type Repository struct {
	conn   *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the database with WAL mode and a busy timeout on every connection.
func Open(cfg Config) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	dsn := cfg.Path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.Path == ":memory:" {
		// Every connection would get its own empty database.
		conn.SetMaxOpenConns(1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Repository{conn: conn, path: cfg.Path, logger: logger, now: now}, nil
}

// Initialize creates the schema.
func (r *Repository) Initialize(ctx context.Context) error {
	if _, err := r.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close(ctx context.Context) error {
	return r.conn.Close()
}

// Get implements core.Repository.
func (r *Repository) Get(ctx context.Context, owner, id string) (core.Node, error) {
	row := r.conn.QueryRowContext(ctx, `SELECT `+columns+` FROM nodes WHERE id = ? AND owner = ?`, id, owner)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Node{}, core.ErrNotFound
	}
	if err != nil {
		return core.Node{}, fmt.Errorf("reading node %s: %w", id, err)
	}
	return n, nil
}

// Find implements core.Repository.
func (r *Repository) Find(ctx context.Context, f core.Filter) ([]core.Node, error) {
	where := []string{"owner = ?"}
	args := []any{f.Owner}

	switch {
	case f.ParentID != nil:
		where = append(where, "parent_id = ?")
		args = append(args, *f.ParentID)
	case f.RootOnly:
		where = append(where, "parent_id IS NULL")
	}
	switch f.State {
	case core.StateActive:
		where = append(where, "deleted_at IS NULL")
	case core.StateTrashed:
		where = append(where, "deleted_at IS NOT NULL")
	}

	rows, err := r.conn.QueryContext(ctx, `SELECT `+columns+` FROM nodes WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []core.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
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

	tags, collaborators, err := encodeLists(n)
	if err != nil {
		return core.Node{}, err
	}

	_, err = r.conn.ExecContext(ctx, `INSERT INTO nodes (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Owner, n.Name, n.IsFolder(), n.Content(), nullString(n.ParentID), nullTime(n.DeletedAt),
		n.CreatedAt.UnixNano(), n.UpdatedAt.UnixNano(), tags, collaborators)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.Node{}, core.Errorf(core.KindInvalidTransition, "insert", n.ID, "node already exists")
		}
		return core.Node{}, fmt.Errorf("inserting node: %w", err)
	}
	return n, nil
}

// Update implements core.Repository. is_folder and created_at never change.
func (r *Repository) Update(ctx context.Context, n core.Node) error {
	tags, collaborators, err := encodeLists(n)
	if err != nil {
		return err
	}

	res, err := r.conn.ExecContext(ctx, `
		UPDATE nodes SET name = ?, content = ?, parent_id = ?, deleted_at = ?, updated_at = ?, tags = ?, collaborators = ?
		WHERE id = ? AND owner = ?`,
		n.Name, n.Content(), nullString(n.ParentID), nullTime(n.DeletedAt), r.now().UnixNano(), tags, collaborators,
		n.ID, n.Owner)
	if err != nil {
		return fmt.Errorf("updating node %s: %w", n.ID, err)
	}
	return expectOne(res)
}

// Delete implements core.Repository.
func (r *Repository) Delete(ctx context.Context, owner, id string) error {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM nodes WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// scanNode scans a row selected with columns.
func scanNode(scanner interface{ Scan(dest ...any) error }) (core.Node, error) {
	var (
		n                   core.Node
		isFolder            bool
		content             string
		parentID            sql.NullString
		deletedAt           sql.NullInt64
		createdAt           int64
		updatedAt           int64
		tags, collaborators string
	)
	err := scanner.Scan(&n.ID, &n.Owner, &n.Name, &isFolder, &content, &parentID, &deletedAt,
		&createdAt, &updatedAt, &tags, &collaborators)
	if err != nil {
		return core.Node{}, err
	}

	if isFolder {
		n.Body = core.Folder{}
	} else {
		n.Body = core.Leaf{Content: content}
	}
	if parentID.Valid {
		n.ParentID = &parentID.String
	}
	if deletedAt.Valid {
		t := time.Unix(0, deletedAt.Int64)
		n.DeletedAt = &t
	}
	n.CreatedAt = time.Unix(0, createdAt)
	n.UpdatedAt = time.Unix(0, updatedAt)
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return core.Node{}, fmt.Errorf("decoding tags: %w", err)
	}
	if err := json.Unmarshal([]byte(collaborators), &n.Collaborators); err != nil {
		return core.Node{}, fmt.Errorf("decoding collaborators: %w", err)
	}
	if len(n.Tags) == 0 {
		n.Tags = nil
	}
	if len(n.Collaborators) == 0 {
		n.Collaborators = nil
	}
	return n, nil
}

func encodeLists(n core.Node) (string, string, error) {
	tags, err := json.Marshal(nonNil(n.Tags))
	if err != nil {
		return "", "", err
	}
	collaborators, err := json.Marshal(nonNil(n.Collaborators))
	if err != nil {
		return "", "", err
	}
	return string(tags), string(collaborators), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

var (
	_ core.Repository = (*Repository)(nil)
	_ core.Closer     = (*Repository)(nil)
)
