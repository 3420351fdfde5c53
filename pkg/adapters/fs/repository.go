// Package fs implements the Node Store on the filesystem: one file per node,
// grouped in a directory per owner, optionally versioned with git.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/git"
)

// DefaultSystemDir holds the index cache and the git lock.
const DefaultSystemDir = ".arbor"

// Repository implements core.Repository using the filesystem and Git.
type Repository struct {
	Path        string
	git         *git.Client
	cache       *cache
	config      Config
	serializers map[string]Serializer
	logger      *slog.Logger

	// writeMu serializes writes issued by this process. Other processes are
	// kept out of the git index by the git lock.
	writeMu sync.Mutex

	mu            sync.RWMutex
	readOnly      bool
	watcherActive bool
	lastReconcile *time.Time
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	AutoInit  bool
	Gitless   bool
	MustExist bool
	ReadOnly  bool
	// Format is the extension new nodes are written with (".md" or ".json").
	// Existing files are read in whichever supported format they use.
	Format       string
	SystemDir    string
	Logger       *slog.Logger
	ErrorHandler func(error)
	Clock        func() time.Time
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.Format == "" {
		config.Format = ".md"
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{
		Path:        config.Path,
		git:         git.NewClient(config.Path, filepath.Join(config.SystemDir, "git.lock"), logger),
		config:      config,
		cache:       newCache(config.Path, config.SystemDir),
		serializers: DefaultSerializers(),
		logger:      logger,
		readOnly:    config.ReadOnly,
	}
}

// Initialize prepares the store directory and, unless gitless, the git repository.
func (r *Repository) Initialize(ctx context.Context) error {
	if _, ok := r.serializers[r.config.Format]; !ok {
		return fmt.Errorf("unsupported node format %q", r.config.Format)
	}

	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
	} else if err := os.MkdirAll(r.Path, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(r.Path, r.config.SystemDir), 0755); err != nil {
		return fmt.Errorf("failed to create system directory: %w", err)
	}

	if err := r.cache.Load(); err != nil {
		r.logger.Warn("index cache unreadable, starting empty", "error", err)
	}

	if r.config.Gitless {
		return nil
	}

	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}

	wasNewRepo := false
	if !r.git.IsRepo() {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
		if err := r.git.Init(); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
		wasNewRepo = true
	}

	mod, err := r.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}

	if mod && wasNewRepo {
		if err := r.git.Add(".gitignore"); err != nil {
			return fmt.Errorf("failed to add .gitignore: %w", err)
		}
		if err := r.git.Commit(fmt.Sprintf("chore: configure %s ignore", r.config.SystemDir)); err != nil {
			return fmt.Errorf("failed to commit .gitignore: %w", err)
		}
	}

	return nil
}

func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	ignoreEntry := r.config.SystemDir + "/"

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == ignoreEntry {
			return false, nil
		}
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}

	if _, err := f.WriteString(ignoreEntry + "\n"); err != nil {
		return false, err
	}

	return true, nil
}

// SetReadOnly toggles write access at runtime.
func (r *Repository) SetReadOnly(readOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = readOnly
}

func (r *Repository) isReadOnly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readOnly
}

// Get retrieves a node. The owner selects the directory, so foreign nodes are
// simply not found.
func (r *Repository) Get(ctx context.Context, owner, id string) (core.Node, error) {
	path, ok := r.locate(owner, id)
	if !ok {
		return core.Node{}, core.ErrNotFound
	}
	return r.read(path, owner)
}

// Find scans the owner's directory. Files whose cached metadata cannot match
// the filter are skipped without being parsed.
func (r *Repository) Find(ctx context.Context, f core.Filter) ([]core.Node, error) {
	dir, ok := r.ownerDir(f.Owner)
	if !ok {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	prefix := f.Owner + "/"
	seen := make(map[string]bool, len(entries))
	var out []core.Node

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !r.isNodeFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		relPath := prefix + e.Name()
		seen[relPath] = true

		if entry, hit := r.cache.Get(relPath, info.ModTime()); hit {
			meta := entry.Meta.node("")
			meta.Owner = f.Owner
			if !f.Match(meta) {
				continue
			}
			if meta.IsFolder() {
				out = append(out, meta)
				continue
			}
		}

		n, err := r.read(filepath.Join(dir, e.Name()), f.Owner)
		if err != nil {
			r.logger.Warn("skipping unreadable node file", "path", relPath, "error", err)
			continue
		}
		r.cache.Set(relPath, &indexEntry{Owner: f.Owner, Meta: toFrontmatter(n), LastModified: info.ModTime()})
		if f.Match(n) {
			out = append(out, n)
		}
	}

	r.cache.Prune(prefix, seen)
	if err := r.cache.Save(); err != nil {
		r.logger.Debug("failed to save index cache", "error", err)
	}

	return out, nil
}

// Insert writes a new node file. An existing file with the same ID is a conflict.
func (r *Repository) Insert(ctx context.Context, n core.Node) (core.Node, error) {
	if r.isReadOnly() {
		return core.Node{}, core.ErrReadOnly
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if !validName(n.ID) || !validName(n.Owner) {
		return core.Node{}, core.Errorf(core.KindInvalidTransition, "insert", n.ID, "invalid id or owner")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, exists := r.locate(n.Owner, n.ID); exists {
		return core.Node{}, core.Errorf(core.KindInvalidTransition, "insert", n.ID, "node already exists")
	}

	now := r.config.Clock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	path := r.nodePath(n.Owner, n.ID, r.config.Format)
	if err := r.write(ctx, path, n, "create "+n.ID); err != nil {
		return core.Node{}, err
	}
	return n, nil
}

// Update rewrites an existing node file in place, keeping its format and CreatedAt.
func (r *Repository) Update(ctx context.Context, n core.Node) error {
	if r.isReadOnly() {
		return core.ErrReadOnly
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	path, ok := r.locate(n.Owner, n.ID)
	if !ok {
		return core.ErrNotFound
	}
	old, err := r.read(path, n.Owner)
	if err != nil {
		return err
	}

	n.CreatedAt = old.CreatedAt
	n.UpdatedAt = r.config.Clock()
	return r.write(ctx, path, n, "update "+n.ID)
}

// removeFile is swapped in tests to simulate a failing disk.
var removeFile = os.Remove

// Delete removes the node file, recording the removal in git when versioned.
// The index entry is only dropped once the file is gone.
func (r *Repository) Delete(ctx context.Context, owner, id string) error {
	if r.isReadOnly() {
		return core.ErrReadOnly
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	path, ok := r.locate(owner, id)
	if !ok {
		return core.ErrNotFound
	}
	relPath := r.rel(path)

	if r.config.Gitless {
		if err := removeFile(path); err != nil {
			return fmt.Errorf("failed to remove file: %w", err)
		}
		r.cache.Delete(relPath)
		return nil
	}

	unlock, err := r.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := r.git.Rm(relPath); err != nil {
		// Untracked files (written while gitless) are only removed from disk.
		r.logger.Debug("git rm failed, removing file directly", "path", relPath, "error", err)
		if err := removeFile(path); err != nil {
			return fmt.Errorf("failed to remove file: %w", err)
		}
		r.cache.Delete(relPath)
		return nil
	}
	r.cache.Delete(relPath)

	if err := r.git.Commit(changeReason(ctx, "delete "+id)); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

// History lists the commits that touched a node, newest first.
func (r *Repository) History(ctx context.Context, owner, id string, limit int) ([]git.Revision, error) {
	if r.config.Gitless {
		return nil, fmt.Errorf("history is not available in gitless mode")
	}
	path, ok := r.locate(owner, id)
	if !ok {
		return nil, core.ErrNotFound
	}
	return r.git.Log(r.rel(path), limit)
}

// write serializes n to path and commits the change. Callers hold writeMu.
func (r *Repository) write(ctx context.Context, path string, n core.Node, reason string) error {
	s := r.serializers[filepath.Ext(path)]
	data, err := s.Serialize(n)
	if err != nil {
		return fmt.Errorf("failed to serialize node: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	relPath := r.rel(path)
	if info, err := os.Stat(path); err == nil {
		r.cache.Set(relPath, &indexEntry{Owner: n.Owner, Meta: toFrontmatter(n), LastModified: info.ModTime()})
	}

	if r.config.Gitless {
		return nil
	}

	unlock, err := r.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := r.git.Add(relPath); err != nil {
		return fmt.Errorf("failed to git add: %w", err)
	}
	if err := r.git.Commit(changeReason(ctx, reason)); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

func (r *Repository) read(path, owner string) (core.Node, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return core.Node{}, core.ErrNotFound
	}
	if err != nil {
		return core.Node{}, err
	}
	defer f.Close()

	s, ok := r.serializers[filepath.Ext(path)]
	if !ok {
		return core.Node{}, fmt.Errorf("unsupported file %s", path)
	}
	n, err := s.Parse(f)
	if err != nil {
		return core.Node{}, fmt.Errorf("failed to parse node %s: %w", r.rel(path), err)
	}
	if n.ID == "" {
		n.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	n.Owner = owner
	return n, nil
}

// locate finds the file of a node in any supported format.
func (r *Repository) locate(owner, id string) (string, bool) {
	if !validName(owner) || !validName(id) {
		return "", false
	}
	candidates := []string{r.config.Format}
	for ext := range r.serializers {
		if ext != r.config.Format {
			candidates = append(candidates, ext)
		}
	}
	for _, ext := range candidates {
		path := r.nodePath(owner, id, ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func (r *Repository) ownerDir(owner string) (string, bool) {
	if !validName(owner) {
		return "", false
	}
	return filepath.Join(r.Path, owner), true
}

func (r *Repository) nodePath(owner, id, ext string) string {
	return filepath.Join(r.Path, owner, id+ext)
}

func (r *Repository) rel(path string) string {
	rel, err := filepath.Rel(r.Path, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (r *Repository) isNodeFile(name string) bool {
	if strings.HasPrefix(name, TempFilePrefix) || strings.HasPrefix(name, ".") {
		return false
	}
	_, ok := r.serializers[filepath.Ext(name)]
	return ok
}

// validName rejects owners and IDs that would escape their directory.
func validName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.HasPrefix(s, ".") &&
		!strings.ContainsAny(s, `/\`) && filepath.IsLocal(s)
}

func changeReason(ctx context.Context, fallback string) string {
	if val, ok := ctx.Value(core.ChangeReasonKey).(string); ok && val != "" {
		return val
	}
	return fallback
}

// IsGitInstalled checks if git is available in the system path.
func IsGitInstalled() bool {
	return git.IsInstalled()
}

var (
	_ core.Repository = (*Repository)(nil)
	_ core.Watchable  = (*Repository)(nil)
)

var errWatcherClosed = errors.New("watcher channel closed")
