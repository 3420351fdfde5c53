// Package git runs the git CLI for stores that version their records as files.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLockName is the lock file created in the work tree while a commit runs.
const DefaultLockName = ".arbor.lock"

// ErrLockTimeout is returned when the lock could not be taken before the context ended.
var ErrLockTimeout = errors.New("timed out waiting for git lock")

// Client wraps git command execution with a file-based lock shared by every
// process writing to the same work tree.
type Client struct {
	WorkDir  string
	Logger   *slog.Logger
	lockPath string
}

// NewClient creates a git client for workDir. An empty lockName uses DefaultLockName.
func NewClient(workDir, lockName string, logger *slog.Logger) *Client {
	if lockName == "" {
		lockName = DefaultLockName
	}
	return &Client{
		WorkDir:  workDir,
		Logger:   logger,
		lockPath: lockName,
	}
}

// IsInstalled reports whether git is on the PATH.
func IsInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsRepo reports whether WorkDir is inside a git work tree.
func (c *Client) IsRepo() bool {
	if _, err := os.Stat(filepath.Join(c.WorkDir, ".git")); err == nil {
		return true
	}
	out, err := c.Run("rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Lock acquires the work tree lock, polling until it is free or ctx ends.
// The returned function releases it.
func (c *Client) Lock(ctx context.Context) (func(), error) {
	fullLockPath := filepath.Join(c.WorkDir, c.lockPath)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(fullLockPath, os.O_CREATE|os.O_EXCL, 0666)
		if err == nil {
			f.Close()
			return func() { os.Remove(fullLockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Run executes a raw git command in the working directory.
// It does not take the lock; callers writing to the index must hold it.
func (c *Client) Run(args ...string) (string, error) {
	if c.Logger != nil {
		c.Logger.Debug("executing git", "args", args, "dir", c.WorkDir)
	}

	cmd := exec.Command("git", args...)
	cmd.Dir = c.WorkDir

	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, output)
	}
	return strings.TrimSpace(output), nil
}

// Init initializes a repository. Re-running it is harmless.
func (c *Client) Init() error {
	_, err := c.Run("init")
	return err
}

// Add stages files.
func (c *Client) Add(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	_, err := c.Run(append([]string{"add", "--"}, files...)...)
	return err
}

// Rm removes files from the work tree and the index.
func (c *Client) Rm(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	_, err := c.Run(append([]string{"rm", "-f", "--"}, files...)...)
	return err
}

// Commit records the staged changes. A commit with nothing staged is not an error.
func (c *Client) Commit(msg string) error {
	out, err := c.Run("commit", "-m", msg)
	if err != nil && strings.Contains(out, "nothing to commit") {
		return nil
	}
	return err
}

// Status returns the porcelain status of the repo.
func (c *Client) Status() (string, error) {
	return c.Run("status", "--porcelain")
}

// Revision is one commit touching a file.
type Revision struct {
	Hash    string
	Date    time.Time
	Message string
}

// Log lists the commits touching file, newest first.
func (c *Client) Log(file string, limit int) ([]Revision, error) {
	args := []string{"log", "--format=%H%x1f%cI%x1f%s"}
	if limit > 0 {
		args = append(args, fmt.Sprintf("-n%d", limit))
	}
	out, err := c.Run(append(args, "--", file)...)
	if err != nil {
		return nil, err
	}
	var revs []Revision
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "\x1f", 3)
		if len(parts) != 3 {
			continue
		}
		date, _ := time.Parse(time.RFC3339, parts[1])
		revs = append(revs, Revision{Hash: parts[0], Date: date, Message: parts[2]})
	}
	return revs, nil
}
