package arbor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/arbor/internal/platform"
	"github.com/aretw0/arbor/pkg/client"
	"github.com/aretw0/arbor/pkg/core"
)

// Version is the arbor release, set at build time with -ldflags "-X".
var Version = "0.1.0-dev"

// --- Types ---

// Node is a folder or a note.
type Node = core.Node

// Store is an opened backend. Close it when done.
type Store = platform.Store

// Config is the on-disk vault configuration (.arbor/config.yaml).
type Config = platform.Config

// Manager is the optimistic client cache of one session.
type Manager = client.Manager

// --- Configuration ---

// Option defines a functional option for configuring arbor.
type Option = platform.Option

// Adapter names.
const (
	AdapterFS     = platform.AdapterFS
	AdapterMemory = platform.AdapterMemory
	AdapterSQLite = platform.AdapterSQLite
	AdapterNeo4j  = platform.AdapterNeo4j
	AdapterHTTP   = platform.AdapterHTTP
)

// WithAdapter selects the store by name. Defaults to fs.
func WithAdapter(name string) Option { return platform.WithAdapter(name) }

// WithRepository injects a custom store.
func WithRepository(repo core.Repository) Option { return platform.WithRepository(repo) }

// WithLogger sets the logger for the store and the service.
func WithLogger(logger *slog.Logger) Option { return platform.WithLogger(logger) }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return platform.WithClock(now) }

// WithAutoInit creates the vault (and its git repository) when missing.
func WithAutoInit(auto bool) Option { return platform.WithAutoInit(auto) }

// WithVersioning enables or disables git versioning of fs vaults.
func WithVersioning(enabled bool) Option { return platform.WithVersioning(enabled) }

// WithMustExist fails when the vault directory is missing.
func WithMustExist(must bool) Option { return platform.WithMustExist(must) }

// WithReadOnly rejects every write.
func WithReadOnly(enabled bool) Option { return platform.WithReadOnly(enabled) }

// WithFormat picks ".md" or ".json" for new fs nodes.
func WithFormat(ext string) Option { return platform.WithFormat(ext) }

// WithSystemDir names the hidden directory of fs vaults.
func WithSystemDir(name string) Option { return platform.WithSystemDir(name) }

// WithForceTemp re-roots the vault into a temporary directory.
func WithForceTemp(force bool) Option { return platform.WithForceTemp(force) }

// WithDevSafety toggles the `go run` sandbox.
func WithDevSafety(enabled bool) Option { return platform.WithDevSafety(enabled) }

// WithWatcherErrorHandler receives runtime errors of the fs watcher.
func WithWatcherErrorHandler(fn func(error)) Option { return platform.WithWatcherErrorHandler(fn) }

// WithHTTPClient sets the client of the http adapter.
func WithHTTPClient(c *http.Client) Option { return platform.WithHTTPClient(c) }

// WithHeader adds a header to every http adapter request.
func WithHeader(key, value string) Option { return platform.WithHeader(key, value) }

// --- Factory ---

// New opens a backend: the authoritative service over a local store, or an
// HTTP client for a remote one.
func New(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	return platform.New(ctx, uri, opts...)
}

// Init opens and initializes a store without the service on top.
func Init(ctx context.Context, uri string, opts ...Option) (core.Repository, error) {
	return platform.Init(ctx, uri, opts...)
}

// NewManager starts an optimistic client session for owner over any backend.
func NewManager(remote client.Remote, owner string, opts ...client.Option) *Manager {
	return client.New(remote, owner, opts...)
}

// --- Utils ---

// FindVaultRoot walks upwards from startDir to the nearest vault.
func FindVaultRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir, "")
}

// LoadConfig reads the config of the vault at root.
func LoadConfig(root string) (Config, error) {
	return platform.LoadConfig(root, "")
}

// WithChangeReason sets the message fs vaults commit the next write with.
func WithChangeReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, core.ChangeReasonKey, reason)
}

// FormatChangeReason builds a Conventional Commit style change reason.
func FormatChangeReason(ctype, scope, subject, body string) string {
	return platform.FormatChangeReason(ctype, scope, subject, body)
}
