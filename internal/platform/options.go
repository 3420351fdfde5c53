package platform

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/arbor/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS     = "fs"
	AdapterMemory = "memory"
	AdapterSQLite = "sqlite"
	AdapterNeo4j  = "neo4j"
	AdapterHTTP   = "http"
)

// options holds the internal configuration for an arbor store.
type options struct {
	repository core.Repository
	logger     *slog.Logger
	adapter    string
	clock      func() time.Time
	httpClient *http.Client
	headers    map[string]string
	config     map[string]any
}

// Option defines a functional option for configuring arbor.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter: AdapterFS,
		headers: make(map[string]string),
		config:  make(map[string]any),
	}
}

func parse(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// WithAdapter selects the store by name: fs, memory, sqlite, neo4j or http.
// Defaults to fs.
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithRepository injects a store directly. The adapter name is then ignored.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithLogger sets the logger shared by the store, the service and the client.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces time.Now in the store and the service.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithAutoInit creates the vault directory (and git repository) when missing.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.config["auto_init"] = auto
	}
}

// WithVersioning enables or disables git versioning of the fs store.
// When not set, versioning follows the presence of a .git directory.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.config["gitless"] = !enabled
	}
}

// WithMustExist fails when the vault directory does not exist.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithReadOnly rejects every write with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithFormat picks the file format new fs nodes are written in (".md" or ".json").
func WithFormat(ext string) Option {
	return func(o *options) {
		o.config["format"] = ext
	}
}

// WithSystemDir names the hidden directory of the fs store. Defaults to ".arbor".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithForceTemp re-roots the fs vault into a temporary directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the sandbox applied under `go run` and `go test`.
// Enabled by default: the fs vault is moved to a temporary directory unless
// the path already lives there.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithWatcherErrorHandler receives runtime errors of the fs Watch loop.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithHTTPClient sets the client used by the http adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithHeader adds a header to every request of the http adapter.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

func (o *options) bool(key string) (value, set bool) {
	value, set = o.config[key].(bool)
	return value, set
}

func (o *options) string(key string) string {
	s, _ := o.config[key].(string)
	return s
}
