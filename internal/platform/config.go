package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	fsadapter "github.com/aretw0/arbor/pkg/adapters/fs"
)

// DefaultSystemDir is where the config file and the fs index live.
const DefaultSystemDir = fsadapter.DefaultSystemDir

// ConfigFile is the name of the config file inside the system directory.
const ConfigFile = "config.yaml"

// Config is the on-disk configuration of a vault. Empty fields keep the defaults.
type Config struct {
	Adapter string `yaml:"adapter,omitempty"`
	// DSN is the adapter URI: a database file, a bolt URL or a base URL.
	DSN   string `yaml:"dsn,omitempty"`
	Owner string `yaml:"owner,omitempty"`
	// Versioning toggles git for the fs adapter. Nil means auto-detect.
	Versioning *bool  `yaml:"versioning,omitempty"`
	Format     string `yaml:"format,omitempty"`
	// Timeout bounds every remote call of the client, as a Go duration.
	Timeout string `yaml:"timeout,omitempty"`
	// Listen is the default address of `arbor serve`.
	Listen string `yaml:"listen,omitempty"`
}

// ConfigPath returns the config file location for a vault root.
func ConfigPath(root, systemDir string) string {
	if systemDir == "" {
		systemDir = DefaultSystemDir
	}
	return filepath.Join(root, systemDir, ConfigFile)
}

// LoadConfig reads the vault config. A missing file yields the zero Config.
func LoadConfig(root, systemDir string) (Config, error) {
	var cfg Config
	path := ConfigPath(root, systemDir)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if _, err := cfg.RequestTimeout(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the vault config, creating the system directory.
func SaveConfig(root, systemDir string, cfg Config) error {
	path := ConfigPath(root, systemDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create system dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// RequestTimeout parses Timeout. Zero means the client default.
func (c Config) RequestTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	return d, nil
}

// Options turns the file settings into options. Options passed after these win.
func (c Config) Options() []Option {
	var opts []Option
	if c.Adapter != "" {
		opts = append(opts, WithAdapter(c.Adapter))
	}
	if c.Versioning != nil {
		opts = append(opts, WithVersioning(*c.Versioning))
	}
	if c.Format != "" {
		opts = append(opts, WithFormat(c.Format))
	}
	return opts
}
