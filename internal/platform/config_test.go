package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_RoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadConfig(root, "")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg, "missing file means defaults")

	versioned := false
	want := Config{Adapter: AdapterSQLite, DSN: "notes.db", Owner: "alice", Versioning: &versioned, Timeout: "3s"}
	require.NoError(t, SaveConfig(root, "", want))

	data, err := os.ReadFile(filepath.Join(root, ".arbor", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "adapter: sqlite")
	assert.NotContains(t, string(data), "format")

	got, err := LoadConfig(root, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	d, err := got.RequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	o := parse(got.Options())
	assert.Equal(t, AdapterSQLite, o.adapter)
	gitless, set := o.bool("gitless")
	assert.True(t, set)
	assert.True(t, gitless)
}

func TestConfig_Invalid(t *testing.T) {
	root := t.TempDir()
	path := ConfigPath(root, ".custom")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	require.NoError(t, os.WriteFile(path, []byte("adapter: [oops"), 0644))
	_, err := LoadConfig(root, ".custom")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0644))
	_, err = LoadConfig(root, ".custom")
	assert.ErrorContains(t, err, "timeout")
}
