package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"
)

func TestLoadConfigDefaults(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	cfg, err := LoadConfig(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/etc/vireo/profiles.yaml", cfg.ProfileFile)
	assert.True(t, cfg.UseResolved)
	assert.Equal(t, 5*time.Second, cfg.LookupTimeout)
}

func TestLoadConfigFileOverlay(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	path := filepath.Join(dir, "vireod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
useResolved: false
lookupTimeout: 2s
`), 0o600))

	cfg, err := LoadConfig(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.UseResolved)
	assert.Equal(t, 2*time.Second, cfg.LookupTimeout)
}

func TestLoadConfigMissingFileIsFine(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	_, err := LoadConfig(ctx, "/does/not/exist.yaml")
	assert.NoError(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	path := filepath.Join(dir, "vireod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))
	_, err := LoadConfig(ctx, path)
	assert.Error(t, err)
}
