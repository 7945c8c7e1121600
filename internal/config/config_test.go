package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/martinlindhe/eqformat-map/internal/render"
	"github.com/martinlindhe/eqformat-map/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1100, cfg.Viewer.Width)
	assert.Equal(t, 700, cfg.Viewer.Height)
	assert.Equal(t, view.DefaultLimits(), cfg.Viewer.Limits)
	assert.False(t, cfg.Loader.StrictBaseLayer)
	assert.Equal(t, render.DefaultBackground, cfg.RenderOptions().Background)
	assert.Equal(t, "127.0.0.1:8089", cfg.GetServerAddr())
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.GetDataDir())
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())

	// the written file loads back to the same settings
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	content := `
server:
  port: 9000
viewer:
  background: "#000000"
  default_zoom: 0.5
  max_zoom: 4
loader:
  strict_base_layer: true
storage:
  data_directory: /srv/maps
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Viewer.Default)
	assert.Equal(t, 4.0, cfg.Viewer.Max)
	// unset keys keep their defaults
	assert.Equal(t, 0.1, cfg.Viewer.Min)
	assert.Equal(t, 1100, cfg.Viewer.Width)
	assert.True(t, cfg.Loader.StrictBaseLayer)
	assert.Equal(t, "/srv/maps", cfg.GetDataDir())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: [\n"},
		{"zoom outside range", "viewer:\n  default_zoom: 9\n"},
		{"bad color", "viewer:\n  background: brown\n"},
		{"bad level", "advanced:\n  log_level: chatty\n"},
		{"no sessions", "sessions:\n  max_sessions: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("EQMAPPER_PORT", "7000")
	t.Setenv("EQMAPPER_DATA_DIR", "/var/lib/eqmapper")
	t.Setenv("EQMAPPER_STRICT_BASE", "true")
	t.Setenv("EQMAPPER_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/eqmapper", cfg.GetDataDir())
	assert.Equal(t, "/var/lib/eqmapper/uploads", cfg.GetUploadDir())
	assert.True(t, cfg.Loader.StrictBaseLayer)
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)

	t.Setenv("EQMAPPER_PORT", "eighty")
	_, err = LoadConfig(filepath.Join(t.TempDir(), DefaultFileName))
	assert.Error(t, err)
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EQMAPPER_PORT=7100\n"), 0644))
	t.Setenv("EQMAPPER_PORT", "")
	os.Unsetenv("EQMAPPER_PORT")

	cfg, err := LoadConfig(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestAllowedOrigins(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.AllowedOrigins())

	cfg.Server.AllowOrigins = " http://a , ,http://b"
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.AllowedOrigins())

	cfg.Server.AllowOrigins = "*"
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestMapRoots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  maps_directory: maps\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "maps"), cfg.Storage.MapsDirectory)

	roots, err := cfg.MapRoots(filepath.Join(dir, "zones", "qeynos.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "zones"), filepath.Join(dir, "maps")}, roots)

	roots, err = DefaultConfig().MapRoots("")
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "data", "uploads"))
}
