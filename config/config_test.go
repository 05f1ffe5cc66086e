package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, used, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, used)

	defaults := GetDefaultConfigPaths()
	assert.Equal(t, defaults.DBPath, cfg.Database.Path)
	assert.Equal(t, "8778", cfg.Server.Port)
	assert.Equal(t, "8777", cfg.Proxy.Port)
	assert.True(t, cfg.Proxy.MITM)
	assert.Equal(t, 15*time.Second, cfg.Proxy.ProbeTimeout)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
database:
  path: /tmp/custom.db
proxy:
  port: "9000"
  mitm: false
  probe_timeout: 3s
logging:
  level: debug
watch:
  debounce: 1s
`), 0600))
	t.Setenv("UASWITCH_SERVER_PORT", "9100")

	cfg, used, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, used)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, "9000", cfg.Proxy.Port)
	assert.False(t, cfg.Proxy.MITM)
	assert.Equal(t, 3*time.Second, cfg.Proxy.ProbeTimeout)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "9100", cfg.Server.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandTilde("~/data/uaswitch.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data/uaswitch.db"), got)

	got, err = ExpandTilde("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
