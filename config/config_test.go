package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoaderBasic(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", `
app:
  name: confhub
  port: 8080
`)

	loader, err := New(&Config{Paths: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "confhub", loader.Get("app.name"))

	var app struct {
		Name string `mapstructure:"name"`
		Port int    `mapstructure:"port"`
	}
	require.NoError(t, loader.UnmarshalKey("app", &app))
	assert.Equal(t, "confhub", app.Name)
	assert.Equal(t, 8080, app.Port)
}

func TestLoaderEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", `
app:
  name: confhub
`)

	t.Setenv("CONFHUB_APP_NAME", "from-env")

	loader, err := New(&Config{Paths: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "from-env", loader.Get("app.name"))
}

func TestLoaderEnvironmentMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", `
app:
  name: confhub
  debug: true
`)
	writeConfigFile(t, dir, "config.production.yaml", `
app:
  debug: false
`)

	t.Setenv("CONFHUB_ENV", "production")

	loader, err := New(&Config{Paths: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	// 环境特定配置覆盖 debug，其余字段保留基础值
	assert.Equal(t, false, loader.Get("app.debug"))
	assert.Equal(t, "confhub", loader.Get("app.name"))
}

func TestLoaderEmptyConfig(t *testing.T) {
	loader, err := New(&Config{Paths: []string{t.TempDir()}})
	require.NoError(t, err)
	assert.ErrorIs(t, loader.Load(context.Background()), ErrValidationFailed)
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{EnvPrefix: "confhub"}
	require.NoError(t, cfg.validate())
	assert.Equal(t, "config", cfg.Name)
	assert.Equal(t, "yaml", cfg.FileType)
	assert.Equal(t, "CONFHUB", cfg.EnvPrefix)
}
