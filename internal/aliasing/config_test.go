package aliasing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "plugtrack.yaml")

	content := `
env_aliases:
  cpython-3.11: py311
  python3.11: py311
  pypy-7.3: pypy3
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.EnvAliases, 3)
	assert.Equal(t, "py311", cfg.EnvAliases["cpython-3.11"])
	assert.Equal(t, "py311", cfg.EnvAliases["python3.11"])
	assert.Equal(t, "pypy3", cfg.EnvAliases["pypy-7.3"])
}

func TestLoadConfig_EmptyAliasSection(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "plugtrack.yaml")

	content := `
env_aliases:
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvAliases)
	assert.NotNil(t, cfg.EnvAliases)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvAliases)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "plugtrack.yaml")

	err := os.WriteFile(configPath, []byte(""), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvAliases)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "plugtrack.yaml")

	err := os.WriteFile(configPath, []byte("env_aliases: [not: a: map"), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvAliases)
}

func TestLoadConfigFromEnv_CustomPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.yaml")

	content := `
env_aliases:
  python3.12: py312
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	t.Setenv(ConfigPathEnvVar, configPath)

	cfg, err := LoadConfigFromEnv()

	require.NoError(t, err)
	assert.Equal(t, "py312", cfg.EnvAliases["python3.12"])
}
