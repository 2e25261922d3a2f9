package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/pkg/config"
)

type defaultsConfig struct {
	Name    string `env:"TEST_CFG_DEFAULT_NAME" envDefault:"launchpad"`
	Workers int    `env:"TEST_CFG_DEFAULT_WORKERS" envDefault:"4"`
}

type envConfig struct {
	Name  string   `env:"TEST_CFG_ENV_NAME"`
	Items []string `env:"TEST_CFG_ENV_ITEMS" envSeparator:","`
}

type cachedConfig struct {
	Value string `env:"TEST_CFG_CACHED"`
}

type requiredConfig struct {
	Secret string `env:"TEST_CFG_REQUIRED_SECRET,required"`
}

type fileConfig struct {
	FromFile string `env:"TEST_CFG_FROM_FILE"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "launchpad", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TEST_CFG_ENV_NAME", "billing")
	t.Setenv("TEST_CFG_ENV_ITEMS", "a,b")

	var cfg envConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "billing", cfg.Name)
	assert.Equal(t, []string{"a", "b"}, cfg.Items)
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("TEST_CFG_CACHED", "first")

	var first cachedConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("TEST_CFG_CACHED", "second")
	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)

	config.ResetCache()
	var third cachedConfig
	require.NoError(t, config.Load(&third))
	assert.Equal(t, "second", third.Value)
}

func TestLoad_Errors(t *testing.T) {
	var cfg requiredConfig
	assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	assert.ErrorIs(t, config.Load[requiredConfig](nil), config.ErrNilPointer)
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.test")
	require.NoError(t, os.WriteFile(path, []byte("TEST_CFG_FROM_FILE=from_file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TEST_CFG_FROM_FILE") })

	require.NoError(t, config.LoadEnv(path))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "from_file", cfg.FromFile)

	assert.ErrorIs(t, config.LoadEnv(filepath.Join(t.TempDir(), "missing")), config.ErrLoadingEnvFile)
}
