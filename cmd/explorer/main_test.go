package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/explorer-go/internal/config"
)

func TestAPIConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.QueryNode.Endpoint = "https://node.example.com"
	cfg.Pagination.PageSize = 25
	cfg.API.Port = 9999
	cfg.API.RateLimitPerSecond = 0

	apiCfg := apiConfig(cfg)
	assert.Equal(t, "https://node.example.com", apiCfg.QueryNode)
	assert.Equal(t, 25, apiCfg.PageSize)
	assert.Equal(t, 9999, apiCfg.Port)
	assert.False(t, apiCfg.EnableRateLimit)
	assert.Equal(t, cfg.API.SessionTTL, apiCfg.SessionTTL)
	assert.NoError(t, apiCfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	require.NoError(t, loadDotEnv())

	t.Setenv("EXPLORER_DOTENV_TEST", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EXPLORER_DOTENV_TEST=loaded\n"), 0600))
	require.NoError(t, os.Unsetenv("EXPLORER_DOTENV_TEST"))
	require.NoError(t, loadDotEnv())
	assert.Equal(t, "loaded", os.Getenv("EXPLORER_DOTENV_TEST"))
}

func TestLoadDotEnvDirectory(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".env"), 0700))

	assert.Error(t, loadDotEnv())
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
