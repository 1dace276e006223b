package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemformatics/mcp/config"
)

func Test_Load(t *testing.T) {
	cfg, err := config.Load("testdata/server.yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://api.stemformatics.org", cfg.APIServer.BaseURL)
	assert.Equal(t, 15, cfg.APIServer.TimeoutSeconds)
	assert.True(t, cfg.Auth.UseAuth)
	assert.Equal(t, "test-key", cfg.Auth.APIKey)
	assert.Equal(t, config.TransportNetwork, cfg.Transport)
	assert.Equal(t, "127.0.0.1", cfg.Network.Host)
	assert.Equal(t, 9311, cfg.Network.Port)
	assert.Equal(t, config.CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 120, cfg.Cache.TTLSeconds)
	assert.True(t, cfg.Analysis.MultipleTestingCorrection)
	assert.Equal(t, 30, cfg.RequestTimeoutSeconds)
}

func Test_Load_Defaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(file, []byte("api_server:\n  base_url: https://api.stemformatics.org\n"), 0o644))

	cfg, err := config.Load(file)
	require.NoError(t, err)

	assert.Equal(t, config.TransportStdio, cfg.Transport)
	assert.Equal(t, config.DefaultAPITimeoutSeconds, cfg.APIServer.TimeoutSeconds)
	assert.Equal(t, config.CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, config.DefaultCacheTTLSeconds, cfg.Cache.TTLSeconds)
	assert.Equal(t, config.DefaultRequestTimeoutSeconds, cfg.RequestTimeoutSeconds)
	assert.False(t, cfg.Auth.UseAuth)
}

func Test_Load_Invalid(t *testing.T) {
	_, err := config.Load("")
	assert.Error(t, err)

	dir := t.TempDir()

	write := func(name, content string) string {
		file := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
		return file
	}

	// base_url is required.
	_, err = config.Load(write("nobase.yaml", "transport: stdio\n"))
	assert.Error(t, err)

	// use_auth without api_key.
	_, err = config.Load(write("noauth.yaml",
		"api_server:\n  base_url: https://api.stemformatics.org\nauth:\n  use_auth: true\n"))
	assert.ErrorContains(t, err, "api_key")

	// network transport without host/port.
	_, err = config.Load(write("nonet.yaml",
		"api_server:\n  base_url: https://api.stemformatics.org\ntransport: network\n"))
	assert.ErrorContains(t, err, "network.host")

	// redis backend without address.
	_, err = config.Load(write("noredis.yaml",
		"api_server:\n  base_url: https://api.stemformatics.org\ncache:\n  backend: redis\n"))
	assert.ErrorContains(t, err, "redis_addr")
}
