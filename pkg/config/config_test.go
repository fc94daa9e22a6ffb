package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, "simple", c.LogFormat)
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	c := &Config{LogLevel: "debug", LogFormat: "json"}
	c.SetDefaults()
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "json", c.LogFormat)
}

func TestParseBackend(t *testing.T) {
	cases := map[string]Backend{
		"":          BackendFile,
		"file":      BackendFile,
		"consul":    BackendConsul,
		"etcd":      BackendEtcd,
		"zookeeper": BackendZookeeper,
		"zk":        BackendZookeeper,
	}
	for in, want := range cases {
		got, err := ParseBackend(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseBackend("nope")
	assert.Error(t, err)
}

func TestLoadFileBackendExpandsEnv(t *testing.T) {
	t.Setenv("ORCHID_TEST_KEY", "secret-value")

	dir := t.TempDir()
	path := filepath.Join(dir, "orchid.config.json")
	contents := `{
		"logLevel": "info",
		"mcpServers": [
			{"name": "fs", "command": "mcp-fs", "env": {"TOKEN": "${ORCHID_TEST_KEY}"}}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(LoaderOptions{Backend: BackendFile, Path: path})
	require.NoError(t, err)
	require.Len(t, cfg.MCPServers, 1)
	assert.Equal(t, "secret-value", cfg.MCPServers[0].Env["TOKEN"])
	assert.Equal(t, "info", cfg.LogLevel)
}
