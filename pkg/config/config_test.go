package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rtseries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValidAndIndependent(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Server.Principals["intruder"] = "x"
	cfg.Appender.Values[0] = "changed"
	assert.NotContains(t, DefaultConfig.Server.Principals, "intruder")
	assert.Equal(t, "Value 1", DefaultConfig.Appender.Values[0])
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
client:
  server_url: ws://example.com:9090
  principal: control
appender:
  topic_prefix: metrics
  settle_delay: 50ms
  values: ["a", "b"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://example.com:9090", cfg.Client.ServerURL)
	assert.Equal(t, "control", cfg.Client.Principal)
	assert.Equal(t, "password", cfg.Client.Credentials)
	assert.Equal(t, "metrics", cfg.Appender.TopicPrefix)
	assert.Equal(t, 50*time.Millisecond, cfg.Appender.SettleDelay)
	assert.Equal(t, []string{"a", "b"}, cfg.Appender.Values)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv(EnvServerURL, "ws://env-host:1234")
	t.Setenv(EnvCredentials, "secret")

	cfg, err := Load(writeFile(t, "client:\n  server_url: ws://file-host:1\n"))
	require.NoError(t, err)
	assert.Equal(t, "ws://env-host:1234", cfg.Client.ServerURL)
	assert.Equal(t, "secret", cfg.Client.Credentials)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	_, err := Load(writeFile(t, "appender:\n  values: []\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "client:\n  server_url: not a url\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
