package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAgentConfig(t *testing.T) {
	path := writeConfigFile(t, `
app:
  name: crewclock
  environment: test
agent:
  queue_path: /tmp/queue.db
  server_url: http://localhost:8080
  company_id: c1
  worker_id: w1
  hourly_rate: 28.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/queue.db", cfg.Agent.QueuePath)
	assert.Equal(t, "http://localhost:8080", cfg.Agent.ServerURL)
	assert.Equal(t, 28.5, cfg.Agent.HourlyRate)

	// Agent defaults.
	assert.Equal(t, 7070, cfg.Agent.ListenPort)
	assert.Equal(t, 15*time.Second, cfg.Agent.ProbeIntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.Agent.RetryIntervalDuration())
	assert.Equal(t, 7, cfg.Agent.RetentionDays)
}

func TestLoadServerDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: /tmp/data.db
api:
  enabled: true
monitoring:
  prometheus_enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.True(t, cfg.API.Auth.Enabled, "enabling the API turns auth on")
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "x-api-extra", cfg.API.Auth.HeaderExtra)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
	assert.Equal(t, "california", cfg.Compliance.Jurisdiction)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_CC_DB_PATH", "/var/lib/crewclock/data.db")
	path := writeConfigFile(t, `
database:
  path: ${TEST_CC_DB_PATH}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/crewclock/data.db", cfg.Database.Path)
}

func TestLoadRejectsEmptyStores(t *testing.T) {
	path := writeConfigFile(t, `
app:
  name: crewclock
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_path")
}

func TestLoadRejectsAgentWithoutServerURL(t *testing.T) {
	path := writeConfigFile(t, `
agent:
  queue_path: /tmp/queue.db
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_url")
}

func TestLoadRejectsGoogleWithoutCredentials(t *testing.T) {
	path := writeConfigFile(t, `
database:
  path: /tmp/data.db
google:
  enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials_file")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
