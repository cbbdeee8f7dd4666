package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, cnf Configuration) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pledger.json")
	data, err := json.Marshal(cnf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInitConfig_DefaultsApplied(t *testing.T) {
	path := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/pledger"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	err := InitConfig(path)
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Pledger Server", cnf.ProjectName)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, "new:mail", cnf.Queue.MailQueue)
	assert.Equal(t, "new:subscription", cnf.Queue.SubscriptionQueue)
}

func TestInitConfig_MissingDataSource(t *testing.T) {
	path := writeConfigFile(t, Configuration{
		Redis: RedisConfig{Dns: "localhost:6379"},
	})

	err := InitConfig(path)
	assert.ErrorContains(t, err, "data source DNS is required")
}

func TestInitConfig_MissingRedis(t *testing.T) {
	path := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/pledger"},
	})

	err := InitConfig(path)
	assert.ErrorContains(t, err, "redis DNS is required")
}

func TestInitConfig_EnvOverride(t *testing.T) {
	path := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/pledger"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	t.Setenv("PLEDGER_OPEN_SOURCE_HOST_ID", "acc_opensource")
	t.Setenv("PLEDGER_SERVER_PORT", "6001")

	err := InitConfig(path)
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "acc_opensource", cnf.OpenSourceHostID)
	assert.Equal(t, "6001", cnf.Server.Port)
}

func TestRateLimitDefaults(t *testing.T) {
	rps := 10.0
	path := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/pledger"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: &rps},
	})

	err := InitConfig(path)
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	require.NotNil(t, cnf.RateLimit.Burst)
	assert.Equal(t, 20, *cnf.RateLimit.Burst)
	require.NotNil(t, cnf.RateLimit.CleanupIntervalSec)
	assert.Equal(t, 10800, *cnf.RateLimit.CleanupIntervalSec)
}
