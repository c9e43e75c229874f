package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collabConfig.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoad_File(t *testing.T) {
	dir := writeConfig(t, `
running:
  port: 9000
  nodeId: node-a
  historyCap: 16
mysql:
  dsn: "u:p@tcp(127.0.0.1:3306)/collab?parseTime=True"
redis:
  addrs: ["r1:6379", "r2:6379"]
kafka:
  brokers: ["k1:9092"]
  backoff: 200ms
auth:
  secret: s3cret
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Running.Port)
	assert.Equal(t, "node-a", cfg.Running.NodeID)
	assert.Equal(t, 16, cfg.Running.HistoryCap)
	assert.True(t, cfg.Running.EnableCORS)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "collab-doc-ops", cfg.Kafka.Topic)
	assert.Equal(t, 200*time.Millisecond, cfg.Kafka.Backoff)
	assert.Equal(t, 4, cfg.Kafka.Workers)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "running:\n  port: 9000\nauth:\n  secret: from-file\n")
	t.Setenv("COLLAB_RUNNING_PORT", "9100")
	t.Setenv("COLLAB_AUTH_SECRET", "from-env")
	t.Setenv("COLLAB_REDIS_ADDRS", "a:1,b:2")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Running.Port)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Redis.Addrs)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("COLLAB_AUTH_SECRET", "x")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Running.Port)
	assert.Equal(t, 1024, cfg.Running.HistoryCap)
	assert.Empty(t, cfg.Mysql.DSN)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Running.Port = 8081
		c.Auth.Secret = "x"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Running.Port = 0 }},
		{"port too large", func(c *Config) { c.Running.Port = 70000 }},
		{"negative history", func(c *Config) { c.Running.HistoryCap = -1 }},
		{"bad dsn", func(c *Config) { c.Mysql.DSN = "not a dsn" }},
		{"brokers without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }},
		{"no secret", func(c *Config) { c.Auth.Secret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}
