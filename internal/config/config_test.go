package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://open.feishu.cn/open-apis", cfg.FeishuBaseURL)
	assert.Equal(t, "report.work", cfg.StreamKey)
	assert.Equal(t, StateBackendFile, cfg.StateBackend)
	assert.Equal(t, 50, cfg.DocBatchSize)
	assert.Equal(t, 300*time.Millisecond, cfg.DocBatchPause)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "cli_x")
	t.Setenv("FEISHU_APP_SECRET", "secret")
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("TICK_INTERVAL", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.HasFeishuCredentials())
	assert.Equal(t, StateBackendRedis, cfg.StateBackend)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.NotContains(t, cfg.String(), "secret")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty worker id", func(c *Config) { c.WorkerID = "" }},
		{"unknown state backend", func(c *Config) { c.StateBackend = "etcd" }},
		{"file backend without file", func(c *Config) { c.StateFile = "" }},
		{"sqlite backend without db", func(c *Config) { c.StateBackend = StateBackendSQLite; c.StateDB = "" }},
		{"zero batch size", func(c *Config) { c.DocBatchSize = 0 }},
		{"bad port", func(c *Config) { c.HealthPort = 70000 }},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
