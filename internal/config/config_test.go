package config

import (
	"testing"
	"time"

	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Decision.APIKey = "sk-ant-test123"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:3000", cfg.API.BaseURL)
	assert.Equal(t, []string{"debt", "tech", "market", "capital", "research"}, cfg.Runner.Roles)
	assert.Equal(t, 10, cfg.Runner.MaxRounds)
	assert.Equal(t, 2000, cfg.Runner.RoundDelayMS)
	assert.Equal(t, 60, cfg.Runner.TaskTimeoutSeconds)
	assert.Equal(t, workerpool.DefaultMaxWorkers, cfg.Pool.MaxWorkers)
	assert.Equal(t, "anthropic", cfg.Decision.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing api key", func(c *Config) { c.Decision.APIKey = "" }, "decision.api_key"},
		{"unknown provider", func(c *Config) { c.Decision.Provider = "gemini" }, "invalid provider"},
		{"missing model", func(c *Config) { c.Decision.Model = "" }, "decision.model"},
		{"relative base url", func(c *Config) { c.API.BaseURL = "localhost:3000" }, "api.base_url"},
		{"ftp channel", func(c *Config) { c.Channel.URL = "ftp://host/ws" }, "channel.url"},
		{"unknown role", func(c *Config) { c.Runner.Roles = []string{"debt", "legal"} }, "runner.roles"},
		{"duplicate role", func(c *Config) { c.Runner.Roles = []string{"debt", "debt"} }, "duplicate"},
		{"negative rounds", func(c *Config) { c.Runner.MaxRounds = -1 }, "runner.max_rounds"},
		{"negative delay", func(c *Config) { c.Runner.RoundDelayMS = -5 }, "runner.round_delay_ms"},
		{"no workers", func(c *Config) { c.Pool.MaxWorkers = 0 }, "pool.max_workers"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfigString_MasksAPIKey(t *testing.T) {
	cfg := validConfig()

	out := cfg.String()

	assert.NotContains(t, out, "sk-ant-test123")
	assert.Contains(t, out, `"api_key": "********"`)
	assert.Equal(t, "sk-ant-test123", cfg.Decision.APIKey)
}

func TestDeliberationConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Runner.Roles = []string{"Tech", "debt"}
	cfg.Runner.RoundDelayMS = 250
	cfg.Runner.TaskTimeoutSeconds = 15

	dc, err := cfg.DeliberationConfig("s-1")
	require.NoError(t, err)

	assert.Equal(t, "s-1", dc.SessionID)
	assert.Equal(t, []agent.Role{agent.RoleTech, agent.RoleDebt}, dc.Roles)
	assert.Equal(t, 250*time.Millisecond, dc.RoundDelay)
	assert.Equal(t, 15*time.Second, dc.TaskTimeout)
	assert.Equal(t, 10, dc.MaxRounds)

	cfg.Runner.Roles = nil
	dc, err = cfg.DeliberationConfig("s-1")
	require.NoError(t, err)
	assert.Nil(t, dc.Roles)

	cfg.Runner.Roles = []string{"legal"}
	_, err = cfg.DeliberationConfig("s-1")
	assert.ErrorIs(t, err, agent.ErrUnknownRole)
}

func TestPoolAndChannelConversion(t *testing.T) {
	cfg := validConfig()
	cfg.Pool.MaxWorkers = 3
	cfg.Channel.ReconnectDelayMS = 500
	cfg.API.TimeoutSeconds = 12

	assert.Len(t, cfg.PoolOptions(), 2)
	cfg.Runner.TaskTimeoutSeconds = 0
	assert.Len(t, cfg.PoolOptions(), 1)

	cc := cfg.ChannelSubscriberConfig()
	assert.Equal(t, cfg.Channel.URL, cc.URL)
	assert.Equal(t, 500*time.Millisecond, cc.ReconnectDelay)

	assert.Equal(t, 12*time.Second, cfg.APITimeout())

	lc := cfg.LoggerConfig()
	assert.True(t, lc.Console)
	assert.Equal(t, cfg.Logging.Level, lc.Level)
}
