package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/harun/conclave/internal/logger"
	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/commandchannel"
	"github.com/harun/conclave/pkg/deliberation"
	"github.com/harun/conclave/pkg/workerpool"
)

// Config represents the main conclave configuration
type Config struct {
	API      APIConfig      `json:"api" mapstructure:"api"`
	Channel  ChannelConfig  `json:"channel" mapstructure:"channel"`
	Runner   RunnerConfig   `json:"runner" mapstructure:"runner"`
	Pool     PoolConfig     `json:"pool" mapstructure:"pool"`
	Decision DecisionConfig `json:"decision" mapstructure:"decision"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`

	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// APIConfig points at the session store's HTTP API
type APIConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ChannelConfig points at the operator command websocket
type ChannelConfig struct {
	URL              string `json:"url" mapstructure:"url"`
	ReconnectDelayMS int    `json:"reconnect_delay_ms" mapstructure:"reconnect_delay_ms"`
}

// RunnerConfig holds deliberation loop settings
type RunnerConfig struct {
	Roles              []string `json:"roles" mapstructure:"roles"`
	MaxRounds          int      `json:"max_rounds" mapstructure:"max_rounds"`
	RoundDelayMS       int      `json:"round_delay_ms" mapstructure:"round_delay_ms"`
	TaskTimeoutSeconds int      `json:"task_timeout_seconds" mapstructure:"task_timeout_seconds"`
}

// PoolConfig holds worker pool settings
type PoolConfig struct {
	MaxWorkers int `json:"max_workers" mapstructure:"max_workers"`
}

// DecisionConfig selects the model agents reason with
type DecisionConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig controls the Prometheus and health endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// TracingConfig controls OpenTelemetry sampling
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	roles := make([]string, 0, len(agent.DefaultRoster()))
	for _, r := range agent.DefaultRoster() {
		roles = append(roles, string(r))
	}

	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:3000",
			TimeoutSeconds: 30,
		},
		Channel: ChannelConfig{
			URL:              "ws://localhost:3000/ws",
			ReconnectDelayMS: 2000,
		},
		Runner: RunnerConfig{
			Roles:              roles,
			MaxRounds:          deliberation.DefaultMaxRounds,
			RoundDelayMS:       int(deliberation.DefaultRoundDelay / time.Millisecond),
			TaskTimeoutSeconds: int(deliberation.DefaultTaskTimeout / time.Second),
		},
		Pool: PoolConfig{
			MaxWorkers: workerpool.DefaultMaxWorkers,
		},
		Decision: DecisionConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5",
			Temperature: 0.4,
			MaxTokens:   1024,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			SampleRatio: 1.0,
		},
	}
}

// String returns a JSON representation of the config with the API key masked
func (c *Config) String() string {
	masked := *c
	if masked.Decision.APIKey != "" {
		masked.Decision.APIKey = "********"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateURL(c.API.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must not be negative")
	}

	if err := validateURL(c.Channel.URL, "ws", "wss", "http", "https"); err != nil {
		return fmt.Errorf("channel.url: %w", err)
	}
	if c.Channel.ReconnectDelayMS < 0 {
		return fmt.Errorf("channel.reconnect_delay_ms must not be negative")
	}

	if len(c.Runner.Roles) > 0 {
		if _, err := agent.ParseRoster(c.Runner.Roles); err != nil {
			return fmt.Errorf("runner.roles: %w", err)
		}
	}
	if c.Runner.MaxRounds < 0 {
		return fmt.Errorf("runner.max_rounds must not be negative")
	}
	if c.Runner.RoundDelayMS < 0 {
		return fmt.Errorf("runner.round_delay_ms must not be negative")
	}
	if c.Runner.TaskTimeoutSeconds < 0 {
		return fmt.Errorf("runner.task_timeout_seconds must not be negative")
	}

	if c.Pool.MaxWorkers < 1 {
		return fmt.Errorf("pool.max_workers must be at least 1")
	}

	switch c.Decision.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("decision.provider: invalid provider %q (must be: anthropic, openai)", c.Decision.Provider)
	}
	if c.Decision.Model == "" {
		return fmt.Errorf("decision.model is required")
	}
	if c.Decision.APIKey == "" {
		return fmt.Errorf("decision.api_key is required")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}

	return nil
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %v URL", raw, schemes)
}

// DeliberationConfig converts the runner section for sessionID
func (c *Config) DeliberationConfig(sessionID string) (deliberation.Config, error) {
	var roles []agent.Role
	if len(c.Runner.Roles) > 0 {
		parsed, err := agent.ParseRoster(c.Runner.Roles)
		if err != nil {
			return deliberation.Config{}, err
		}
		roles = parsed
	}

	return deliberation.Config{
		SessionID:   sessionID,
		Roles:       roles,
		MaxRounds:   c.Runner.MaxRounds,
		RoundDelay:  time.Duration(c.Runner.RoundDelayMS) * time.Millisecond,
		TaskTimeout: time.Duration(c.Runner.TaskTimeoutSeconds) * time.Second,
	}, nil
}

// PoolOptions converts the pool section. The default task timeout follows the runner's.
func (c *Config) PoolOptions() []workerpool.Option {
	opts := []workerpool.Option{workerpool.WithMaxWorkers(c.Pool.MaxWorkers)}
	if c.Runner.TaskTimeoutSeconds > 0 {
		opts = append(opts, workerpool.WithDefaultTimeout(time.Duration(c.Runner.TaskTimeoutSeconds)*time.Second))
	}
	return opts
}

// ChannelSubscriberConfig converts the channel section
func (c *Config) ChannelSubscriberConfig() commandchannel.Config {
	return commandchannel.Config{
		URL:            c.Channel.URL,
		ReconnectDelay: time.Duration(c.Channel.ReconnectDelayMS) * time.Millisecond,
	}
}

// APITimeout returns the HTTP timeout for session store calls
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// LoggerConfig converts the logging section
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		Console:   true,
		Pretty:    c.Logging.Pretty,
		Redaction: c.Logging.Redaction,
		MaxSize:   c.Logging.MaxSize,
		MaxAge:    c.Logging.MaxAge,
		Compress:  c.Logging.Compress,
	}
}
