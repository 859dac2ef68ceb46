package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. CONCLAVE_DECISION_API_KEY
	EnvPrefix = "CONCLAVE"

	defaultDirName  = ".conclave"
	defaultFileName = "conclave.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path selects ~/.conclave/conclave.json.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, if present, and applies environment overrides
// on top of the defaults
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// Every key has a default registered, so decoding into a zero Config loses nothing
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDirName)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "conclave.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the file omits
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout_seconds", cfg.API.TimeoutSeconds)

	v.SetDefault("channel.url", cfg.Channel.URL)
	v.SetDefault("channel.reconnect_delay_ms", cfg.Channel.ReconnectDelayMS)

	v.SetDefault("runner.roles", cfg.Runner.Roles)
	v.SetDefault("runner.max_rounds", cfg.Runner.MaxRounds)
	v.SetDefault("runner.round_delay_ms", cfg.Runner.RoundDelayMS)
	v.SetDefault("runner.task_timeout_seconds", cfg.Runner.TaskTimeoutSeconds)

	v.SetDefault("pool.max_workers", cfg.Pool.MaxWorkers)

	v.SetDefault("decision.provider", cfg.Decision.Provider)
	v.SetDefault("decision.model", cfg.Decision.Model)
	v.SetDefault("decision.api_key", cfg.Decision.APIKey)
	v.SetDefault("decision.temperature", cfg.Decision.Temperature)
	v.SetDefault("decision.max_tokens", cfg.Decision.MaxTokens)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.audit_file", cfg.Logging.AuditFile)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)

	v.SetDefault("data_dir", cfg.DataDir)
}

// Save writes cfg as JSON. The file holds an API key so it is private to the user.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, defaultDirName, defaultFileName), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
