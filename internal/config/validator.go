package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/harun/conclave/pkg/agent"
)

// Validator runs advisory checks that Config.Validate leaves out. Its
// findings are reported by `conclave config check` but do not block a run.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey checks a provider key's shape
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateRoles checks each roster entry against the role enumeration
func (v *Validator) ValidateRoles(roles []string) []error {
	var errs []error
	seen := make(map[string]bool, len(roles))
	for _, name := range roles {
		if _, err := agent.ParseRole(name); err != nil {
			errs = append(errs, err)
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate role in roster: %s", key))
		}
		seen[key] = true
	}
	return errs
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateListenAddr checks a host:port listen address
func (v *Validator) ValidateListenAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return nil
}

// ValidateConfig collects every advisory finding
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if cfg.Decision.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.Decision.APIKey, cfg.Decision.Provider); err != nil {
			errs = append(errs, fmt.Errorf("decision: %w", err))
		}
	}
	if err := v.ValidateTemperature(cfg.Decision.Temperature); err != nil {
		errs = append(errs, fmt.Errorf("decision: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.Decision.MaxTokens); err != nil {
		errs = append(errs, fmt.Errorf("decision: %w", err))
	}

	for _, err := range v.ValidateRoles(cfg.Runner.Roles) {
		errs = append(errs, fmt.Errorf("runner: %w", err))
	}
	if n := len(cfg.Runner.Roles); n > 0 && cfg.Pool.MaxWorkers < n {
		errs = append(errs, fmt.Errorf("pool: max_workers %d is below the roster size %d, rounds will queue", cfg.Pool.MaxWorkers, n))
	}

	if cfg.Metrics.Enabled {
		if err := v.ValidateListenAddr(cfg.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
