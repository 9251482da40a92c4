package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator validates individual configuration values. Config.Validate
// covers the structural rules; this covers value formats the wizard and
// CLI check interactively.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format.
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

// ValidateTelegramToken validates a Telegram bot token.
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// Format: <bot_id>:<token>
	pattern := regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	if !pattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateLogLevel validates a log level.
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation and returns every
// problem found rather than stopping at the first.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.AI.Profiles {
		if profile.Provider == "ollama" {
			continue
		}
		if profile.Provider != "" {
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
			}
		}
	}

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
			errors = append(errors, err)
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Interpreter.TimeoutSec < 0 {
		errors = append(errors, fmt.Errorf("interpreter.timeout_seconds must be >= 0"))
	}
	if cfg.Dispatch.TimeoutSec < 0 {
		errors = append(errors, fmt.Errorf("dispatch.timeout_seconds must be >= 0"))
	}
	if cfg.Audit.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("audit.retention_days must be >= 0"))
	}

	return errors
}
