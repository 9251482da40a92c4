package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid anthropic key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-test123", "anthropic"))
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("sk-test123", "anthropic"))
	})

	t.Run("valid openai key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-test123", "openai"))
	})

	t.Run("empty key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "anthropic"))
	})
}

func TestValidateTelegramToken(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTelegramToken("123456789:ABCdefGHIjklMNO"))
	assert.Error(t, v.ValidateTelegramToken(""))
	assert.Error(t, v.ValidateTelegramToken("not-a-token"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("clean config", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(validConfig()))
	})

	t.Run("collects all problems", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Profiles[0].APIKey = "wrong-format"
		cfg.Logging.Level = "verbose"
		cfg.Audit.RetentionDays = -1

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 3)
	})

	t.Run("ollama profile skips key check", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "local", Provider: "ollama"}}
		assert.Empty(t, v.ValidateConfig(cfg))
	})
}
