package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// defaultPath returns ~/.jarvis/jarvis.json.
func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".jarvis", "jarvis.json"), nil
}

// Load loads the configuration from file, applying JARVIS_* environment
// overrides. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		var err error
		configPath, err = defaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		v.SetEnvPrefix("JARVIS")
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Environment fallbacks for the secrets people least want on disk.
	if cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = os.Getenv("JARVIS_TELEGRAM_BOT_TOKEN")
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".jarvis")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "jarvis.log")
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.DataDir, "jarvis.db")
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = filepath.Join(cfg.DataDir, "policy.json")
	}
	if cfg.Modules.System.ScreenshotDir == "" {
		cfg.Modules.System.ScreenshotDir = filepath.Join(cfg.DataDir, "screenshots")
	}

	return cfg, nil
}

// Save writes the configuration to file.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.configPath
	if configPath == "" {
		var err error
		configPath, err = defaultPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Config holds the bot token; keep it out of other users' reach.
	if err := os.WriteFile(configPath, []byte(cfg.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path in use.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	path, err := defaultPath()
	if err != nil {
		return ""
	}
	return path
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
