// Package config defines the daemon configuration and its loader.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Jarvis configuration.
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// AI configuration
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Interpreter settings
	Interpreter InterpreterConfig `json:"interpreter" mapstructure:"interpreter"`

	// Confirmation gate settings
	Confirm ConfirmConfig `json:"confirm" mapstructure:"confirm"`

	// Dispatcher settings
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// Audit log settings
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Gateway HTTP server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Capability modules
	Modules ModulesConfig `json:"modules" mapstructure:"modules"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// PolicyPath is the danger policy file; empty means <data_dir>/policy.json.
	PolicyPath string `json:"policy_path" mapstructure:"policy_path"`

	// DataDir holds the database, owner file and logs.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
}

// AIConfig holds AI provider configuration.
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile.
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, ollama
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"` // ollama / compatible endpoints
	Priority int    `json:"priority" mapstructure:"priority"`
}

// InterpreterConfig holds interpretation settings.
type InterpreterConfig struct {
	Model      string `json:"model" mapstructure:"model"`
	TimeoutSec int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxHistory int    `json:"max_history" mapstructure:"max_history"`
}

// ConfirmConfig holds confirmation gate settings.
type ConfirmConfig struct {
	// TTL is the confirmation window, e.g. "2m". The danger policy file
	// may override it at runtime.
	TTL string `json:"ttl" mapstructure:"ttl"`
}

// DispatchConfig holds dispatcher settings.
type DispatchConfig struct {
	TimeoutSec int `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	// Path of the sqlite database; empty means <data_dir>/jarvis.db.
	Path string `json:"path" mapstructure:"path"`
	// RetentionDays prunes older records nightly; 0 keeps everything.
	RetentionDays int `json:"retention_days" mapstructure:"retention_days"`
}

// GatewayConfig holds the HTTP gateway configuration.
type GatewayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// ModulesConfig holds per-module settings.
type ModulesConfig struct {
	System  SystemModuleConfig  `json:"system" mapstructure:"system"`
	Desktop DesktopModuleConfig `json:"desktop" mapstructure:"desktop"`
	Browser BrowserModuleConfig `json:"browser" mapstructure:"browser"`
	Kali    KaliModuleConfig    `json:"kali" mapstructure:"kali"`
}

// SystemModuleConfig configures the system module.
type SystemModuleConfig struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
	ScreenshotDir  string   `json:"screenshot_dir" mapstructure:"screenshot_dir"`
	CaptureCommand []string `json:"capture_command" mapstructure:"capture_command"`
}

// DesktopModuleConfig configures the desktop module.
type DesktopModuleConfig struct {
	Enabled bool              `json:"enabled" mapstructure:"enabled"`
	Apps    map[string]string `json:"apps" mapstructure:"apps"`
}

// BrowserModuleConfig configures the browser module.
type BrowserModuleConfig struct {
	Enabled  bool `json:"enabled" mapstructure:"enabled"`
	Headless bool `json:"headless" mapstructure:"headless"`
}

// KaliModuleConfig configures the remote Kali module.
type KaliModuleConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	User    string `json:"user" mapstructure:"user"`
	Port    int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Enabled: true},
		AI:       AIConfig{Profiles: []AIProfile{}},
		Interpreter: InterpreterConfig{
			Model:      "claude-sonnet-4-5",
			TimeoutSec: 60,
			MaxHistory: 5,
		},
		Confirm:  ConfirmConfig{TTL: "2m"},
		Dispatch: DispatchConfig{TimeoutSec: 60},
		Audit:    AuditConfig{RetentionDays: 90},
		Gateway: GatewayConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		Modules: ModulesConfig{
			System:  SystemModuleConfig{Enabled: true},
			Desktop: DesktopModuleConfig{Enabled: true},
			Browser: BrowserModuleConfig{Enabled: true, Headless: false},
			Kali:    KaliModuleConfig{Enabled: false, User: "kali", Port: 22},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// InterpreterTimeout returns the interpretation timeout as a duration.
func (c *Config) InterpreterTimeout() time.Duration {
	return time.Duration(c.Interpreter.TimeoutSec) * time.Second
}

// DispatchTimeout returns the execution timeout as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutSec) * time.Second
}

// ConfirmTTL returns the confirmation window, falling back to two
// minutes on a missing or malformed value.
func (c *Config) ConfirmTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Confirm.TTL)
	if err != nil || ttl <= 0 {
		return 2 * time.Minute
	}
	return ttl
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		switch profile.Provider {
		case "anthropic", "openai":
			if profile.APIKey == "" {
				return fmt.Errorf("AI profile %s: api_key is required for provider %s", profile.ID, profile.Provider)
			}
		case "ollama":
			// Local endpoint, no key needed.
		default:
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai, ollama)", profile.ID, profile.Provider)
		}
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when Telegram is enabled")
	}

	if c.Gateway.Enabled && (c.Gateway.Port <= 0 || c.Gateway.Port > 65535) {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	if !c.Telegram.Enabled && !c.Gateway.Enabled {
		return fmt.Errorf("at least one of telegram or gateway must be enabled")
	}

	if c.Modules.Kali.Enabled && c.Modules.Kali.Host == "" {
		return fmt.Errorf("kali host is required when the kali module is enabled")
	}

	if c.Confirm.TTL != "" {
		if _, err := time.ParseDuration(c.Confirm.TTL); err != nil {
			return fmt.Errorf("invalid confirm.ttl %q: %w", c.Confirm.TTL, err)
		}
	}

	return nil
}

// PrimaryProfile returns the highest-priority AI profile.
func (c *Config) PrimaryProfile() (AIProfile, error) {
	if len(c.AI.Profiles) == 0 {
		return AIProfile{}, fmt.Errorf("no AI profiles configured")
	}
	best := c.AI.Profiles[0]
	for _, p := range c.AI.Profiles[1:] {
		if p.Priority > best.Priority {
			best = p
		}
	}
	return best, nil
}
