package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// BackendConfig holds bot backend API configuration
type BackendConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	TradesPollInterval time.Duration `mapstructure:"trades_poll_interval"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelayBase     time.Duration `mapstructure:"retry_delay_base"`
}

// ServerConfig holds dashboard HTTP server configuration
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DBPath           string `mapstructure:"db_path"`
	MaxNotifications int    `mapstructure:"max_notifications"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("KALSHIDECK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Backend defaults. The bot re-evaluates every 5 seconds, so status
	// polls match that cadence; the trade ledger moves much slower.
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.status_poll_interval", "5s")
	v.SetDefault("backend.trades_poll_interval", "15s")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.retry_delay_base", "500ms")

	// Server defaults
	v.SetDefault("server.listen_addr", ":8080")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/kalshideck.db")
	v.SetDefault("storage.max_notifications", 500)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.StatusPollInterval < 1*time.Second {
		return fmt.Errorf("backend.status_poll_interval must be at least 1 second")
	}
	if c.Backend.TradesPollInterval < 1*time.Second {
		return fmt.Errorf("backend.trades_poll_interval must be at least 1 second")
	}
	if c.Backend.Timeout < 1*time.Second {
		return fmt.Errorf("backend.timeout must be at least 1 second")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend.max_retries must not be negative")
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxNotifications < 1 {
		return fmt.Errorf("storage.max_notifications must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
