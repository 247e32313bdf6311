package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/tiancaiamao/agentgate/pkg/logger"
)

// Config represents the application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `json:"listen" env:"AGENTGATE_LISTEN"`

	// Agent configures the agent subprocess.
	Agent AgentConfig `json:"agent"`

	// Log configures logging.
	Log *LogConfig `json:"log,omitempty"`
}

// AgentConfig contains agent subprocess configuration.
type AgentConfig struct {
	Command string   `json:"command" env:"AGENTGATE_AGENT_COMMAND"`
	Args    []string `json:"args,omitempty" env:"AGENTGATE_AGENT_ARGS" envSeparator:" "`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `json:"level,omitempty" env:"AGENTGATE_LOG_LEVEL"`  // debug, info, warn, error
	File   string `json:"file,omitempty" env:"AGENTGATE_LOG_FILE"`    // empty = no file logging
	Prefix string `json:"prefix,omitempty"`
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "info",
		Prefix: "agentgate",
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: "127.0.0.1:7777",
		Agent: AgentConfig{
			Command: "ai",
		},
		Log: DefaultLogConfig(),
	}
}

// CreateLogger creates a logger from the log configuration.
func (c *LogConfig) CreateLogger() (*slog.Logger, error) {
	if c == nil {
		c = DefaultLogConfig()
	}

	return logger.New(&logger.Config{
		Level:  c.Level,
		Prefix: c.Prefix,
		File:   c.File,
	})
}

// LoadConfig loads configuration from file and merges with environment
// variables. Environment variables take precedence over file values; a
// missing file just yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "agentgate", "config.json"), nil
}
