// Package config loads workspace daemon configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all workspace daemon configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Storage   StorageConfig
	Logging   LogConfig
	Workspace WorkspaceConfig
}

// ServerConfig holds the HTTP/WebSocket server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"7900"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// TerminalConfig holds PTY bridge configuration.
type TerminalConfig struct {
	PollInterval time.Duration `envconfig:"TERMINAL_POLL_INTERVAL" default:"10ms"`
	DefaultCols  int           `envconfig:"TERMINAL_COLS" default:"80"`
	DefaultRows  int           `envconfig:"TERMINAL_ROWS" default:"24"`
	// ExportLineLimit bounds how many logical lines a content export returns.
	ExportLineLimit int `envconfig:"TERMINAL_EXPORT_LINES" default:"200"`
}

// StorageConfig holds client-storage configuration.
type StorageConfig struct {
	Path string `envconfig:"STORAGE_PATH" default:"~/.kubedesk/workspace.db"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// WorkspaceConfig holds orchestrator configuration.
type WorkspaceConfig struct {
	// ClusterContext is the active cluster context exported into new
	// terminal sessions ahead of any user command. Empty disables the
	// context prefix.
	ClusterContext string `envconfig:"CLUSTER_CONTEXT" default:""`
}

// Load loads configuration from environment variables. Each section is
// processed on its own so the keys stay flat (WORKSPACE_PORT, not
// WORKSPACE_SERVER_PORT).
func Load() (*Config, error) {
	var cfg Config
	sections := []any{
		&cfg.Server,
		&cfg.Terminal,
		&cfg.Storage,
		&cfg.Logging,
		&cfg.Workspace,
	}
	for _, s := range sections {
		if err := envconfig.Process("WORKSPACE", s); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "7900",
			Host: "127.0.0.1",
		},
		Terminal: TerminalConfig{
			PollInterval:    10 * time.Millisecond,
			DefaultCols:     80,
			DefaultRows:     24,
			ExportLineLimit: 200,
		},
		Storage: StorageConfig{
			Path: "~/.kubedesk/workspace.db",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Workspace: WorkspaceConfig{},
	}
}
