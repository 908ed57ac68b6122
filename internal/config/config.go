// Package config handles configuration loading for Conductor. It
// supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Conductor.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AgentConfig holds per-agent defaults; goal and task settings can
// override each of these.
type AgentConfig struct {
	Model        string  `mapstructure:"model"`
	MaxBudgetUSD float64 `mapstructure:"max_budget_usd"`
	MaxTurns     int     `mapstructure:"max_turns"`
}

// TimeoutsConfig holds the supervisor's watchdog thresholds.
type TimeoutsConfig struct {
	Stall        time.Duration `mapstructure:"stall"`
	Hard         time.Duration `mapstructure:"hard"`
	WatchdogTick time.Duration `mapstructure:"watchdog_tick"`
}

// Load loads configuration with the following precedence (highest to
// lowest):
//  1. Environment variables (CONDUCTOR_PORT, CONDUCTOR_DB)
//  2. Project config (.conductor.yaml in current directory or a parent)
//  3. User config (~/.config/conductor/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("server.port", "CONDUCTOR_PORT")
	v.BindEnv("database.path", "CONDUCTOR_DB")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Database.Path = os.ExpandEnv(cfg.Database.Path)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Database.Path = os.ExpandEnv(cfg.Database.Path)

	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("server.port", cfg.Server.Port)
	v.Set("database.path", cfg.Database.Path)
	v.Set("agent.model", cfg.Agent.Model)
	v.Set("agent.max_budget_usd", cfg.Agent.MaxBudgetUSD)
	v.Set("agent.max_turns", cfg.Agent.MaxTurns)
	v.Set("timeouts.stall", cfg.Timeouts.Stall.String())
	v.Set("timeouts.hard", cfg.Timeouts.Hard.String())
	v.Set("timeouts.watchdog_tick", cfg.Timeouts.WatchdogTick.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if
// one exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("database.path", defaultDatabasePath())
	v.SetDefault("agent.model", "sonnet")
	v.SetDefault("agent.max_budget_usd", 5.0)
	v.SetDefault("agent.max_turns", 50)
	v.SetDefault("timeouts.stall", "10m")
	v.SetDefault("timeouts.hard", "20m")
	v.SetDefault("timeouts.watchdog_tick", "30s")
}

// defaultDatabasePath returns the XDG data location for the database.
func defaultDatabasePath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "conductor", "conductor.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".conductor", "conductor.db")
	}
	return filepath.Join(home, ".local", "share", "conductor", "conductor.db")
}

// getUserConfigDir returns the XDG config directory for Conductor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current
// directory and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 3001},
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Agent: AgentConfig{
			Model:        "sonnet",
			MaxBudgetUSD: 5.0,
			MaxTurns:     50,
		},
		Timeouts: TimeoutsConfig{
			Stall:        10 * time.Minute,
			Hard:         20 * time.Minute,
			WatchdogTick: 30 * time.Second,
		},
	}
}
