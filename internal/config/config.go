// Package config loads and persists the client configuration.
//
// Configuration lives in a .conquest directory discovered by walking
// up from the working directory (so a game's data travels with
// wherever the player set it up), with environment overrides under the
// CONQUEST_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the data directory searched for upward from the working
// directory.
const DirName = ".conquest"

// ConfigFileName is the config file inside the data directory.
const ConfigFileName = "config.yaml"

// DatabaseFileName is the SQLite database inside the data directory.
const DatabaseFileName = "conquest.db"

// Config is the client configuration.
type Config struct {
	ServerURL string `mapstructure:"server_url"`

	// Player identity, written by `cq join`.
	PlayerID   string `mapstructure:"player_id"`
	PlayerName string `mapstructure:"player_name"`
	TeamID     string `mapstructure:"team_id"`
	GameID     string `mapstructure:"game_id"`

	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// DaemonConfig holds sync daemon settings.
type DaemonConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// DashboardConfig holds dashboard server settings.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig holds daemon log rotation settings.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// FindDataDir searches for a .conquest directory starting from the
// working directory and walking up. Returns "" if none is found.
func FindDataDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// DatabasePath returns the database file path for a data directory.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, DatabaseFileName)
}

func newViper(dataDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)

	v.SetEnvPrefix("CONQUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("daemon.flush_interval", time.Minute)
	v.SetDefault("daemon.probe_interval", 10*time.Second)
	v.SetDefault("dashboard.port", 8737)
	v.SetDefault("log.file", "daemon.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	return v
}

// Load reads the configuration from the data directory. A missing
// config file yields the defaults; a malformed one is an error.
func Load(dataDir string) (*Config, error) {
	v := newViper(dataDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration back to the data directory.
func Save(dataDir string, cfg *Config) error {
	v := newViper(dataDir)

	v.Set("server_url", cfg.ServerURL)
	v.Set("player_id", cfg.PlayerID)
	v.Set("player_name", cfg.PlayerName)
	v.Set("team_id", cfg.TeamID)
	v.Set("game_id", cfg.GameID)
	v.Set("daemon.flush_interval", cfg.Daemon.FlushInterval.String())
	v.Set("daemon.probe_interval", cfg.Daemon.ProbeInterval.String())
	v.Set("dashboard.port", cfg.Dashboard.Port)
	v.Set("log.file", cfg.Log.File)
	v.Set("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.Set("log.max_backups", cfg.Log.MaxBackups)

	path := filepath.Join(dataDir, ConfigFileName)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Init creates a data directory (with a default config) under the
// given parent and returns its path.
func Init(parent string) (string, error) {
	dataDir := filepath.Join(parent, DirName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	configPath := filepath.Join(dataDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg, err := Load(dataDir)
		if err != nil {
			return "", err
		}
		if err := Save(dataDir, cfg); err != nil {
			return "", err
		}
	}

	return dataDir, nil
}
