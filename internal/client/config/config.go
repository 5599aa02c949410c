// Package config loads runtime configuration for the songletters CLI.
//
// Sources, lowest precedence first: built-in defaults, an optional JSON
// file, LETTERS_CLI_* environment variables. Command-line flags are bound
// by the cli package and applied last.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the CLI.
type Config struct {
	ServerURL      string
	DatabasePath   string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = defaultDatabasePath()
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig applies defaults, then the JSON file at path (skipped when
// path is empty), then the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}
	parseEnv(cfg)
	return cfg, nil
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "songletters.db"
	}
	return filepath.Join(dir, "songletters", "client.db")
}
