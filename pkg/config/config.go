// Package config loads the client's YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/querydeck/dbridge/pkg/history"
)

// Config holds the tunables of the orchestration layer.
type Config struct {
	// BridgeAddress is the TCP address of a running driver bridge.
	BridgeAddress string `yaml:"bridge_address"`

	// HistoryFile persists the data-source history. Empty keeps
	// history in memory for the session.
	HistoryFile string `yaml:"history_file"`

	SourceHistorySize int `yaml:"source_history_size"`
	QueryHistorySize  int `yaml:"query_history_size"`

	// ResultSentinel is the driver-specific execute reply meaning "a
	// result set is available"; see the pipeline driver profile.
	ResultSentinel float64 `yaml:"result_sentinel"`

	// RefreshInterval enables periodic background metadata refresh
	// when positive. YAML carries it as integer nanoseconds.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BridgeAddress:     "127.0.0.1:9181",
		SourceHistorySize: history.DefaultSourceCapacity,
		QueryHistorySize:  history.DefaultQueryCapacity,
		LogLevel:          "info",
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured level name onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
