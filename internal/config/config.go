// Package config holds memkeep configuration: defaults, JSON file
// loading, and environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Config holds all memkeep configuration.
type Config struct {
	// StorageDir is the store directory; empty means ~/.memkeep.
	StorageDir string       `json:"storage_dir" env:"MEMKEEP_STORAGE_DIR"`
	Server     ServerConfig `json:"server"`
	Decay      DecayConfig  `json:"decay"`
	// SessionCacheSeconds bounds how long an idle per-user session
	// aggregation stays cached.
	SessionCacheSeconds int `json:"session_cache_seconds" env:"MEMKEEP_SESSION_CACHE_SECONDS"`
}

type ServerConfig struct {
	Bind string `json:"bind" env:"MEMKEEP_SERVER_BIND"`
	Port int    `json:"port" env:"MEMKEEP_SERVER_PORT"`
}

type DecayConfig struct {
	MaxAgeHours           int     `json:"max_age_hours" env:"MEMKEEP_DECAY_MAX_AGE_HOURS"`
	ImportanceThreshold   float64 `json:"importance_threshold" env:"MEMKEEP_DECAY_IMPORTANCE_THRESHOLD"`
	MaxMemoriesPerUser    int     `json:"max_memories_per_user" env:"MEMKEEP_DECAY_MAX_MEMORIES_PER_USER"`
	CompressionEnabled    bool    `json:"compression_enabled" env:"MEMKEEP_DECAY_COMPRESSION_ENABLED"`
	AutoSummarizeSessions bool    `json:"auto_summarize_sessions" env:"MEMKEEP_DECAY_AUTO_SUMMARIZE_SESSIONS"`
	// Schedule is a cron expression for periodic decay in serve mode.
	Schedule string `json:"schedule" env:"MEMKEEP_DECAY_SCHEDULE"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		StorageDir: "", // resolved at runtime via store.DefaultDir()
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37737,
		},
		Decay: DecayConfig{
			MaxAgeHours:           24 * 30,
			ImportanceThreshold:   0.3,
			MaxMemoriesPerUser:    10000,
			CompressionEnabled:    true,
			AutoSummarizeSessions: true,
			Schedule:              "@daily",
		},
		SessionCacheSeconds: 300,
	}
}

// Load builds the effective configuration: defaults, then the JSON
// file at path (if non-empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}
	if c.Decay.MaxAgeHours <= 0 {
		return fmt.Errorf("config: decay max_age_hours must be positive, got %d", c.Decay.MaxAgeHours)
	}
	if c.Decay.ImportanceThreshold < 0 || c.Decay.ImportanceThreshold > 1 {
		return fmt.Errorf("config: decay importance_threshold %v outside [0,1]", c.Decay.ImportanceThreshold)
	}
	if c.Decay.MaxMemoriesPerUser <= 0 {
		return fmt.Errorf("config: decay max_memories_per_user must be positive, got %d", c.Decay.MaxMemoriesPerUser)
	}
	if c.SessionCacheSeconds <= 0 {
		return fmt.Errorf("config: session_cache_seconds must be positive, got %d", c.SessionCacheSeconds)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
