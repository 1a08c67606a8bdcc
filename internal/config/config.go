// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment (a .env
// file is autoloaded in main).
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"SPAR_ADDR" envDefault:":8080"`

	// RedisAddr selects the Redis-backed room store; empty keeps everything
	// in process memory.
	RedisAddr string `env:"REDIS_ADDR"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// DatabaseURL enables match-result persistence; empty disables it.
	DatabaseURL string `env:"DATABASE_URL"`

	// RoundDelay is the observation pause between round end and the next
	// deal.
	RoundDelay time.Duration `env:"ROUND_DELAY" envDefault:"3s"`

	// DefaultTargetScore is used when a room is created without one.
	DefaultTargetScore int `env:"DEFAULT_TARGET_SCORE" envDefault:"10"`

	// TokenExpiry bounds guest session tokens; zero means no expiry.
	TokenExpiry time.Duration `env:"TOKEN_EXPIRY" envDefault:"72h"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config from env: %w", err)
	}
	if cfg.DefaultTargetScore < 1 {
		return Config{}, fmt.Errorf("DEFAULT_TARGET_SCORE must be at least 1, got %d", cfg.DefaultTargetScore)
	}
	return cfg, nil
}
