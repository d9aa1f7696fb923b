package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minSessionSecretLength = 32

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	InstanceID  string `env:"INSTANCE_ID"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	SessionSecret         string        `env:"SESSION_SECRET"`
	SessionMaxAge         time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
	SettingsEncryptionKey string        `env:"SETTINGS_ENCRYPTION_KEY"`

	PackCacheTTL        time.Duration `env:"PACK_CACHE_TTL" default:"10s"`
	RolloutTickInterval time.Duration `env:"ROLLOUT_TICK_INTERVAL" default:"1m"`

	PortalRateLimit float64 `env:"PORTAL_RATE_LIMIT" default:"5"`
	PortalRateBurst int     `env:"PORTAL_RATE_BURST" default:"20"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	// checked in a fixed order so the first missing variable is reported deterministically
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"SESSION_SECRET", cfg.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.SessionSecret) < minSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLength)
	}

	if cfg.SettingsEncryptionKey == "" {
		if cfg.IsProduction() {
			return errors.New("SETTINGS_ENCRYPTION_KEY is required in production")
		}
	} else {
		keyBytes, err := hex.DecodeString(cfg.SettingsEncryptionKey)
		if err != nil {
			return fmt.Errorf("SETTINGS_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("SETTINGS_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if cfg.PackCacheTTL <= 0 {
		return errors.New("PACK_CACHE_TTL must be positive")
	}
	if cfg.RolloutTickInterval <= 0 {
		return errors.New("ROLLOUT_TICK_INTERVAL must be positive")
	}
	if cfg.PortalRateLimit <= 0 || cfg.PortalRateBurst <= 0 {
		return errors.New("PORTAL_RATE_LIMIT and PORTAL_RATE_BURST must be positive")
	}

	return nil
}
