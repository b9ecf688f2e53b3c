// Package config reads the giftcard binary's settings from the environment.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable with GIFTCARD_STORE.
const (
	StorePostgres = "postgres"
	StoreGorm     = "gorm"
	StoreMemory   = "memory"
)

var (
	validStores     = []string{StorePostgres, StoreGorm, StoreMemory}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

type Config struct {
	DatabaseURL        string        `env:"GIFTCARD_DATABASE_URL"`
	Store              string        `env:"GIFTCARD_STORE"               envDefault:"postgres"`
	SummariesTable     string        `env:"GIFTCARD_SUMMARIES_TABLE"     envDefault:"giftcard_summaries"`
	RunnerName         string        `env:"GIFTCARD_RUNNER_NAME"         envDefault:"giftcard"`
	PollInterval       time.Duration `env:"GIFTCARD_POLL_INTERVAL"       envDefault:"1s"`
	BatchSize          int           `env:"GIFTCARD_BATCH_SIZE"          envDefault:"100"`
	SubscriptionBuffer int           `env:"GIFTCARD_SUBSCRIPTION_BUFFER" envDefault:"64"`
	MaxSubscriptions   int           `env:"GIFTCARD_MAX_SUBSCRIPTIONS"   envDefault:"10000"`
	BalanceGuard       bool          `env:"GIFTCARD_BALANCE_GUARD"       envDefault:"false"`
	LogLevel           string        `env:"GIFTCARD_LOG_LEVEL"           envDefault:"info"`
	LogFormat          string        `env:"GIFTCARD_LOG_FORMAT"          envDefault:"text"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom is Load over an explicit environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and bounds. A database URL is only required by
// the Postgres-backed stores.
func (c Config) Validate() error {
	if !slices.Contains(validStores, c.Store) {
		return fmt.Errorf("config: GIFTCARD_STORE %q: must be one of %v", c.Store, validStores)
	}
	if c.Store != StoreMemory && c.DatabaseURL == "" {
		return fmt.Errorf("config: GIFTCARD_DATABASE_URL is required for store %q", c.Store)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: GIFTCARD_POLL_INTERVAL %s must be positive", c.PollInterval)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: GIFTCARD_BATCH_SIZE %d must be positive", c.BatchSize)
	}
	if c.SubscriptionBuffer <= 0 {
		return fmt.Errorf("config: GIFTCARD_SUBSCRIPTION_BUFFER %d must be positive", c.SubscriptionBuffer)
	}
	if c.MaxSubscriptions <= 0 {
		return fmt.Errorf("config: GIFTCARD_MAX_SUBSCRIPTIONS %d must be positive", c.MaxSubscriptions)
	}
	if c.RunnerName == "" {
		return fmt.Errorf("config: GIFTCARD_RUNNER_NAME must not be empty")
	}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("config: GIFTCARD_LOG_LEVEL %q: must be one of %v", c.LogLevel, validLogLevels)
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("config: GIFTCARD_LOG_FORMAT %q: must be one of %v", c.LogFormat, validLogFormats)
	}
	return nil
}
