// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Cache, Upstream, Syncer) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Manhwari API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`

	// Optional Redis URL. When set, the cache tiers are backed by Redis
	// instead of the default in-process TTL maps.
	RedisURL string `env:"REDIS_URL"`

	// Upstream catalogue API (MangaDex-shaped)
	UpstreamAPIURL    string `env:"UPSTREAM_API_URL" envDefault:"https://api.mangadex.org"`
	UpstreamUsername  string `env:"UPSTREAM_USERNAME"`
	UpstreamSecret    string `env:"UPSTREAM_SECRET"`
	UpstreamUserAgent string `env:"UPSTREAM_USER_AGENT" envDefault:"manhwari/0.1 (+https://manhwari.app)"`

	// Background synchronisation
	SyncBatchSize    int    `env:"SYNC_BATCH_SIZE"    envDefault:"10"`
	SyncCronSchedule string `env:"SYNC_CRON_SCHEDULE"`

	// Cache tuning (seconds / key counts)
	CacheTTLDefault int `env:"CACHE_TTL_DEFAULT" envDefault:"3600"`
	CacheTTLSearch  int `env:"CACHE_TTL_SEARCH"  envDefault:"300"`
	CacheMaxKeys    int `env:"CACHE_MAX_KEYS"    envDefault:"1000"`

	// Cryptographic keys for admin-token verification
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CronSchedule returns the sync cron expression, falling back to every 15
// minutes in production and every 6 hours elsewhere when unset.
func (c *Config) CronSchedule() string {
	if c.SyncCronSchedule != "" {
		return c.SyncCronSchedule
	}
	if c.IsProduction() {
		return "*/15 * * * *"
	}
	return "0 */6 * * *"
}

// EntityTTL returns the default entity-cache TTL as a [time.Duration].
func (c *Config) EntityTTL() time.Duration {
	return time.Duration(c.CacheTTLDefault) * time.Second
}

// SearchTTL returns the search-cache TTL as a [time.Duration].
func (c *Config) SearchTTL() time.Duration {
	return time.Duration(c.CacheTTLSearch) * time.Second
}
