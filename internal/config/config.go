// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package config loads server configuration from DOCREPL_* environment
// variables. Variables are grouped by section, e.g. DOCREPL_SERVER_PORT or
// DOCREPL_RUNTIME_ENGINE.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name.
const Prefix = "DOCREPL"

// Config holds all server configuration.
type Config struct {
	Server    ServerConfig
	Runtime   RuntimeConfig
	Pool      PoolConfig
	Logging   LogConfig
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	Host           string        `envconfig:"HOST" default:"0.0.0.0"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
}

// RuntimeConfig selects the realm engine and evaluation defaults.
type RuntimeConfig struct {
	Engine         string        `envconfig:"ENGINE" default:"goja"`
	DefaultVersion string        `envconfig:"DEFAULT_VERSION"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"20s"`
	MaxCallStack   int           `envconfig:"MAX_CALL_STACK" default:"1024"`
	StoreCapacity  int           `envconfig:"STORE_CAPACITY" default:"256"`
}

// PoolConfig bounds the worker pool.
type PoolConfig struct {
	MaxWorkers uint32        `envconfig:"MAX_WORKERS" default:"64"`
	IdleTTL    time.Duration `envconfig:"IDLE_TTL" default:"10m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// RateLimitConfig limits frames per WebSocket connection.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RPS" default:"20"`
	Burst             int  `envconfig:"BURST" default:"40"`
	Enabled           bool `envconfig:"ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.Runtime.Engine {
	case "goja", "quickjs", "v8":
	default:
		return fmt.Errorf("invalid engine %q: must be goja, quickjs or v8", c.Runtime.Engine)
	}
	if c.Runtime.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Runtime.Timeout)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.Enabled && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit burst must be positive, got %d", c.RateLimit.Burst)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
