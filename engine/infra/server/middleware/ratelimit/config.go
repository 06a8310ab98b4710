package ratelimit

import (
	"fmt"
	"strings"

	"github.com/ulule/limiter/v3"
)

// Config controls the per-client request limit of the HTTP server.
type Config struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// Rate uses the limiter format "<limit>-<period>", e.g. "60-M".
	Rate   string `koanf:"rate"   json:"rate"    yaml:"rate"    mapstructure:"rate"`
	Prefix string `koanf:"prefix" json:"prefix"  yaml:"prefix"  mapstructure:"prefix"`
	// RedisURL switches the counters to Redis. Empty keeps them in memory.
	RedisURL      string   `koanf:"redis_url"      json:"redis_url"      yaml:"redis_url"      mapstructure:"redis_url"`
	MaxRetry      int      `koanf:"max_retry"      json:"max_retry"      yaml:"max_retry"      mapstructure:"max_retry"`
	ExcludedPaths []string `koanf:"excluded_paths" json:"excluded_paths" yaml:"excluded_paths" mapstructure:"excluded_paths"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:  false,
		Rate:     "60-M",
		Prefix:   "gnoskos:ratelimit:",
		MaxRetry: 3,
		ExcludedPaths: []string{
			"/health",
			"/metrics",
		},
	}
}

// LimiterRate parses Rate.
func (c *Config) LimiterRate() (limiter.Rate, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(c.Rate))
	if err != nil {
		return limiter.Rate{}, fmt.Errorf("invalid rate limit %q: %w", c.Rate, err)
	}
	if rate.Limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("rate limit %q must be positive", c.Rate)
	}
	return rate, nil
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	_, err := c.LimiterRate()
	return err
}

func (c *Config) excluded(path string) bool {
	for _, prefix := range c.ExcludedPaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
