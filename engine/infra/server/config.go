package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gnoskos/gnoskos/engine/infra/server/middleware/ratelimit"
)

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 3000
	DefaultRequestTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	httpReadTimeout        = 15 * time.Second
	httpWriteTimeout       = 90 * time.Second
	httpIdleTimeout        = 60 * time.Second
)

type Config struct {
	Host string
	Port int
	// RequestTimeout bounds the work of one request. Zero disables it.
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	RateLimit       ratelimit.Config
}

func DefaultConfig() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		RequestTimeout:  DefaultRequestTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		RateLimit:       *ratelimit.DefaultConfig(),
	}
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Port)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("server request timeout must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max body bytes must be positive")
	}
	return c.RateLimit.Validate()
}
