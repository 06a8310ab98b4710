package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/gnoskos/gnoskos/pkg/logger"
)

const cleanupInterval = time.Minute

// Manager holds the limiter shared by every request of one server.
type Manager struct {
	config  *Config
	limiter *limiter.Limiter
}

// NewManager builds a limiter over client, or over an in-memory store when
// client is nil.
func NewManager(cfg *Config, client redis.UniversalClient) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rate, err := cfg.LimiterRate()
	if err != nil {
		return nil, err
	}
	opts := limiter.StoreOptions{
		Prefix:          cfg.Prefix,
		MaxRetry:        cfg.MaxRetry,
		CleanUpInterval: cleanupInterval,
	}
	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return &Manager{config: cfg, limiter: limiter.New(store, rate)}, nil
}

// Middleware limits requests per client IP. Excluded paths pass through.
func (m *Manager) Middleware() gin.HandlerFunc {
	limit := mgin.NewMiddleware(
		m.limiter,
		mgin.WithLimitReachedHandler(limitReached),
		mgin.WithErrorHandler(limitError),
	)
	return func(c *gin.Context) {
		if m.config.excluded(c.Request.URL.Path) {
			c.Next()
			return
		}
		limit(c)
	}
}

func limitReached(c *gin.Context) {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	incrementBlockedRequests(c.Request.Context(), route)
	logger.FromContext(c.Request.Context()).Warn(
		"Request blocked by rate limit",
		"client_ip", c.ClientIP(),
		"path", c.Request.URL.Path,
	)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
}

func limitError(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context()).Error("Rate limit store failed", "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
