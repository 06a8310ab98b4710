package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/infra/monitoring"
	"github.com/gnoskos/gnoskos/engine/infra/server/middleware/ratelimit"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

type Option func(*Server)

// WithMonitoring adds HTTP metrics and the metrics endpoint.
func WithMonitoring(service *monitoring.Service) Option {
	return func(s *Server) { s.monitoring = service }
}

// WithRedis stores rate limit counters in Redis.
func WithRedis(client redis.UniversalClient) Option {
	return func(s *Server) { s.redis = client }
}

type Server struct {
	config     *Config
	answerer   Answerer
	monitoring *monitoring.Service
	redis      redis.UniversalClient
	router     *gin.Engine
}

func NewServer(ctx context.Context, cfg *Config, answerer Answerer, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}
	if answerer == nil {
		return nil, fmt.Errorf("%w: server answerer is required", core.ErrInvalidConfiguration)
	}
	s := &Server{config: cfg, answerer: answerer}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.buildRouter(ctx); err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return s, nil
}

func (s *Server) buildRouter(ctx context.Context) error {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger.FromContext(ctx)))
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		r.Use(s.monitoring.GinMiddleware(ctx))
		if err := ratelimit.InitMetrics(s.monitoring.Meter()); err != nil {
			return fmt.Errorf("failed to init rate limit metrics: %w", err)
		}
		r.GET(s.monitoring.Path(), gin.WrapH(s.monitoring.ExporterHandler()))
	}
	if s.config.RateLimit.Enabled {
		manager, err := ratelimit.NewManager(&s.config.RateLimit, s.redis)
		if err != nil {
			return err
		}
		r.Use(manager.Middleware())
	}
	r.GET("/health", healthHandler)
	api := r.Group("/api")
	api.Use(BodySizeLimiter(s.config.MaxBodyBytes), TimeoutMiddleware(s.config.RequestTimeout))
	api.POST("/chat", chatHandler(s.answerer))
	s.router = r
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done or the process receives SIGINT or SIGTERM,
// then drains in-flight requests within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	srv := s.createHTTPServer(ctx)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err, ok := <-errCh:
		if ok {
			log.Error("Server failed to start", "error", err)
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Debug("Received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server shutdown completed successfully")
	return nil
}

func (s *Server) createHTTPServer(ctx context.Context) *http.Server {
	addr := s.config.Address()
	logger.FromContext(ctx).Info("Starting HTTP server", "address", fmt.Sprintf("http://%s", addr))
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
}
