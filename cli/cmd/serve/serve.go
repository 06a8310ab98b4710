package serve

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gnoskos/gnoskos/cli/cmd"
	"github.com/gnoskos/gnoskos/engine/infra/monitoring"
	"github.com/gnoskos/gnoskos/engine/infra/server"
	"github.com/gnoskos/gnoskos/pkg/config"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

const monitoringShutdownTimeout = 5 * time.Second

// NewServeCommand creates the command that exposes the chat API over HTTP.
func NewServeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		Long: `Serve POST /api/chat, GET /health and, when monitoring is enabled, the
Prometheus metrics endpoint. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: executeServeCommand,
	}
	command.Flags().String("host", "", "Host interface to bind")
	command.Flags().Int("port", 0, "Port to listen on")
	return command
}

func executeServeCommand(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
		JSON: handleServe,
		Text: handleServe,
	}, args)
}

func handleServe(ctx context.Context, _ *cobra.Command, _ *cmd.CommandExecutor, _ []string) error {
	log := logger.FromContext(ctx)
	cfg := config.FromContext(ctx)
	if cfg.Runtime.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	mon := monitoring.NewMonitoringServiceWithFallback(ctx, cmd.MonitoringConfig(cfg))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), monitoringShutdownTimeout)
		defer cancel()
		if err := mon.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down monitoring", "error", err)
		}
	}()
	// Knowledge instruments bind to the global provider on first use.
	mon.SetAsGlobal()
	if mon.IsInitialized() {
		monitoring.InitSystemMetrics(ctx, mon.Meter())
	}

	components, err := cmd.BuildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to close components", "error", err)
		}
	}()
	svc, err := components.Retriever(ctx)
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithMonitoring(mon)}
	serverCfg := cmd.ServerConfig(cfg)
	if serverCfg.RateLimit.Enabled && serverCfg.RateLimit.RedisURL != "" {
		client, err := cmd.NewRedisClient(serverCfg.RateLimit.RedisURL)
		if err != nil {
			return err
		}
		defer closeRedis(ctx, client)
		opts = append(opts, server.WithRedis(client))
	}
	srv, err := server.NewServer(ctx, serverCfg, svc, opts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func closeRedis(ctx context.Context, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.FromContext(ctx).Warn("Failed to close redis client", "error", err)
	}
}
