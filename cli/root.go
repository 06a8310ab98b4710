package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	clicmd "github.com/gnoskos/gnoskos/cli/cmd"
	"github.com/gnoskos/gnoskos/cli/cmd/ask"
	configcmd "github.com/gnoskos/gnoskos/cli/cmd/config"
	"github.com/gnoskos/gnoskos/cli/cmd/process"
	"github.com/gnoskos/gnoskos/cli/cmd/serve"
	"github.com/gnoskos/gnoskos/cli/cmd/version"
	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/pkg/config"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

const (
	defaultConfigFile = "gnoskos.yaml"
	defaultEnvFile    = ".env"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gnoskos",
		Short: "Ask questions about a literary corpus",
		Long: `gnoskos ingests a corpus into a pgvector store and answers questions
about it with a chat model, citing the passages it used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return clicmd.HandleCommonErrors(cmd, SetupGlobalConfig(cmd))
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the YAML configuration file")
	flags.String("env-file", defaultEnvFile, "Path to a .env file to load")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include the source location in logs")
	flags.String("format", "", "Output format (text, json)")

	root.AddCommand(
		process.NewProcessCommand(),
		ask.NewAskCommand(),
		serve.NewServeCommand(),
		configcmd.NewConfigCommand(),
		version.NewVersionCommand(),
	)
	return root
}

// SetupGlobalConfig loads the env file and the layered configuration, then
// stores the logger and the config in the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	flags := cmd.Flags()
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return err
	}
	if envFile != "" {
		if err := config.LoadEnvFile(envFile, flags.Changed("env-file")); err != nil {
			return core.WrapKind(core.ErrInvalidConfiguration, "load env file", err)
		}
	}
	cfgFile, err := flags.GetString("config")
	if err != nil {
		return err
	}
	var sources []config.Source
	if cfgFile != "" {
		if flags.Changed("config") {
			if _, err := os.Stat(cfgFile); err != nil {
				return fmt.Errorf("%w: config file %s: %w", core.ErrInvalidConfiguration, cfgFile, err)
			}
		}
		sources = append(sources, config.NewYAMLProvider(cfgFile))
	}
	sources = append(sources, config.NewCLIProvider(changedFlags(flags)))

	svc := config.NewService()
	cfg, err := svc.Load(ctx, sources...)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(logger.LogLevel(cfg.Runtime.LogLevel), cfg.Runtime.LogJSON, cfg.Runtime.LogSource)
	log.Debug("Configuration loaded", "config_file", cfgFile, "environment", cfg.Runtime.Environment)

	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = config.ContextWithService(ctx, svc)
	cmd.SetContext(ctx)
	return nil
}

// changedFlags collects the flags the user set explicitly, so unset flag
// defaults never override YAML or env values.
func changedFlags(flags *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		switch f.Value.Type() {
		case "bool":
			v, err := flags.GetBool(f.Name)
			if err == nil {
				out[f.Name] = v
			}
		case "int":
			v, err := flags.GetInt(f.Name)
			if err == nil {
				out[f.Name] = v
			}
		default:
			out[f.Name] = f.Value.String()
		}
	})
	return out
}
