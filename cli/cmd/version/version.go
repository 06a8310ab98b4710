package version

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnoskos/gnoskos/cli/cmd"
	"github.com/gnoskos/gnoskos/engine/infra/monitoring"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
				JSON: func(_ context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
					return executor.PrintJSON(current())
				},
				Text: func(_ context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
					info := current()
					_, err := fmt.Fprintf(executor.Out(), "gnoskos %s (commit %s, %s)\n", info.Version, info.Commit, info.GoVersion)
					return err
				},
			}, args)
		},
	}
}

func current() Info {
	v, commit, goVersion := monitoring.BuildInfo()
	return Info{Version: v, Commit: commit, GoVersion: goVersion}
}
