package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gnoskos/gnoskos/cli/helpers"
	"github.com/gnoskos/gnoskos/pkg/config"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

// CommandExecutor carries the output mode and the opened components of one
// command invocation.
type CommandExecutor struct {
	mode       helpers.Mode
	out        io.Writer
	errOut     io.Writer
	components *Components
}

type HandlerFunc func(ctx context.Context, cmd *cobra.Command, executor *CommandExecutor, args []string) error

type ModeHandlers struct {
	JSON HandlerFunc
	Text HandlerFunc
}

type ExecutorOptions struct {
	// RequireComponents opens the vector store and embedder before the handler
	// runs and closes them afterwards.
	RequireComponents bool
}

func NewCommandExecutor(cmd *cobra.Command, opts ExecutorOptions) (*CommandExecutor, error) {
	ctx := cmd.Context()
	mode := helpers.DetectMode(cmd)
	logger.FromContext(ctx).Debug("Detected execution mode", "mode", mode)
	executor := &CommandExecutor{mode: mode, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	if opts.RequireComponents {
		components, err := BuildComponents(ctx, config.FromContext(ctx))
		if err != nil {
			return nil, err
		}
		executor.components = components
	}
	return executor, nil
}

func (e *CommandExecutor) Execute(ctx context.Context, cmd *cobra.Command, handlers ModeHandlers, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.components != nil {
		defer func() {
			if err := e.components.Close(context.WithoutCancel(ctx)); err != nil {
				logger.FromContext(ctx).Warn("Failed to close components", "error", err)
			}
		}()
	}
	handler := handlers.Text
	if e.mode == helpers.ModeJSON {
		handler = handlers.JSON
	}
	if handler == nil {
		return fmt.Errorf("%s mode handler not implemented", e.mode)
	}
	return handler(ctx, cmd, e, args)
}

func (e *CommandExecutor) Mode() helpers.Mode {
	return e.mode
}

func (e *CommandExecutor) Components() *Components {
	return e.components
}

func (e *CommandExecutor) Out() io.Writer {
	return e.out
}

// PrintJSON writes v as indented JSON to stdout.
func (e *CommandExecutor) PrintJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ExecuteCommand(cmd *cobra.Command, opts ExecutorOptions, handlers ModeHandlers, args []string) error {
	executor, err := NewCommandExecutor(cmd, opts)
	if err != nil {
		return HandleCommonErrors(cmd, err)
	}
	return HandleCommonErrors(cmd, executor.Execute(cmd.Context(), cmd, handlers, args))
}

// HandleCommonErrors prints err in the command's output mode and returns the
// categorized error.
func HandleCommonErrors(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	cliErr := helpers.Categorize(err)
	helpers.OutputError(cmd.ErrOrStderr(), cliErr, helpers.DetectMode(cmd))
	return cliErr
}
