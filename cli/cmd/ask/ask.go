package ask

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnoskos/gnoskos/cli/cmd"
	"github.com/gnoskos/gnoskos/cli/helpers"
	"github.com/gnoskos/gnoskos/engine/knowledge/retriever"
)

// NewAskCommand creates the command that answers one question from the store.
func NewAskCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested corpus",
		Long: `Embed the question, retrieve the closest chunks and ask the chat model
to answer from them. The answer is printed with its sources.`,
		Example: `  gnoskos ask "Who does Elizabeth Bennet marry?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    executeAskCommand,
	}
	command.Flags().Int("top-k", 0, "Number of chunks to retrieve")
	return command
}

func executeAskCommand(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{RequireComponents: true}, cmd.ModeHandlers{
		JSON: handleAskJSON,
		Text: handleAskText,
	}, args)
}

func answer(ctx context.Context, executor *cmd.CommandExecutor, args []string) (*retriever.Answer, error) {
	svc, err := executor.Components().Retriever(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Answer(ctx, strings.Join(args, " "))
}

func handleAskJSON(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := answer(ctx, executor, args)
	if err != nil {
		return err
	}
	if res.Sources == nil {
		res.Sources = []retriever.Source{}
	}
	return executor.PrintJSON(res)
}

func handleAskText(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	res, err := answer(ctx, executor, args)
	if err != nil {
		return err
	}
	printAnswer(executor.Out(), res)
	return nil
}

func printAnswer(w io.Writer, res *retriever.Answer) {
	fmt.Fprintln(w, res.Response)
	if len(res.Sources) == 0 {
		fmt.Fprintln(w, helpers.MutedStyle.Render("\nNo sources matched."))
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, helpers.TitleStyle.Render("Sources"))
	for i, src := range res.Sources {
		fmt.Fprintf(w, "  [%d] %s, %s (similarity %.3f)\n", i+1, src.Metadata.Title, src.Metadata.Author, src.Similarity)
		preview := strings.Join(strings.Fields(src.Content), " ")
		fmt.Fprintln(w, helpers.MutedStyle.Render("      "+preview))
	}
}
