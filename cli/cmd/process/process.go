package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/gnoskos/gnoskos/cli/cmd"
	"github.com/gnoskos/gnoskos/cli/helpers"
	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge/corpus"
	"github.com/gnoskos/gnoskos/engine/knowledge/ingest"
	"github.com/gnoskos/gnoskos/pkg/config"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

// NewProcessCommand creates the command that chunks, embeds and stores a corpus.
func NewProcessCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "process [corpus]",
		Short: "Ingest a corpus into the vector store",
		Long: `Split the corpus into works, chunk every work, embed the chunks and
store them in the vector store. Chunks that fail are logged and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeProcessCommand,
	}
	command.Flags().String("corpus", "", "Path to the corpus file (.txt or .pdf)")
	command.Flags().Int("batch-size", 0, "Chunks per ingestion batch")
	return command
}

func executeProcessCommand(cobraCmd *cobra.Command, args []string) error {
	return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{RequireComponents: true}, cmd.ModeHandlers{
		JSON: handleProcessJSON,
		Text: handleProcessText,
	}, args)
}

// Summary is the outcome of one process run.
type Summary struct {
	Corpus           string          `json:"corpus"`
	Documents        int             `json:"documents"`
	SkippedDocuments int             `json:"skipped_documents"`
	Attempted        int             `json:"attempted"`
	Stored           int             `json:"stored"`
	Failed           int             `json:"failed"`
	Batches          int             `json:"batches"`
	Duration         string          `json:"duration"`
	TotalChunks      int64           `json:"total_chunks"`
	Failures         []FailureReport `json:"failures"`
}

type FailureReport struct {
	Title      string `json:"title"`
	ChunkIndex int    `json:"chunk_index"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

func handleProcessJSON(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	summary, err := run(ctx, executor, args, nil)
	if summary != nil {
		if printErr := executor.PrintJSON(summary); printErr != nil && err == nil {
			err = printErr
		}
	}
	return err
}

func handleProcessText(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	var bar *progressbar.ProgressBar
	var progress func(ingest.Progress)
	if helpers.IsInteractive() {
		progress = func(p ingest.Progress) {
			if bar == nil {
				bar = newProgressBar(cobraCmd.ErrOrStderr(), p.Total)
			}
			_ = bar.Set(p.Attempted)
		}
	}
	summary, err := run(ctx, executor, args, progress)
	if bar != nil {
		_ = bar.Finish()
	}
	if summary != nil {
		printSummary(executor.Out(), summary)
	}
	return err
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// run returns a summary whenever the pipeline started, including after
// cancellation.
func run(
	ctx context.Context,
	executor *cmd.CommandExecutor,
	args []string,
	progress func(ingest.Progress),
) (*Summary, error) {
	cfg := config.FromContext(ctx)
	path := cfg.Corpus.Path
	if len(args) == 1 {
		path = args[0]
	}
	docs, err := corpus.Load(ctx, path, cmd.CorpusOptions(cfg))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no works found in %s", core.ErrInvalidRequest, path)
	}
	components := executor.Components()
	pipeline, err := components.Pipeline(progress)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Ingesting corpus", "path", path, "documents", len(docs))
	res, runErr := pipeline.Run(ctx, docs)
	if res == nil {
		return nil, runErr
	}
	summary := summarize(path, res)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return summary, runErr
	}
	total, err := components.Store.Count(context.WithoutCancel(ctx))
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to count stored chunks", "error", core.RedactError(err))
	}
	summary.TotalChunks = total
	return summary, runErr
}

func summarize(path string, res *ingest.Result) *Summary {
	s := &Summary{
		Corpus:           path,
		Documents:        res.Documents,
		SkippedDocuments: res.SkippedDocuments,
		Attempted:        res.Attempted,
		Stored:           res.Stored,
		Failed:           res.Failed,
		Batches:          res.Batches,
		Duration:         res.Duration.Round(time.Millisecond).String(),
		Failures:         make([]FailureReport, len(res.Failures)),
	}
	for i, f := range res.Failures {
		s.Failures[i] = FailureReport{
			Title:      f.Title,
			ChunkIndex: f.Index,
			Stage:      string(f.Stage),
			Error:      core.RedactError(f.Err),
		}
	}
	return s
}

func printSummary(w io.Writer, s *Summary) {
	fmt.Fprintln(w, helpers.TitleStyle.Render("Ingestion summary"))
	fmt.Fprintf(w, "  Corpus:     %s\n", s.Corpus)
	fmt.Fprintf(w, "  Documents:  %s\n", countOf(s.Documents, "work", "works"))
	if s.SkippedDocuments > 0 {
		fmt.Fprintf(w, "  Skipped:    %s\n", helpers.WarnStyle.Render(countOf(s.SkippedDocuments, "work", "works")))
	}
	fmt.Fprintf(w, "  Attempted:  %d\n", s.Attempted)
	fmt.Fprintf(w, "  Stored:     %s\n", helpers.OKStyle.Render(fmt.Sprint(s.Stored)))
	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = helpers.WarnStyle.Render(failed)
	}
	fmt.Fprintf(w, "  Failed:     %s\n", failed)
	fmt.Fprintf(w, "  Duration:   %s\n", s.Duration)
	if s.TotalChunks > 0 {
		fmt.Fprintf(w, "  In store:   %s\n", countOf(int(s.TotalChunks), "chunk", "chunks"))
	}
	for _, f := range s.Failures {
		fmt.Fprintln(w, helpers.MutedStyle.Render(
			fmt.Sprintf("    %s #%d (%s): %s", f.Title, f.ChunkIndex, f.Stage, helpers.Truncate(f.Error, 120)),
		))
	}
}

func countOf(n int, singular, plural string) string {
	return fmt.Sprintf("%d %s", n, helpers.Pluralize(n, singular, plural))
}
