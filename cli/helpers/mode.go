package helpers

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// DetectMode picks JSON output when --format json is set, and text otherwise.
// Without an explicit flag, JSON is used when stdout is not a terminal in CI.
func DetectMode(cmd *cobra.Command) Mode {
	if cmd != nil {
		if format, err := cmd.Flags().GetString("format"); err == nil && format != "" {
			if Mode(format) == ModeJSON {
				return ModeJSON
			}
			return ModeText
		}
	}
	if isRunningInCI() && !isTerminal(os.Stdout) {
		return ModeJSON
	}
	return ModeText
}

func isRunningInCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE", "JENKINS_URL"} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsInteractive reports whether stderr is a terminal, where progress bars render.
func IsInteractive() bool {
	return isTerminal(os.Stderr)
}
