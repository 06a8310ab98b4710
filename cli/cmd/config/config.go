package config

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gnoskos/gnoskos/cli/cmd"
	"github.com/gnoskos/gnoskos/cli/helpers"
	"github.com/gnoskos/gnoskos/pkg/config"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	command.AddCommand(NewConfigShowCommand(), NewConfigValidateCommand())
	return command
}

func NewConfigShowCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration values and where they came from",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
				JSON: handleShowJSON,
				Text: handleShowText,
			}, args)
		},
	}
	command.Flags().StringP("output", "o", "table", "Text output layout (table, yaml)")
	return command
}

func NewConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, cmd.ExecutorOptions{}, cmd.ModeHandlers{
				JSON: handleValidate,
				Text: handleValidate,
			}, args)
		},
	}
}

// Entry is one leaf of the effective configuration.
type Entry struct {
	Key    string `json:"key"    yaml:"key"`
	Value  string `json:"value"  yaml:"value"`
	Source string `json:"source" yaml:"source"`
}

func handleShowJSON(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	return executor.PrintJSON(entries(ctx))
}

func handleShowText(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	output, err := cobraCmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	list := entries(ctx)
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(executor.Out())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(list)
	case "table", "":
		return printTable(executor.Out(), list)
	default:
		return fmt.Errorf("unsupported output %q: use table or yaml", output)
	}
}

func handleValidate(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	cfg := config.FromContext(ctx)
	if err := config.ServiceFromContext(ctx).Validate(cfg); err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("Configuration is valid")
	if executor.Mode() == helpers.ModeJSON {
		return executor.PrintJSON(map[string]bool{"valid": true})
	}
	_, err := fmt.Fprintln(executor.Out(), helpers.OKStyle.Render("Configuration is valid"))
	return err
}

func entries(ctx context.Context) []Entry {
	cfg := config.FromContext(ctx)
	svc := config.ServiceFromContext(ctx)
	var list []Entry
	collect(reflect.ValueOf(cfg).Elem(), "", func(key string, value string) {
		list = append(list, Entry{Key: key, Value: value, Source: string(svc.GetSource(key))})
	})
	slices.SortFunc(list, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	return list
}

// collect walks v by koanf tags and calls emit for every leaf. Values are
// formatted with %v so sensitive strings render redacted.
func collect(v reflect.Value, prefix string, emit func(key, value string)) {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		tag := strings.Split(field.Tag.Get("koanf"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && field.Type.PkgPath() != "" && !isLeaf(fv) {
			collect(fv, key, emit)
			continue
		}
		emit(key, fmt.Sprintf("%v", fv.Interface()))
	}
}

func isLeaf(v reflect.Value) bool {
	_, ok := v.Interface().(fmt.Stringer)
	return ok
}

func printTable(w io.Writer, list []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, helpers.Truncate(e.Value, 60), e.Source)
	}
	return tw.Flush()
}
