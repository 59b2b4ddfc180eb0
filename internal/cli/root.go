// Package cli implements the lumen command line: an interactive ReAct agent
// and a retrieval-augmented question answering command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nevindra/lumen/internal/config"
)

// options holds flags shared by every subcommand.
type options struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the lumen command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "lumen",
		Short:         "ReAct agent and RAG pipeline over OpenAI-compatible models",
		Long:          "lumen runs a tool-using ReAct agent or answers questions over local documents. Settings come from lumen.toml and LUMEN_* environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (default: lumen.toml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(newAgentCmd(opts), newRAGCmd(opts))
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// load reads config and creates the logger for a command invocation.
func (o *options) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, newLogger(cmd.ErrOrStderr(), o.verbose), nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
