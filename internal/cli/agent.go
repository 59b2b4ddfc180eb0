package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nevindra/lumen/observer"
)

func newAgentCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent [question]",
		Short: "Ask the ReAct agent a question",
		Long: "Runs the ReAct agent with the calculator and weather tools. With a question argument it answers once; " +
			"without one it reads questions from stdin until EOF or \"exit\". Conversation memory persists across questions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if n, _ := cmd.Flags().GetInt("max-iterations"); n > 0 {
				cfg.Agent.MaxIterations = n
			}

			ctx := cmd.Context()
			c, err := newComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("shutdown", "error", err)
				}
			}()

			agent, err := c.agent(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return ask(ctx, out, agent, strings.Join(args, " "))
			}
			return repl(ctx, cmd.InOrStdin(), out, func(q string) error {
				return ask(ctx, out, agent, q)
			})
		},
	}
	cmd.Flags().Int("max-iterations", 0, "Override agent.max_iterations")
	return cmd
}

// ask runs one question. A failed run is rendered, not returned, so an
// interactive session survives it.
func ask(ctx context.Context, w io.Writer, agent observer.Runner, question string) error {
	res, err := agent.Run(ctx, question)
	renderRun(w, res, err)
	return ctx.Err()
}

// repl feeds stdin lines to fn until EOF or an exit command.
func repl(ctx context.Context, in io.Reader, w io.Writer, fn func(string) error) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, headerStyle.Render("> "))
		if !sc.Scan() {
			fmt.Fprintln(w)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := fn(line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
