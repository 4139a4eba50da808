package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helioslabs/ledgerscope/pkg/evalrun"
	"github.com/helioslabs/ledgerscope/pkg/render"
)

type EvalCmd struct{}

func NewEvalCmd() *EvalCmd {
	return &EvalCmd{}
}

func (c *EvalCmd) Command() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "eval <suite.yaml>",
		Short: "Run an evaluation suite against the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			suite, err := evalrun.LoadSuite(args[0])
			if err != nil {
				return fmt.Errorf("failed to load suite: %w", err)
			}

			runner, err := evalrun.NewRunner(evalrun.Config{
				Logger:  a.log,
				Run:     a.pipeline.Run,
				Workers: workers,
			})
			if err != nil {
				return fmt.Errorf("failed to create runner: %w", err)
			}

			summary, err := runner.Run(ctx, suite)
			if err != nil {
				return err
			}

			render.EvalTable(cmd.OutOrStdout(), summary)

			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d cases failed", summary.Failed, summary.Total)
			}
			return nil
		}),
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent eval workers (default 4)")

	return cmd
}
