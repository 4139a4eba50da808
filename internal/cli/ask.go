package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type AskCmd struct{}

func NewAskCmd() *AskCmd {
	return &AskCmd{}
}

func (c *AskCmd) Command() *cobra.Command {
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Answer one analytics question and exit",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			result, err := a.pipeline.Run(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to process question: %w", err)
			}

			printRun(cmd.OutOrStdout(), result, showTrace)
			fmt.Fprintf(cmd.OutOrStdout(), "rate it: ledgerscope feedback %s --score N\n", result.RunID)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&showTrace, "trace", false, "show the stage-by-stage execution trace")

	return cmd
}
