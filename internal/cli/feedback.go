package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helioslabs/ledgerscope/pkg/history"
)

type FeedbackCmd struct{}

func NewFeedbackCmd() *FeedbackCmd {
	return &FeedbackCmd{}
}

func (c *FeedbackCmd) Command() *cobra.Command {
	var score int
	var comment string

	cmd := &cobra.Command{
		Use:   "feedback <run-id>",
		Short: "Rate a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: withHistory(func(ctx context.Context, store *history.Store, cmd *cobra.Command, args []string) error {
			if err := store.UpdateFeedback(ctx, args[0], score, comment); err != nil {
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				return fmt.Errorf("failed to record feedback: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d/5 for run %s\n", score, args[0])
			return nil
		}),
	}

	cmd.Flags().IntVar(&score, "score", 0, "rating from 1 (poor) to 5 (excellent)")
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment on the answer")
	_ = cmd.MarkFlagRequired("score")

	return cmd
}
