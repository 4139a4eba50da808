package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/render"
)

type StatsCmd struct{}

func NewStatsCmd() *StatsCmd {
	return &StatsCmd{}
}

func (c *StatsCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate run statistics",
		Args:  cobra.NoArgs,
		RunE: withHistory(func(ctx context.Context, store *history.Store, cmd *cobra.Command, args []string) error {
			stats, err := store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to load stats: %w", err)
			}
			if stats.TotalRuns == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded yet")
				return nil
			}
			render.StatsTable(cmd.OutOrStdout(), stats)
			return nil
		}),
	}
}
