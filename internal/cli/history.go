package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/render"
	"github.com/helioslabs/ledgerscope/pkg/scoring"
)

type HistoryCmd struct{}

func NewHistoryCmd() *HistoryCmd {
	return &HistoryCmd{}
}

func (c *HistoryCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(c.listCommand(), c.showCommand())
	return cmd
}

func (c *HistoryCmd) listCommand() *cobra.Command {
	var limit int
	var unrated bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: withHistory(func(ctx context.Context, store *history.Store, cmd *cobra.Command, args []string) error {
			var (
				runs []*history.Run
				err  error
			)
			if unrated {
				runs, err = store.Unrated(ctx, limit)
			} else {
				runs, err = store.Recent(ctx, limit)
			}
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded yet")
				return nil
			}
			render.HistoryTable(cmd.OutOrStdout(), runs)
			return nil
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&unrated, "unrated", false, "only runs without user feedback")

	return cmd
}

func (c *HistoryCmd) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in full",
		Args:  cobra.ExactArgs(1),
		RunE: withHistory(func(ctx context.Context, store *history.Store, cmd *cobra.Command, args []string) error {
			run, err := store.Get(ctx, args[0])
			if errors.Is(err, history.ErrNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}
			printStoredRun(cmd.OutOrStdout(), run)
			return nil
		}),
	}
}

func printStoredRun(w io.Writer, run *history.Run) {
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Asked:    %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Question: %s\n", run.Question)
	if run.Intent != "" {
		fmt.Fprintf(w, "Intent:   %s\n", run.Intent)
	}

	if run.SQL != "" {
		fmt.Fprintf(w, "\nSQL:\n%s\n", run.SQL)
	}
	if run.FinalText != "" {
		fmt.Fprintf(w, "\n%s\n", run.FinalText)
	}

	if len(run.Components) > 0 {
		fmt.Fprintln(w)
		render.ScoreTable(w, &scoring.Evaluation{
			Score:      run.Score,
			Tier:       scoring.Tier(run.Tier),
			Components: run.Components,
		})
	}

	if run.Rated() {
		fmt.Fprintf(w, "\nUser rating: %d/5", *run.UserScore)
		if run.UserFeedback != "" {
			fmt.Fprintf(w, " (%s)", run.UserFeedback)
		}
		fmt.Fprintln(w)
	}
	if run.ErrorCount > 0 {
		fmt.Fprintf(w, "\nErrors recorded: %d\n", run.ErrorCount)
	}

	fmt.Fprintf(w, "\nLatency: %.0f ms, tokens: %d\n", run.LatencyMS, run.TokensIn+run.TokensOut)
}
