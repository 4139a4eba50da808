package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helioslabs/ledgerscope/pkg/render"
)

type ReplCmd struct{}

func NewReplCmd() *ReplCmd {
	return &ReplCmd{}
}

func (c *ReplCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive question console",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return runRepl(ctx, a, cmd.OutOrStdout(), os.Stdin)
		}),
	}
}

func runRepl(ctx context.Context, a *app, w io.Writer, in io.Reader) error {
	fmt.Fprintln(w, "ledgerscope interactive console")
	if info, err := a.profile.Info(ctx); err == nil {
		fmt.Fprintf(w, "events table: %d rows, %s to %s\n", info.RowCount, info.MinDate, info.MaxDate)
	} else {
		a.log.Debug("failed to profile events table", "error", err)
	}
	fmt.Fprintln(w, "Ask about the events table in plain language. Commands: help, history, stats, quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(w, "bye")
			return nil
		case "help":
			printReplHelp(w)
			continue
		case "history":
			runs, err := a.history.Recent(ctx, 10)
			if err != nil {
				fmt.Fprintf(w, "failed to list runs: %v\n", err)
				continue
			}
			if len(runs) == 0 {
				fmt.Fprintln(w, "no runs recorded yet")
				continue
			}
			render.HistoryTable(w, runs)
			continue
		case "stats":
			stats, err := a.history.Stats(ctx)
			if err != nil {
				fmt.Fprintf(w, "failed to load stats: %v\n", err)
				continue
			}
			if stats.TotalRuns == 0 {
				fmt.Fprintln(w, "no runs recorded yet")
				continue
			}
			render.StatsTable(w, stats)
			continue
		}

		result, err := a.pipeline.Run(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(w, "\ninterrupted")
				return nil
			}
			fmt.Fprintf(w, "failed to process question: %v\n", err)
			continue
		}
		printRun(w, result, false)
		promptFeedback(ctx, a, w, scanner, result.RunID)
	}
}

func printReplHelp(w io.Writer) {
	fmt.Fprintln(w, `Example questions:
  - What is the total deposit amount?
  - Show me deposits by channel
  - What's the monthly trend of withdrawals?
  - Compare digital versus branch transactions

Commands:
  help     show this message
  history  list recent runs
  stats    show aggregate statistics
  quit     leave the console`)
}

// promptFeedback asks for a 1-5 rating after each answer. Enter skips; low
// ratings get a follow-up for what went wrong.
func promptFeedback(ctx context.Context, a *app, w io.Writer, scanner *bufio.Scanner, runID string) {
	fmt.Fprint(w, "\nRate this answer 1-5 (enter to skip): ")
	if !scanner.Scan() {
		return
	}
	raw := strings.TrimSpace(scanner.Text())
	if raw == "" || strings.EqualFold(raw, "skip") {
		return
	}

	score, err := strconv.Atoi(raw)
	if err != nil || score < 1 || score > 5 {
		fmt.Fprintf(w, "could not read %q as a 1-5 rating, skipping\n", raw)
		return
	}

	comment := ""
	if score <= 2 {
		fmt.Fprint(w, "What went wrong? (enter to skip): ")
		if scanner.Scan() {
			comment = strings.TrimSpace(scanner.Text())
		}
	}

	if err := a.history.UpdateFeedback(ctx, runID, score, comment); err != nil {
		fmt.Fprintf(w, "failed to record feedback: %v\n", err)
		return
	}
	fmt.Fprintln(w, "thanks, recorded")
}
