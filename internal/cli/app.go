package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/helioslabs/ledgerscope/pkg/duck"
	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/knowledge"
	"github.com/helioslabs/ledgerscope/pkg/llm"
	"github.com/helioslabs/ledgerscope/pkg/pipeline"
	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/querier"
	"github.com/helioslabs/ledgerscope/pkg/render"
	"github.com/helioslabs/ledgerscope/pkg/schema"
)

type rootFlags struct {
	verbose bool
	db      string
	data    string
	history string
}

func readRootFlags(cmd *cobra.Command) (rootFlags, error) {
	flags := cmd.Root().PersistentFlags()

	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return rootFlags{}, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	db, err := flags.GetString("db")
	if err != nil {
		return rootFlags{}, fmt.Errorf("failed to get db flag: %w", err)
	}
	data, err := flags.GetString("data")
	if err != nil {
		return rootFlags{}, fmt.Errorf("failed to get data flag: %w", err)
	}
	historyPath, err := flags.GetString("history")
	if err != nil {
		return rootFlags{}, fmt.Errorf("failed to get history flag: %w", err)
	}

	return rootFlags{verbose: verbose, db: db, data: data, history: historyPath}, nil
}

// app is the fully wired pipeline stack behind the ask, repl, and eval
// commands.
type app struct {
	log       *slog.Logger
	warehouse *duck.Warehouse
	history   *history.Store
	profile   *schema.LiveProfile
	pipeline  *pipeline.Pipeline
}

func newApp(ctx context.Context, log *slog.Logger, flags rootFlags) (*app, error) {
	warehouse, err := duck.NewWarehouse(ctx, duck.Config{
		Logger:   log,
		Path:     flags.db,
		DataPath: flags.data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	q, err := querier.New(querier.Config{Logger: log, DB: warehouse})
	if err != nil {
		return nil, fmt.Errorf("failed to create querier: %w", err)
	}

	provider, err := schema.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	base, err := knowledge.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	profile, err := schema.NewLiveProfile(schema.LiveProfileConfig{
		Logger:  log,
		Querier: q,
		Table:   warehouse.Table(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create live profile: %w", err)
	}

	store, err := history.New(history.Config{Logger: log, Path: flags.history})
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	client, err := llm.New(llm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	p, err := pipeline.New(pipeline.Config{
		Logger:    log,
		LLM:       client,
		Querier:   q,
		Schema:    provider,
		Knowledge: base,
		Retriever: &snippetRetriever{inner: knowledge.NewRetriever(base)},
		Recorder:  store,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return &app{
		log:       log,
		warehouse: warehouse,
		history:   store,
		profile:   profile,
		pipeline:  p,
	}, nil
}

func (a *app) Close() {
	if err := a.history.Close(); err != nil {
		a.log.Debug("failed to close history store", "error", err)
	}
	if err := a.warehouse.Close(); err != nil {
		a.log.Debug("failed to close warehouse", "error", err)
	}
}

// withApp wires the full stack for commands that run the pipeline.
func withApp(f func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		flags, err := readRootFlags(cmd)
		if err != nil {
			return err
		}
		log := newLogger(flags.verbose)

		a, err := newApp(ctx, log, flags)
		if err != nil {
			log.Error("failed to build stack", "error", err)
			return err
		}
		defer a.Close()

		if err := f(ctx, a, cmd, args); err != nil {
			log.Error("failed to run command", "error", err)
			return err
		}
		return nil
	}
}

// withHistory opens only the run store. History, feedback, and stats work
// without a warehouse or an API key.
func withHistory(f func(ctx context.Context, store *history.Store, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		flags, err := readRootFlags(cmd)
		if err != nil {
			return err
		}
		log := newLogger(flags.verbose)

		store, err := history.New(history.Config{Logger: log, Path: flags.history})
		if err != nil {
			log.Error("failed to open history store", "error", err)
			return err
		}
		defer store.Close()

		if err := f(ctx, store, cmd, args); err != nil {
			log.Error("failed to run command", "error", err)
			return err
		}
		return nil
	}
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.Kitchen,
	}))
}

// snippetRetriever adapts the knowledge retriever to the pipeline's snippet
// type.
type snippetRetriever struct {
	inner *knowledge.Retriever
}

func (r *snippetRetriever) Retrieve(question string, topK int) []pipeline.Snippet {
	found := r.inner.Retrieve(question, topK)
	snippets := make([]pipeline.Snippet, 0, len(found))
	for _, s := range found {
		snippets = append(snippets, pipeline.Snippet{Title: s.Title, Content: s.Content, Score: s.Score})
	}
	return snippets
}

// printRun renders a finished run: the answer, a table for results too large
// to appear inline, the confidence breakdown, errors, and optionally the
// trace.
func printRun(w io.Writer, result *pipeline.RunResult, showTrace bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, result.FinalText)

	failed := result.Quality != nil && result.Quality.Status == quality.StatusFail
	if res := result.Result; res != nil && len(res.Rows) > pipeline.MaxInlineRows && !failed {
		fmt.Fprintln(w)
		render.ResultTable(w, res)
	}

	if result.Confidence != nil {
		fmt.Fprintln(w)
		render.ScoreTable(w, result.Confidence)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	if showTrace {
		fmt.Fprintln(w)
		render.TraceTable(w, result.Trace)
	}

	fmt.Fprintf(w, "\nrun %s finished in %s, %d tokens\n",
		result.RunID, result.Elapsed.Round(time.Millisecond), result.TokensIn+result.TokensOut)
}
