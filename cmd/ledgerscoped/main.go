package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/helioslabs/ledgerscope/pkg/duck"
	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/knowledge"
	"github.com/helioslabs/ledgerscope/pkg/llm"
	"github.com/helioslabs/ledgerscope/pkg/metrics"
	"github.com/helioslabs/ledgerscope/pkg/pipeline"
	"github.com/helioslabs/ledgerscope/pkg/querier"
	"github.com/helioslabs/ledgerscope/pkg/schema"
	"github.com/helioslabs/ledgerscope/pkg/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = ":8080"
	defaultMetricsAddr = ":2112"
	defaultHistoryPath = "data/query_logs.db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bundle := metrics.New(prometheus.DefaultRegisterer)
	bundle.SetBuildInfo(version, commit, date)

	warehouse, err := duck.NewWarehouse(ctx, duck.Config{
		Logger:   log,
		Path:     cfg.DBPath,
		DataPath: cfg.DataPath,
	})
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer warehouse.Close()

	q, err := querier.New(querier.Config{Logger: log, DB: warehouse})
	if err != nil {
		return fmt.Errorf("failed to create querier: %w", err)
	}

	provider, err := schema.Load()
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	base, err := knowledge.Load()
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}

	store, err := history.New(history.Config{Logger: log, Path: cfg.HistoryPath})
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	client, err := llm.New(llm.Config{Logger: log, Model: anthropic.Model(cfg.Model)})
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	p, err := pipeline.New(pipeline.Config{
		Logger:    log,
		LLM:       client,
		Querier:   q,
		Schema:    provider,
		Knowledge: base,
		Retriever: &snippetRetriever{inner: knowledge.NewRetriever(base)},
		Recorder:  store,
		Metrics:   bundle,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	httpListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	var metricsListener net.Listener
	var metricsHandler http.Handler
	if cfg.MetricsAddr != "" {
		metricsListener, err = net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.MetricsAddr, err)
		}
		metricsHandler = promhttp.Handler()
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		HTTPListener:    httpListener,
		MetricsListener: metricsListener,
		MetricsHandler:  metricsHandler,
		Pipeline:        p,
		History:         store,
		Ready:           q.Ready,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("starting ledgerscoped",
		"version", version,
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"db", cfg.DBPath,
	)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
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

// Config holds the daemon configuration.
type Config struct {
	ShowVersion bool
	Verbose     bool

	ListenAddr  string
	MetricsAddr string

	DBPath      string
	DataPath    string
	HistoryPath string
	Model       string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (Config, error) {
	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", getenv("LEDGERSCOPE_LISTEN_ADDR", defaultListenAddr), "address for the API server (env: LEDGERSCOPE_LISTEN_ADDR)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("LEDGERSCOPE_METRICS_ADDR", defaultMetricsAddr), "address for prometheus metrics, empty to disable (env: LEDGERSCOPE_METRICS_ADDR)")
	flag.StringVar(&cfg.DBPath, "db", getenv("LEDGERSCOPE_DB", ""), "DuckDB database file, empty for in-memory (env: LEDGERSCOPE_DB)")
	flag.StringVar(&cfg.DataPath, "data", getenv("LEDGERSCOPE_DATA", ""), "CSV loaded into the events table on startup (env: LEDGERSCOPE_DATA)")
	flag.StringVar(&cfg.HistoryPath, "history", getenv("LEDGERSCOPE_HISTORY", defaultHistoryPath), "SQLite file for run history (env: LEDGERSCOPE_HISTORY)")
	flag.StringVar(&cfg.Model, "model", getenv("LEDGERSCOPE_MODEL", ""), "Anthropic model name, empty for the default (env: LEDGERSCOPE_MODEL)")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}

	if cfg.DBPath == "" && cfg.DataPath == "" {
		return Config{}, fmt.Errorf("either --db or --data is required, an empty in-memory warehouse has no events table")
	}

	return cfg, nil
}
