package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/helioslabs/ledgerscope/pkg/prompts"
	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/scope"
	"github.com/helioslabs/ledgerscope/pkg/sqlguard"
)

const (
	// DefaultLimit is appended to generated queries that carry no LIMIT.
	DefaultLimit = 100

	// DefaultPreviewRows caps the rows sent to the explanation model.
	DefaultPreviewRows = 20

	// DefaultRetrieveTopK is the number of reference snippets pulled into
	// the SQL prompt when a retriever is configured.
	DefaultRetrieveTopK = 3
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// Required collaborators.
	LLM     LLMClient
	Querier Querier
	Schema  SchemaProvider

	// Optional collaborators.
	Knowledge ContextProvider
	Retriever Retriever
	Recorder  Recorder
	Metrics   MetricsSink

	// Gates and prompts; built with defaults when nil.
	Prompts *prompts.Prompts
	Gate    *scope.Gate
	Guard   *sqlguard.Validator
	Quality *quality.Checker

	DefaultLimit int
	PreviewRows  int
	RetrieveTopK int
}

func (cfg *Config) Validate() error {
	if cfg.LLM == nil {
		return fmt.Errorf("LLM client is required")
	}
	if cfg.Querier == nil {
		return fmt.Errorf("querier is required")
	}
	if cfg.Schema == nil {
		return fmt.Errorf("schema provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Prompts == nil {
		loaded, err := prompts.Load()
		if err != nil {
			return fmt.Errorf("failed to load prompts: %w", err)
		}
		cfg.Prompts = loaded
	}
	if cfg.Gate == nil {
		cfg.Gate = scope.NewGate()
	}
	if cfg.Guard == nil {
		cfg.Guard = sqlguard.NewValidator(cfg.Schema.Columns())
	}
	if cfg.Quality == nil {
		cfg.Quality = quality.NewChecker()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if cfg.RetrieveTopK <= 0 {
		cfg.RetrieveTopK = DefaultRetrieveTopK
	}
	return nil
}
