package pipeline

import (
	"context"
	"time"

	"github.com/helioslabs/ledgerscope/pkg/querier"
)

// Completion is one model response with its token usage.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// LLMClient produces completions. Implementations may retry transport
// failures; the pipeline itself never re-runs a stage.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

// Querier executes read-only SQL against the warehouse.
type Querier interface {
	Query(ctx context.Context, sql string) (*querier.ResultSet, error)
}

// SchemaProvider supplies the table's column set for validation and a
// rendered schema block for prompts.
type SchemaProvider interface {
	Columns() []string
	Context() string
}

// ContextProvider supplies extra prompt context, such as metric definitions
// and business rules.
type ContextProvider interface {
	Context() string
}

// Snippet is one retrieved reference document for prompt grounding.
type Snippet struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever finds reference snippets relevant to a question.
type Retriever interface {
	Retrieve(question string, topK int) []Snippet
}

// Recorder persists finished runs. A failing recorder never fails the run.
type Recorder interface {
	Record(ctx context.Context, result *RunResult) error
}

// MetricsSink receives run-level instrumentation. All methods must be safe
// for concurrent use.
type MetricsSink interface {
	RecordRun(outcome string)
	ObserveStageDuration(stage string, elapsed time.Duration)
	AddTokens(in, out int64)
	AddRunErrors(n int)
	ObserveConfidence(score float64)
	ObserveQueryRows(rows int)
}
