package pipeline

import (
	"time"

	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/querier"
	"github.com/helioslabs/ledgerscope/pkg/scope"
	"github.com/helioslabs/ledgerscope/pkg/sqlguard"
)

// Stage identifies a pipeline node.
type Stage string

const (
	StageAdmission Stage = "admission"
	StageRouter    Stage = "router"
	StageInterpret Stage = "interpret"
	StageQuery     Stage = "query"
	StageQuality   Stage = "quality"
	StageExplain   Stage = "explain"
	StageFormat    Stage = "format"
	StageReject    Stage = "reject"
)

// Intent is the router's question classification.
type Intent string

const (
	IntentTrend       Intent = "trend"
	IntentComparison  Intent = "comparison"
	IntentDrillDown   Intent = "drill_down"
	IntentExploration Intent = "exploration"
	IntentMetricQuery Intent = "metric_query"
)

// Run outcome labels for metrics.
const (
	OutcomeAnswered = "answered"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// TraceAction marks the phase of a trace entry.
type TraceAction string

const (
	TraceStarted   TraceAction = "started"
	TraceCompleted TraceAction = "completed"
	TraceFailed    TraceAction = "failed"
)

// TraceEntry records one node transition. The engine writes a started entry
// before and a completed or failed entry after every node it runs.
type TraceEntry struct {
	Stage   Stage          `json:"stage"`
	Action  TraceAction    `json:"action"`
	At      time.Time      `json:"at"`
	Elapsed time.Duration  `json:"elapsed,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// InterpretStatus tags the interpret outcome.
type InterpretStatus string

const (
	InterpretOK     InterpretStatus = "ok"
	InterpretFailed InterpretStatus = "failed"
)

// InterpretOutcome is the interpret stage result. A failed interpretation is
// not a pipeline error; the SQL stage falls back to question-only prompting.
type InterpretOutcome struct {
	Status         InterpretStatus `json:"status"`
	Interpretation *Interpretation `json:"interpretation,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// OK reports whether a structured interpretation is available.
func (o *InterpretOutcome) OK() bool {
	return o != nil && o.Status == InterpretOK && o.Interpretation != nil
}

// Interpretation is the model's structured reading of the question.
type Interpretation struct {
	Metric     Metric     `json:"metric"`
	Dimensions []string   `json:"dimensions,omitempty"`
	Filters    []Filter   `json:"filters,omitempty"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
	Reading    string     `json:"reading,omitempty"`
}

type Metric struct {
	Function string `json:"function"`
	Column   string `json:"column"`
	Alias    string `json:"alias,omitempty"`
}

type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type TimeRange struct {
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	Period string `json:"period,omitempty"`
}

// QueryStatus tags the query outcome.
type QueryStatus string

const (
	QueryExecuted QueryStatus = "executed"
	QueryBlocked  QueryStatus = "blocked"
	QueryFailed   QueryStatus = "failed"
)

// QueryOutcome is the query stage result: executed with a result set,
// blocked by the safety gate, or failed at the executor.
type QueryOutcome struct {
	Status QueryStatus        `json:"status"`
	Result *querier.ResultSet `json:"result,omitempty"`
	Gate   *sqlguard.Result   `json:"gate,omitempty"`
	Err    string             `json:"error,omitempty"`
}

// Executed reports whether a result set is available.
func (o *QueryOutcome) Executed() bool {
	return o != nil && o.Status == QueryExecuted
}

// Explanation is the narrative layer over a result.
type Explanation struct {
	Summary     string   `json:"summary"`
	Insights    []string `json:"insights,omitempty"`
	Caveats     []string `json:"caveats,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
	FollowUps   []string `json:"follow_up_questions,omitempty"`
}

// State is the run-scoped working set. Each run owns its State; nodes never
// write it directly, they return patches the engine applies.
type State struct {
	RunID      string
	Question   string
	StartedAt  time.Time
	FinishedAt time.Time

	Admission *scope.Verdict

	Intent        Intent
	PlannedStages []Stage

	Interpretation *InterpretOutcome

	SQL            string
	SQLExplanation string
	Gate           *sqlguard.Result
	Query          *QueryOutcome

	Quality *quality.Report

	Explanation *Explanation

	FinalText string

	// Engine-owned: nodes contribute via patch deltas only.
	Errors    []string
	Trace     []TraceEntry
	TokensIn  int64
	TokensOut int64
}

// Patch is a node's write-set. The sealed apply method keeps the set closed:
// every patch type lives in this package and only writes fields its stage
// owns. Errors, trace, and token totals stay with the engine.
type Patch interface {
	Stage() Stage
	apply(*State)
}

// errorCarrier patches ask the engine to append run errors.
type errorCarrier interface {
	appendErrors() []string
}

// tokenCarrier patches report token usage for the engine totals.
type tokenCarrier interface {
	tokenDelta() (in, out int64)
}

type AdmissionPatch struct {
	Verdict *scope.Verdict
}

func (p AdmissionPatch) Stage() Stage { return StageAdmission }
func (p AdmissionPatch) apply(s *State) {
	s.Admission = p.Verdict
}

type RoutePatch struct {
	Intent        Intent
	PlannedStages []Stage
}

func (p RoutePatch) Stage() Stage { return StageRouter }
func (p RoutePatch) apply(s *State) {
	s.Intent = p.Intent
	s.PlannedStages = p.PlannedStages
}

type InterpretPatch struct {
	Outcome   *InterpretOutcome
	TokensIn  int64
	TokensOut int64
}

func (p InterpretPatch) Stage() Stage { return StageInterpret }
func (p InterpretPatch) apply(s *State) {
	s.Interpretation = p.Outcome
}
func (p InterpretPatch) tokenDelta() (int64, int64) {
	return p.TokensIn, p.TokensOut
}

type QueryPatch struct {
	SQL            string
	SQLExplanation string
	Gate           *sqlguard.Result
	Outcome        *QueryOutcome
	AppendErrors   []string
	TokensIn       int64
	TokensOut      int64
}

func (p QueryPatch) Stage() Stage { return StageQuery }
func (p QueryPatch) apply(s *State) {
	if p.SQL != "" {
		s.SQL = p.SQL
	}
	if p.SQLExplanation != "" {
		s.SQLExplanation = p.SQLExplanation
	}
	if p.Gate != nil {
		s.Gate = p.Gate
	}
	if p.Outcome != nil {
		s.Query = p.Outcome
	}
}
func (p QueryPatch) appendErrors() []string {
	return p.AppendErrors
}

func (p QueryPatch) tokenDelta() (int64, int64) {
	return p.TokensIn, p.TokensOut
}

type QualityPatch struct {
	Report *quality.Report
}

func (p QualityPatch) Stage() Stage { return StageQuality }
func (p QualityPatch) apply(s *State) {
	s.Quality = p.Report
}

type ExplainPatch struct {
	Explanation *Explanation
	TokensIn    int64
	TokensOut   int64
}

func (p ExplainPatch) Stage() Stage { return StageExplain }
func (p ExplainPatch) apply(s *State) {
	s.Explanation = p.Explanation
}
func (p ExplainPatch) tokenDelta() (int64, int64) {
	return p.TokensIn, p.TokensOut
}

type FormatPatch struct {
	FinalText string
}

func (p FormatPatch) Stage() Stage { return StageFormat }
func (p FormatPatch) apply(s *State) {
	s.FinalText = p.FinalText
}

type RejectPatch struct {
	FinalText string
}

func (p RejectPatch) Stage() Stage { return StageReject }
func (p RejectPatch) apply(s *State) {
	s.FinalText = p.FinalText
}
