// Package pipeline runs natural-language questions through a fixed topology
// of guarded stages: admission, routing, interpretation, guarded SQL
// execution, quality checks, explanation, and formatting. Stage failures
// accumulate as run errors; every run ends at a terminal node with final
// text, and the engine never retries a stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/querier"
	"github.com/helioslabs/ledgerscope/pkg/scope"
	"github.com/helioslabs/ledgerscope/pkg/scoring"
)

// Pipeline orchestrates one question-answering run per Run call. A single
// Pipeline is safe for concurrent runs; all run state lives in State.
type Pipeline struct {
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate pipeline config: %w", err)
	}
	return &Pipeline{cfg: cfg}, nil
}

// RunResult is the complete outcome of one run.
type RunResult struct {
	RunID       string              `json:"run_id"`
	Question    string              `json:"question"`
	Intent      Intent              `json:"intent,omitempty"`
	Admission   *scope.Verdict      `json:"admission,omitempty"`
	SQL         string              `json:"sql,omitempty"`
	Result      *querier.ResultSet  `json:"result,omitempty"`
	Quality     *quality.Report     `json:"quality,omitempty"`
	Explanation *Explanation        `json:"explanation,omitempty"`
	FinalText   string              `json:"final_text"`
	Confidence  *scoring.Evaluation `json:"confidence"`
	Errors      []string            `json:"errors,omitempty"`
	Trace       []TraceEntry        `json:"trace,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	Elapsed     time.Duration       `json:"elapsed"`
	TokensIn    int64               `json:"tokens_in"`
	TokensOut   int64               `json:"tokens_out"`
}

// logInfo logs an info message if a logger is configured.
func (p *Pipeline) logInfo(msg string, args ...any) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Info(msg, args...)
	}
}

// logWarn logs a warning if a logger is configured.
func (p *Pipeline) logWarn(msg string, args ...any) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Warn(msg, args...)
	}
}

// Run executes the pipeline for one question. The error return is reserved
// for empty questions and context cancellation; every stage-level failure is
// recorded in RunResult.Errors and the run still reaches a terminal node.
func (p *Pipeline) Run(ctx context.Context, question string) (*RunResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := &State{
		RunID:     uuid.NewString(),
		Question:  question,
		StartedAt: p.cfg.Clock.Now(),
	}
	p.logInfo("pipeline: run started", "run_id", state.RunID, "question", question)

	current := StageAdmission
	for current != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := p.step(ctx, state, current)
		if err != nil {
			return nil, err
		}
		current = next
	}

	return p.finish(ctx, state), nil
}

// step runs one node: started trace entry, node body, patch application,
// completed or failed trace entry, then the next stage per the topology.
func (p *Pipeline) step(ctx context.Context, state *State, stage Stage) (Stage, error) {
	started := p.cfg.Clock.Now()
	state.Trace = append(state.Trace, TraceEntry{Stage: stage, Action: TraceStarted, At: started})

	patch, detail, err := p.runStage(ctx, state, stage)
	if err != nil {
		now := p.cfg.Clock.Now()
		state.Trace = append(state.Trace, TraceEntry{
			Stage:   stage,
			Action:  TraceFailed,
			At:      now,
			Elapsed: now.Sub(started),
			Detail:  map[string]any{"error": err.Error()},
		})
		return "", err
	}

	p.applyPatch(state, stage, patch)

	now := p.cfg.Clock.Now()
	elapsed := now.Sub(started)
	state.Trace = append(state.Trace, TraceEntry{
		Stage:   stage,
		Action:  TraceCompleted,
		At:      now,
		Elapsed: elapsed,
		Detail:  detail,
	})
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ObserveStageDuration(string(stage), elapsed)
	}

	return p.next(state, stage), nil
}

func (p *Pipeline) runStage(ctx context.Context, state *State, stage Stage) (Patch, map[string]any, error) {
	switch stage {
	case StageAdmission:
		return p.runAdmission(ctx, state)
	case StageRouter:
		return p.runRouter(ctx, state)
	case StageInterpret:
		return p.runInterpret(ctx, state)
	case StageQuery:
		return p.runQuery(ctx, state)
	case StageQuality:
		return p.runQuality(ctx, state)
	case StageExplain:
		return p.runExplain(ctx, state)
	case StageFormat:
		return p.runFormat(ctx, state)
	case StageReject:
		return p.runReject(ctx, state)
	default:
		return nil, nil, fmt.Errorf("unknown stage: %s", stage)
	}
}

// applyPatch merges a node's patch into the state. A patch owned by a
// different stage is recorded as an engine error and dropped; the run
// continues.
func (p *Pipeline) applyPatch(state *State, stage Stage, patch Patch) {
	if patch == nil {
		return
	}
	if patch.Stage() != stage {
		state.Errors = append(state.Errors,
			fmt.Sprintf("stage %s returned a patch owned by stage %s", stage, patch.Stage()))
		p.logWarn("pipeline: dropped patch with wrong stage",
			"run_id", state.RunID, "stage", stage, "patch_stage", patch.Stage())
		return
	}

	patch.apply(state)

	if ec, ok := patch.(errorCarrier); ok {
		state.Errors = append(state.Errors, ec.appendErrors()...)
	}
	if tc, ok := patch.(tokenCarrier); ok {
		in, out := tc.tokenDelta()
		state.TokensIn += in
		state.TokensOut += out
	}
}

// next resolves the fixed topology. Conditional edges exist only after
// admission (reject on a disallowed question) and after query (skip quality
// and explain when there is no clean result to inspect).
func (p *Pipeline) next(state *State, stage Stage) Stage {
	switch stage {
	case StageAdmission:
		if state.Admission != nil && state.Admission.Allowed() {
			return StageRouter
		}
		return StageReject
	case StageRouter:
		return StageInterpret
	case StageInterpret:
		return StageQuery
	case StageQuery:
		if state.Query.Executed() && len(state.Errors) == 0 {
			return StageQuality
		}
		return StageFormat
	case StageQuality:
		return StageExplain
	case StageExplain:
		return StageFormat
	default:
		return ""
	}
}

// finish evaluates the confidence scorer, emits metrics, and hands the
// result to the recorder. Recorder failures are logged, never returned.
func (p *Pipeline) finish(ctx context.Context, state *State) *RunResult {
	state.FinishedAt = p.cfg.Clock.Now()
	eval := scoring.Evaluate(p.scoringInput(state))

	result := &RunResult{
		RunID:       state.RunID,
		Question:    state.Question,
		Intent:      state.Intent,
		Admission:   state.Admission,
		SQL:         state.SQL,
		Quality:     state.Quality,
		Explanation: state.Explanation,
		FinalText:   state.FinalText,
		Confidence:  eval,
		Errors:      state.Errors,
		Trace:       state.Trace,
		StartedAt:   state.StartedAt,
		Elapsed:     state.FinishedAt.Sub(state.StartedAt),
		TokensIn:    state.TokensIn,
		TokensOut:   state.TokensOut,
	}
	if state.Query.Executed() {
		result.Result = state.Query.Result
	}

	p.logInfo("pipeline: run complete",
		"run_id", state.RunID,
		"score", eval.Score,
		"tier", eval.Tier,
		"errors", len(state.Errors),
		"tokens_in", state.TokensIn,
		"tokens_out", state.TokensOut,
		"elapsed", result.Elapsed)

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordRun(runOutcome(state))
		p.cfg.Metrics.AddTokens(state.TokensIn, state.TokensOut)
		if n := len(state.Errors); n > 0 {
			p.cfg.Metrics.AddRunErrors(n)
		}
		p.cfg.Metrics.ObserveConfidence(eval.Score)
		if state.Query.Executed() {
			p.cfg.Metrics.ObserveQueryRows(state.Query.Result.Count)
		}
	}

	if p.cfg.Recorder != nil {
		if err := p.cfg.Recorder.Record(ctx, result); err != nil {
			p.logWarn("pipeline: failed to record run", "run_id", state.RunID, "error", err)
		}
	}

	return result
}

// scoringInput snapshots final state for the pure scorer.
func (p *Pipeline) scoringInput(state *State) scoring.Input {
	in := scoring.Input{
		SQL:        state.SQL,
		Quality:    state.Quality,
		ErrorCount: len(state.Errors),
	}
	if state.Gate != nil {
		in.SQLStatus = state.Gate.Status
	}
	if q := state.Query; q != nil {
		switch q.Status {
		case QueryExecuted:
			in.Executed = true
			in.Result = q.Result
		case QueryFailed:
			in.ExecutionFailed = true
			in.ErrorText = q.Err
		}
	}
	if state.Explanation != nil {
		in.HasExplanation = true
		in.Summary = state.Explanation.Summary
		in.Insights = state.Explanation.Insights
	} else {
		in.FallbackText = state.FinalText
	}
	return in
}

func runOutcome(state *State) string {
	switch {
	case state.Admission != nil && !state.Admission.Allowed():
		return OutcomeRejected
	case len(state.Errors) > 0:
		return OutcomeFailed
	default:
		return OutcomeAnswered
	}
}

// isCtxErr reports whether an error is context cancellation, the only class
// of stage error that aborts a run.
func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
