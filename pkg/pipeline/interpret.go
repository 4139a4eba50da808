package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// runInterpret asks the model for a structured reading of the question. A
// failed interpretation is carried as the failed outcome variant, not a run
// error; the SQL stage falls back to question-only prompting.
func (p *Pipeline) runInterpret(ctx context.Context, state *State) (Patch, map[string]any, error) {
	var userPrompt strings.Builder
	userPrompt.WriteString("## Schema\n\n")
	userPrompt.WriteString(p.cfg.Schema.Context())
	if p.cfg.Knowledge != nil {
		userPrompt.WriteString("\n\n## Metrics\n\n")
		userPrompt.WriteString(p.cfg.Knowledge.Context())
	}
	userPrompt.WriteString("\n\n## Question\n\n")
	userPrompt.WriteString(state.Question)

	completion, err := p.cfg.LLM.Complete(ctx, p.cfg.Prompts.Interpret, userPrompt.String())
	if err != nil {
		if isCtxErr(err) {
			return nil, nil, err
		}
		p.logWarn("pipeline: interpretation failed", "run_id", state.RunID, "error", err)
		outcome := &InterpretOutcome{
			Status: InterpretFailed,
			Reason: fmt.Sprintf("LLM completion failed: %v", err),
		}
		return InterpretPatch{Outcome: outcome}, map[string]any{"outcome": string(InterpretFailed)}, nil
	}

	outcome := &InterpretOutcome{}
	interpretation, perr := parseInterpretation(completion.Text)
	if perr != nil {
		p.logWarn("pipeline: interpretation unparseable", "run_id", state.RunID, "error", perr)
		outcome.Status = InterpretFailed
		outcome.Reason = perr.Error()
	} else {
		outcome.Status = InterpretOK
		outcome.Interpretation = interpretation
		p.logInfo("pipeline: question interpreted",
			"run_id", state.RunID,
			"metric", interpretation.Metric.Function,
			"dimensions", interpretation.Dimensions)
	}

	return InterpretPatch{
		Outcome:   outcome,
		TokensIn:  completion.InputTokens,
		TokensOut: completion.OutputTokens,
	}, map[string]any{"outcome": string(outcome.Status)}, nil
}

// parseInterpretation parses the model response into an Interpretation.
func parseInterpretation(response string) (*Interpretation, error) {
	raw := extractJSON(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model response: %s", truncateForError(response))
	}

	var result Interpretation
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w (response: %s)", err, truncateForError(raw))
	}
	return &result, nil
}
