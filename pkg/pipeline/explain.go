package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/querier"
)

// runExplain produces the narrative over the result. Empty results and
// privacy failures get deterministic fallbacks without a model call; the
// model only ever sees a bounded preview of clean data.
func (p *Pipeline) runExplain(ctx context.Context, state *State) (Patch, map[string]any, error) {
	result := state.Query.Result

	if state.Quality != nil && state.Quality.Status == quality.StatusFail {
		return ExplainPatch{Explanation: identifierExposureExplanation()},
			map[string]any{"outcome": "suppressed"}, nil
	}
	if result.Empty() {
		return ExplainPatch{Explanation: p.fallbackExplanation(state)},
			map[string]any{"outcome": "fallback"}, nil
	}

	completion, err := p.cfg.LLM.Complete(ctx, p.cfg.Prompts.Explain, p.buildExplainPrompt(state, result))
	if err != nil {
		if isCtxErr(err) {
			return nil, nil, err
		}
		p.logWarn("pipeline: explanation failed", "run_id", state.RunID, "error", err)
		explanation := &Explanation{
			Summary: fmt.Sprintf("Could not generate an explanation: %v", err),
			Caveats: []string{"The query returned data but the explanation step failed."},
		}
		return ExplainPatch{Explanation: explanation}, map[string]any{"outcome": "error"}, nil
	}

	explanation, perr := parseExplanation(completion.Text)
	if perr != nil {
		p.logWarn("pipeline: explanation unparseable, using raw text",
			"run_id", state.RunID, "error", perr)
		explanation = &Explanation{Summary: strings.TrimSpace(completion.Text)}
	}

	return ExplainPatch{
		Explanation: explanation,
		TokensIn:    completion.InputTokens,
		TokensOut:   completion.OutputTokens,
	}, map[string]any{"outcome": "ok"}, nil
}

// fallbackExplanation covers empty results. A grouped query with a count
// filter, or a quality report flagging small groups, reads as privacy
// suppression rather than a miss.
func (p *Pipeline) fallbackExplanation(state *State) *Explanation {
	if privacySuppressed(state) {
		return &Explanation{
			Summary: "This breakdown cannot be shown due to privacy protection requirements.",
			Insights: []string{
				"Results are only shown for groups of at least 5 accounts.",
				"Every group in this breakdown fell below that threshold, so the data was suppressed.",
			},
			Caveats: []string{"This is not an error - it's a privacy safeguard."},
			FollowUps: []string{
				"Try a broader grouping, such as product type instead of branch.",
				"Ask for overall totals instead of a detailed breakdown.",
				"Widen the date range so groups become larger.",
			},
		}
	}
	return &Explanation{
		Summary:   "Unable to generate results for this question.",
		Caveats:   []string{"The query returned no data or encountered an error."},
		FollowUps: []string{"Try rephrasing your question or checking the date range."},
	}
}

// identifierExposureExplanation is the fail-closed narrative used when the
// quality checker found identifier columns in the result.
func identifierExposureExplanation() *Explanation {
	return &Explanation{
		Summary: "This result cannot be shown because it includes account-level identifiers.",
		Caveats: []string{"Identifier columns are never displayed. Ask for aggregates instead."},
		FollowUps: []string{
			"Ask for totals or breakdowns by product type, channel, or month.",
		},
	}
}

func privacySuppressed(state *State) bool {
	upper := strings.ToUpper(state.SQL)
	if strings.Contains(upper, "HAVING") && strings.Contains(upper, "COUNT") {
		return true
	}
	return state.Quality.HasSmallGroups()
}

// buildExplainPrompt bounds the rows shown to the model and carries the
// quality status so caveats reflect it.
func (p *Pipeline) buildExplainPrompt(state *State, result *querier.ResultSet) string {
	preview := result.Rows
	if len(preview) > p.cfg.PreviewRows {
		preview = preview[:p.cfg.PreviewRows]
	}
	encoded, _ := json.MarshalIndent(preview, "", "  ")

	var b strings.Builder
	b.WriteString("## Question\n\n")
	b.WriteString(state.Question)
	b.WriteString("\n\n## Executed SQL\n\n")
	b.WriteString(state.SQL)
	fmt.Fprintf(&b, "\n\n## Result (%d rows total, showing up to %d)\n\n", result.Count, p.cfg.PreviewRows)
	b.Write(encoded)
	if state.Quality != nil {
		fmt.Fprintf(&b, "\n\n## Data Quality\n\nStatus: %s. %s\n", state.Quality.Status, state.Quality.Message)
	}
	return b.String()
}

// parseExplanation parses the model response into an Explanation.
func parseExplanation(response string) (*Explanation, error) {
	raw := extractJSON(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model response: %s", truncateForError(response))
	}

	var result Explanation
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w (response: %s)", err, truncateForError(raw))
	}
	return &result, nil
}
