package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helioslabs/ledgerscope/pkg/sqlguard"
)

// errNoSQL is the run error recorded when the model yields nothing the
// safety gate could even look at.
const errNoSQL = "failed to parse SQL from model response"

// runQuery generates SQL, validates it through the safety gate, and only
// then executes it. A blocked query never reaches the querier.
func (p *Pipeline) runQuery(ctx context.Context, state *State) (Patch, map[string]any, error) {
	completion, err := p.cfg.LLM.Complete(ctx, p.cfg.Prompts.SQL, p.buildSQLPrompt(state))
	if err != nil {
		if isCtxErr(err) {
			return nil, nil, err
		}
		p.logWarn("pipeline: SQL generation failed", "run_id", state.RunID, "error", err)
		return QueryPatch{AppendErrors: []string{errNoSQL}}, map[string]any{"outcome": "no_sql"}, nil
	}

	sqlText, explanation, perr := parseSQLResponse(completion.Text)
	if perr != nil {
		p.logWarn("pipeline: SQL response unparseable", "run_id", state.RunID, "error", perr)
		return QueryPatch{
			AppendErrors: []string{errNoSQL},
			TokensIn:     completion.InputTokens,
			TokensOut:    completion.OutputTokens,
		}, map[string]any{"outcome": "no_sql"}, nil
	}

	gate := p.cfg.Guard.Validate(sqlText)
	if !gate.Allowed() {
		p.logWarn("pipeline: SQL blocked by safety gate",
			"run_id", state.RunID, "reason", gate.Reason)
		return QueryPatch{
			SQL:            sqlText,
			SQLExplanation: explanation,
			Gate:           &gate,
			Outcome:        &QueryOutcome{Status: QueryBlocked, Gate: &gate},
			AppendErrors:   []string{fmt.Sprintf("SQL validation failed: %s", gate.Reason)},
			TokensIn:       completion.InputTokens,
			TokensOut:      completion.OutputTokens,
		}, map[string]any{"outcome": string(QueryBlocked), "reason": gate.Reason}, nil
	}
	if len(gate.Warnings) > 0 {
		p.logInfo("pipeline: SQL passed with warnings",
			"run_id", state.RunID, "warnings", gate.Warnings)
	}

	executable := sqlguard.AddLimit(gate.Sanitized, p.cfg.DefaultLimit)

	result, qerr := p.cfg.Querier.Query(ctx, executable)
	if qerr != nil {
		if isCtxErr(qerr) {
			return nil, nil, qerr
		}
		p.logWarn("pipeline: query execution failed", "run_id", state.RunID, "error", qerr)
		return QueryPatch{
			SQL:            executable,
			SQLExplanation: explanation,
			Gate:           &gate,
			Outcome:        &QueryOutcome{Status: QueryFailed, Err: qerr.Error()},
			AppendErrors:   []string{fmt.Sprintf("query execution failed: %v", qerr)},
			TokensIn:       completion.InputTokens,
			TokensOut:      completion.OutputTokens,
		}, map[string]any{"outcome": string(QueryFailed)}, nil
	}

	p.logInfo("pipeline: query executed",
		"run_id", state.RunID, "rows", result.Count, "columns", len(result.Columns))
	return QueryPatch{
		SQL:            executable,
		SQLExplanation: explanation,
		Gate:           &gate,
		Outcome:        &QueryOutcome{Status: QueryExecuted, Result: result},
		TokensIn:       completion.InputTokens,
		TokensOut:      completion.OutputTokens,
	}, map[string]any{"outcome": string(QueryExecuted), "rows": result.Count}, nil
}

// buildSQLPrompt assembles schema, domain knowledge, retrieved examples,
// and the interpretation (when it parsed) around the question.
func (p *Pipeline) buildSQLPrompt(state *State) string {
	var b strings.Builder
	b.WriteString("## Schema\n\n")
	b.WriteString(p.cfg.Schema.Context())

	if p.cfg.Knowledge != nil {
		b.WriteString("\n\n## Domain Knowledge\n\n")
		b.WriteString(p.cfg.Knowledge.Context())
	}

	if p.cfg.Retriever != nil {
		snippets := p.cfg.Retriever.Retrieve(state.Question, p.cfg.RetrieveTopK)
		if len(snippets) > 0 {
			b.WriteString("\n\n## Relevant Examples\n")
			for _, snippet := range snippets {
				fmt.Fprintf(&b, "\n### %s\n\n%s\n", snippet.Title, snippet.Content)
			}
		}
	}

	if state.Interpretation.OK() {
		if encoded, err := json.MarshalIndent(state.Interpretation.Interpretation, "", "  "); err == nil {
			b.WriteString("\n\n## Interpretation\n\n")
			b.Write(encoded)
		}
	}

	b.WriteString("\n\n## Question\n\n")
	b.WriteString(state.Question)
	return b.String()
}

type sqlResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// parseSQLResponse extracts the {sql, explanation} object from the model
// response.
func parseSQLResponse(response string) (string, string, error) {
	raw := extractJSON(response)
	if raw == "" {
		return "", "", fmt.Errorf("no JSON object in model response: %s", truncateForError(response))
	}

	var parsed sqlResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", "", fmt.Errorf("invalid JSON: %w (response: %s)", err, truncateForError(raw))
	}
	if strings.TrimSpace(parsed.SQL) == "" {
		return "", "", fmt.Errorf("model response has no sql field")
	}
	return strings.TrimSpace(parsed.SQL), strings.TrimSpace(parsed.Explanation), nil
}
