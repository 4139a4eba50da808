package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/querier"
	"github.com/helioslabs/ledgerscope/pkg/redact"
)

// MaxInlineRows is the largest result embedded in the answer as a
// markdown table. Larger results are left to the caller to render.
const MaxInlineRows = 10

// dateLikeColumns are tried in order when picking the table sort column.
var dateLikeColumns = []string{"month", "date", "event_date", "year", "quarter", "week"}

// runFormat assembles the final markdown answer and redacts it. Formatting
// is deterministic; no model call.
func (p *Pipeline) runFormat(_ context.Context, state *State) (Patch, map[string]any, error) {
	text := renderAnswer(state)

	if findings := redact.Findings(text); len(findings) > 0 {
		p.logWarn("pipeline: sensitive content in answer",
			"run_id", state.RunID, "findings", findings)
	}
	text = redact.Apply(text)

	return FormatPatch{FinalText: text}, map[string]any{"chars": len(text)}, nil
}

func renderAnswer(state *State) string {
	explanation := state.Explanation
	if explanation == nil {
		explanation = &Explanation{
			Summary: "Unable to generate results for this question.",
			Caveats: []string{"The query returned no data or encountered an error."},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Answer:** %s\n", explanation.Summary)

	if len(explanation.Insights) > 0 {
		b.WriteString("\n**Key Insights:**\n")
		for _, insight := range explanation.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}

	suppressed := state.Quality != nil && state.Quality.Status == quality.StatusFail
	if !suppressed && state.Query.Executed() {
		if result := state.Query.Result; len(result.Rows) > 0 && len(result.Rows) <= MaxInlineRows {
			b.WriteString("\n**Data:**\n\n")
			b.WriteString(renderMarkdownTable(result))
		}
	}

	if len(explanation.Assumptions) > 0 {
		b.WriteString("\n**Assumptions:**\n")
		for _, assumption := range explanation.Assumptions {
			fmt.Fprintf(&b, "- %s\n", assumption)
		}
	}

	if len(explanation.Caveats) > 0 {
		b.WriteString("\n**Notes:**\n")
		for _, caveat := range explanation.Caveats {
			fmt.Fprintf(&b, "- %s\n", caveat)
		}
	}

	if state.Quality != nil && len(state.Quality.Privacy.Concerns) > 0 {
		b.WriteString("\n**Privacy Notes:**\n")
		for _, concern := range state.Quality.Privacy.Concerns {
			fmt.Fprintf(&b, "- %s\n", concern)
		}
	}

	if state.Quality != nil && state.Quality.Status == quality.StatusWarning {
		var notes []string
		for _, check := range state.Quality.Checks {
			if check.Status == quality.StatusWarning && check.Name != quality.CheckPrivacy {
				notes = append(notes, check.Message)
			}
		}
		if len(notes) > 0 {
			b.WriteString("\n**Data Quality Notes:**\n")
			for _, note := range notes {
				fmt.Fprintf(&b, "- ⚠️ %s\n", note)
			}
		}
	}

	if len(explanation.FollowUps) > 0 {
		b.WriteString("\n**You might also ask:**\n")
		for _, followUp := range explanation.FollowUps {
			fmt.Fprintf(&b, "- %s\n", followUp)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderMarkdownTable emits the result as a markdown table, sorted ascending
// by the first date-like column when one exists. Date and month strings sort
// correctly as text because they are ISO-shaped.
func renderMarkdownTable(result *querier.ResultSet) string {
	rows := make([]querier.Row, len(result.Rows))
	copy(rows, result.Rows)

	sortCol := ""
	for _, candidate := range dateLikeColumns {
		for _, col := range result.Columns {
			if strings.ToLower(col) == candidate {
				sortCol = col
				break
			}
		}
		if sortCol != "" {
			break
		}
	}
	if sortCol != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			return formatCell(rows[i][sortCol]) < formatCell(rows[j][sortCol])
		})
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(result.Columns, " | ") + " |\n")
	separators := make([]string, len(result.Columns))
	for i := range separators {
		separators[i] = "---"
	}
	b.WriteString("| " + strings.Join(separators, " | ") + " |\n")

	for _, row := range rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = formatCell(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

func formatCell(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case time.Time:
		return n.Format("2006-01-02")
	default:
		return fmt.Sprint(v)
	}
}
