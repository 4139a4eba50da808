// Package render draws CLI tables for results, scores, history, and traces.
package render

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/helioslabs/ledgerscope/pkg/evalrun"
	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/pipeline"
	"github.com/helioslabs/ledgerscope/pkg/querier"
	"github.com/helioslabs/ledgerscope/pkg/scoring"
)

const maxQuestionWidth = 48

// Stars renders a score out of 100 as a five-star rating.
func Stars(score float64) string {
	switch {
	case score >= 90:
		return "★★★★★"
	case score >= 70:
		return "★★★★☆"
	case score >= 50:
		return "★★★☆☆"
	case score >= 30:
		return "★★☆☆☆"
	default:
		return "★☆☆☆☆"
	}
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	return table
}

// ResultTable renders a query result set.
func ResultTable(w io.Writer, rs *querier.ResultSet) {
	if rs.Empty() {
		fmt.Fprintln(w, "(no rows)")
		return
	}

	table := newTable(w)
	table.SetHeader(rs.Columns)

	for _, row := range rs.Rows {
		cells := make([]string, 0, len(rs.Columns))
		for _, col := range rs.Columns {
			cells = append(cells, formatValue(row[col]))
		}
		table.Append(cells)
	}
	table.Render()

	if rs.Count > len(rs.Rows) {
		fmt.Fprintf(w, "(%d of %d rows shown)\n", len(rs.Rows), rs.Count)
	}
}

// ScoreTable renders a confidence evaluation with per-component breakdown.
func ScoreTable(w io.Writer, ev *scoring.Evaluation) {
	if ev == nil {
		return
	}

	fmt.Fprintf(w, "Confidence: %.1f/100 %s (%s)\n", ev.Score, Stars(ev.Score), ev.Tier)

	table := newTable(w)
	table.SetHeader([]string{"Component", "Score"})

	names := make([]string, 0, len(ev.Components))
	for name := range ev.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.Append([]string{name, fmt.Sprintf("%.1f", ev.Components[name])})
	}
	table.Render()

	for _, issue := range ev.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

// HistoryTable renders stored runs, newest first.
func HistoryTable(w io.Writer, runs []*history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "(no runs)")
		return
	}

	table := newTable(w)
	table.SetHeader([]string{"ID", "Question", "Score", "Tier", "Rated", "Created"})

	for _, run := range runs {
		rated := "-"
		if run.UserScore != nil {
			rated = strconv.Itoa(*run.UserScore) + "/5"
		}
		table.Append([]string{
			shortID(run.ID),
			truncate(run.Question, maxQuestionWidth),
			fmt.Sprintf("%.1f", run.Score),
			run.Tier,
			rated,
			run.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
}

// StatsTable renders aggregate run statistics as key/value rows.
func StatsTable(w io.Writer, stats *history.Stats) {
	table := newTable(w)
	table.SetHeader([]string{"Metric", "Value"})

	table.Append([]string{"Total runs", strconv.Itoa(stats.TotalRuns)})
	table.Append([]string{"Avg confidence", fmt.Sprintf("%.1f", stats.AvgScore)})
	table.Append([]string{"Avg user rating", fmt.Sprintf("%.1f/5", stats.AvgUserScore)})
	table.Append([]string{"Avg latency", fmt.Sprintf("%.0f ms", stats.AvgLatencyMS)})
	table.Append([]string{"Avg tokens/run", fmt.Sprintf("%.0f", stats.AvgTokens)})
	table.Append([]string{"Error rate", fmt.Sprintf("%.1f%%", stats.ErrorRatePct)})
	table.Append([]string{"Rated", fmt.Sprintf("%.1f%%", stats.RatedPct)})
	table.Render()
}

// EvalTable renders a graded evaluation suite with a pass/fail summary line.
func EvalTable(w io.Writer, summary *evalrun.Summary) {
	table := newTable(w)
	table.SetHeader([]string{"Case", "Status", "Elapsed", "Notes"})

	for i := range summary.Outcomes {
		o := &summary.Outcomes[i]
		status := "PASS"
		note := ""
		if !o.Passed() {
			status = "FAIL"
			note = o.Error
			if note == "" && len(o.Failures) > 0 {
				note = o.Failures[0]
			}
		}
		table.Append([]string{
			o.Case.Name,
			status,
			formatElapsed(o.Elapsed),
			truncate(note, 60),
		})
	}
	table.Render()

	fmt.Fprintf(w, "%d/%d passed in %s\n",
		summary.Passed, summary.Total, formatElapsed(summary.Elapsed))
}

// TraceTable renders per-stage trace entries in execution order.
func TraceTable(w io.Writer, entries []pipeline.TraceEntry) {
	if len(entries) == 0 {
		return
	}

	table := newTable(w)
	table.SetHeader([]string{"Stage", "Action", "Elapsed", "Detail"})

	for _, e := range entries {
		table.Append([]string{
			string(e.Stage),
			string(e.Action),
			formatElapsed(e.Elapsed),
			formatDetail(e.Detail),
		})
	}
	table.Render()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format("2006-01-02")
	default:
		return fmt.Sprint(val)
	}
}

func formatElapsed(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func formatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, detail[k])
	}
	return truncate(out, 60)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
