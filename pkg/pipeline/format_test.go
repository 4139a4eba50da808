package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/querier"
)

func executedState(result *querier.ResultSet) *State {
	return &State{Query: &QueryOutcome{Status: QueryExecuted, Result: result}}
}

func TestRenderAnswerSectionOrder(t *testing.T) {
	state := executedState(&querier.ResultSet{
		Columns: []string{"month", "total_amount"},
		Rows: []querier.Row{
			{"month": "2024-01", "total_amount": 1200.5},
			{"month": "2024-02", "total_amount": 1900.0},
		},
		Count: 2,
	})
	state.Explanation = &Explanation{
		Summary:     "Deposits rose through the quarter.",
		Insights:    []string{"February outpaced January"},
		Assumptions: []string{"Amounts are in CAD"},
		Caveats:     []string{"Only settled transactions are counted"},
		FollowUps:   []string{"How does March compare?"},
	}
	state.Quality = &quality.Report{
		Status: quality.StatusWarning,
		Checks: []quality.Check{
			{Name: quality.CheckNumeric, Status: quality.StatusWarning, Message: "Column 'total_amount' may have outliers"},
			{Name: quality.CheckPrivacy, Status: quality.StatusWarning, Message: "Found group(s) below the privacy threshold (k=5)"},
		},
		Privacy: quality.Privacy{
			Threshold: 5,
			Concerns:  []string{"column 'transfer_count' has 1 group(s) below the k-anonymity threshold (k=5)"},
		},
	}

	text := renderAnswer(state)

	sections := []string{
		"**Answer:** Deposits rose through the quarter.",
		"**Key Insights:**",
		"**Data:**",
		"**Assumptions:**",
		"**Notes:**",
		"**Privacy Notes:**",
		"**Data Quality Notes:**",
		"**You might also ask:**",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(text, section)
		require.NotEqual(t, -1, idx, section)
		assert.Greater(t, idx, last, section)
		last = idx
	}

	// The privacy warning stays in its own section, not the quality notes.
	assert.Contains(t, text, "- ⚠️ Column 'total_amount' may have outliers")
	assert.NotContains(t, text, "⚠️ Found group(s) below the privacy threshold")
}

func TestRenderAnswerTableSuppression(t *testing.T) {
	manyRows := func(n int) []querier.Row {
		rows := make([]querier.Row, n)
		for i := range rows {
			rows[i] = querier.Row{"channel": fmt.Sprintf("CH-%02d", i), "total": float64(i)}
		}
		return rows
	}

	t.Run("quality failure hides the table", func(t *testing.T) {
		state := executedState(&querier.ResultSet{
			Columns: []string{"account_id", "total"},
			Rows:    []querier.Row{{"account_id": "ACC-9", "total": 10.0}},
			Count:   1,
		})
		state.Quality = &quality.Report{Status: quality.StatusFail}
		state.Explanation = &Explanation{Summary: "Cannot be shown."}

		text := renderAnswer(state)
		assert.NotContains(t, text, "**Data:**")
		assert.NotContains(t, text, "ACC-9")
	})

	t.Run("oversized results are elided", func(t *testing.T) {
		state := executedState(&querier.ResultSet{
			Columns: []string{"channel", "total"},
			Rows:    manyRows(MaxInlineRows + 1),
			Count:   MaxInlineRows + 1,
		})
		state.Explanation = &Explanation{Summary: "Too many rows to inline."}

		assert.NotContains(t, renderAnswer(state), "**Data:**")
	})

	t.Run("empty results have no table", func(t *testing.T) {
		state := executedState(&querier.ResultSet{Columns: []string{"channel"}})
		state.Explanation = &Explanation{Summary: "Nothing came back."}

		assert.NotContains(t, renderAnswer(state), "**Data:**")
	})

	t.Run("nil explanation falls back", func(t *testing.T) {
		state := executedState(&querier.ResultSet{Columns: []string{"channel"}})

		text := renderAnswer(state)
		assert.Contains(t, text, "**Answer:** Unable to generate results for this question.")
		assert.Contains(t, text, "The query returned no data or encountered an error.")
	})
}

func TestRenderMarkdownTableSortsByFirstDateColumn(t *testing.T) {
	table := renderMarkdownTable(&querier.ResultSet{
		Columns: []string{"channel", "month", "total_amount"},
		Rows: []querier.Row{
			{"channel": "DIGITAL", "month": "2024-03", "total_amount": 300.0},
			{"channel": "BRANCH", "month": "2024-01", "total_amount": 100.0},
			{"channel": "DIGITAL", "month": "2024-02", "total_amount": 200.0},
		},
		Count: 3,
	})

	lines := strings.Split(strings.TrimSpace(table), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "| channel | month | total_amount |", lines[0])
	assert.Equal(t, "| --- | --- | --- |", lines[1])
	assert.Equal(t, "| BRANCH | 2024-01 | 100 |", lines[2])
	assert.Equal(t, "| DIGITAL | 2024-02 | 200 |", lines[3])
	assert.Equal(t, "| DIGITAL | 2024-03 | 300 |", lines[4])
}

func TestRenderMarkdownTableKeepsOrderWithoutDateColumn(t *testing.T) {
	table := renderMarkdownTable(&querier.ResultSet{
		Columns: []string{"channel", "total_amount"},
		Rows: []querier.Row{
			{"channel": "DIGITAL", "total_amount": 300.0},
			{"channel": "BRANCH", "total_amount": 100.0},
		},
		Count: 2,
	})

	lines := strings.Split(strings.TrimSpace(table), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| DIGITAL | 300 |", lines[2])
	assert.Equal(t, "| BRANCH | 100 |", lines[3])
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"float64 trims zeros", 6100.0, "6100"},
		{"float64 keeps fraction", 8200.5, "8200.5"},
		{"float32", float32(2.5), "2.5"},
		{"time", time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), "2024-03-15"},
		{"int", 42, "42"},
		{"string", "CHEQUING", "CHEQUING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCell(tt.in))
		})
	}
}

func TestRunFormatRedactsSensitiveValues(t *testing.T) {
	h := newHarness(t, &mockLLM{}, &mockQuerier{})
	state := &State{
		RunID: "run-1",
		Query: &QueryOutcome{Status: QueryBlocked},
		Explanation: &Explanation{
			Summary: "Card 4111222233334444 belongs to ops@example.com.",
		},
	}

	patch, detail, err := h.pipeline.runFormat(context.Background(), state)
	require.NoError(t, err)

	format, ok := patch.(FormatPatch)
	require.True(t, ok)
	assert.Contains(t, format.FinalText, "[CARD REDACTED]")
	assert.Contains(t, format.FinalText, "[EMAIL REDACTED]")
	assert.NotContains(t, format.FinalText, "4111222233334444")
	assert.NotContains(t, format.FinalText, "ops@example.com")
	assert.Equal(t, len(format.FinalText), detail["chars"])
}
