package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "json fence",
			response: "Here you go:\n```json\n{\"sql\": \"SELECT 1\"}\n```\nLet me know!",
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "generic fence with object",
			response: "```\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "generic fence without object is skipped",
			response: "```\nSELECT 1\n```",
			want:     "",
		},
		{
			name:     "bare object",
			response: `{"a": 1}`,
			want:     `{"a": 1}`,
		},
		{
			name:     "object inside prose",
			response: `The plan is {"metric": "sum"} as requested.`,
			want:     `{"metric": "sum"}`,
		},
		{
			name:     "nested objects",
			response: `{"metric": {"function": "SUM"}, "dimensions": ["month"]}`,
			want:     `{"metric": {"function": "SUM"}, "dimensions": ["month"]}`,
		},
		{
			name:     "braces inside string values",
			response: `{"sql": "SELECT '}' AS brace", "note": "tricky"}`,
			want:     `{"sql": "SELECT '}' AS brace", "note": "tricky"}`,
		},
		{
			name:     "escaped quotes inside strings",
			response: `{"summary": "said \"hello\" twice"}`,
			want:     `{"summary": "said \"hello\" twice"}`,
		},
		{
			name:     "unterminated fence falls back to brace scan",
			response: "```json\n{\"a\": 1}",
			want:     `{"a": 1}`,
		},
		{
			name:     "unbalanced object",
			response: `{"a": 1`,
			want:     "",
		},
		{
			name:     "no json at all",
			response: "I cannot answer that.",
			want:     "",
		},
		{
			name:     "empty response",
			response: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.response))
		})
	}
}

func TestParseSQLResponse(t *testing.T) {
	sql, explanation, err := parseSQLResponse("```json\n{\"sql\": \"SELECT 1\", \"explanation\": \"probe\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)
	assert.Equal(t, "probe", explanation)

	_, _, err = parseSQLResponse(`{"explanation": "no sql field"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sql field")

	_, _, err = parseSQLResponse("no json here")
	require.Error(t, err)
}

func TestTruncateForError(t *testing.T) {
	assert.Equal(t, "short", truncateForError("short"))

	truncated := truncateForError(strings.Repeat("x", 250))
	assert.Len(t, truncated, 203)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}
