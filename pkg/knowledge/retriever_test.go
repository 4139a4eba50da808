package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	base, err := Load()
	require.NoError(t, err)
	return NewRetriever(base)
}

func TestRetrieveRanksByOverlap(t *testing.T) {
	r := newTestRetriever(t)

	snippets := r.Retrieve("What was the net flow trend by month?", 3)
	require.Len(t, snippets, 3)

	assert.Equal(t, "Pattern: monthly_trend", snippets[0].Title,
		"the pattern covering every question token should rank first")
	assert.InDelta(t, 1.0, snippets[0].Score, 1e-9)

	for i := 1; i < len(snippets); i++ {
		assert.LessOrEqual(t, snippets[i].Score, snippets[i-1].Score)
	}
}

func TestRetrieveExactPatternName(t *testing.T) {
	r := newTestRetriever(t)

	snippets := r.Retrieve("monthly_trend", 1)
	require.Len(t, snippets, 1)
	assert.Equal(t, "Pattern: monthly_trend", snippets[0].Title)
	assert.InDelta(t, 1.0, snippets[0].Score, 1e-9)
}

func TestRetrieveNoMatches(t *testing.T) {
	r := newTestRetriever(t)

	assert.Empty(t, r.Retrieve("kwyjibo xylophone", 3))
	assert.Empty(t, r.Retrieve("", 3))
	assert.Empty(t, r.Retrieve("the a of", 3), "stopword-only questions match nothing")
}

func TestRetrieveTopKBounds(t *testing.T) {
	r := newTestRetriever(t)

	assert.Nil(t, r.Retrieve("deposits by channel", 0))

	snippets := r.Retrieve("deposits by channel", 2)
	assert.LessOrEqual(t, len(snippets), 2)
	require.NotEmpty(t, snippets)
	for _, s := range snippets {
		assert.Greater(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and drops stopwords",
			text: "What is the Net Flow for March?",
			want: []string{"net", "flow", "march"},
		},
		{
			name: "keeps column names whole",
			text: "sum of event_amount by event_date",
			want: []string{"sum", "event_amount", "event_date"},
		},
		{
			name: "dedupes repeated tokens",
			text: "month over month deposits month",
			want: []string{"month", "deposits"},
		},
		{
			name: "drops single characters",
			text: "a b c deposits",
			want: []string{"deposits"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestSharedTokens(t *testing.T) {
	assert.Equal(t, 2, sharedTokens(
		[]string{"net", "flow", "trend"},
		[]string{"flow", "net", "deposits"},
	))
	assert.Equal(t, 0, sharedTokens([]string{"net"}, nil))
}
