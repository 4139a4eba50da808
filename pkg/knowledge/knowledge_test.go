package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	require.NotEmpty(t, base.Metrics())
	assert.Equal(t, []string{
		"channel_analysis", "daily_summary", "monthly_trend", "product_mix",
	}, base.PatternNames())
}

func TestMetricLookup(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	m, ok := base.Metric("net_flow")
	require.True(t, ok)
	assert.Equal(t, "volume", m.Category)
	assert.Contains(t, m.SQL, "SUM(event_amount)")

	_, ok = base.Metric("nonexistent_metric")
	assert.False(t, ok)
}

func TestPatternLookup(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	p, ok := base.Pattern("monthly_trend")
	require.True(t, ok)
	assert.Contains(t, p.SQL, "strftime(event_date, '%Y-%m')")

	_, ok = base.Pattern("weekly_trend")
	assert.False(t, ok)
}

func TestDefine(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	def, ok := base.Define("CHEQUING")
	require.True(t, ok)
	assert.Contains(t, def, "transactional")

	def, ok = base.Define("net flow")
	require.True(t, ok)
	assert.Contains(t, def, "Deposits minus withdrawals")

	_, ok = base.Define("blockchain")
	assert.False(t, ok)
}

func TestContext(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	context := base.Context()
	assert.Contains(t, context, "## Available Metrics:")
	assert.Contains(t, context, "**net_flow**")
	assert.Contains(t, context, "## Business Rules:")
	assert.Contains(t, context, "at least 5 distinct accounts")
}
