package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		question string
		intent   Intent
	}{
		{"What's the monthly trend in deposits?", IntentTrend},
		{"How did e-transfer volume change over time?", IntentTrend},
		{"Compare digital vs branch transactions", IntentComparison},
		{"What's the difference between chequing and savings inflows?", IntentComparison},
		{"Give me the breakdown of fees", IntentDrillDown},
		{"Total withdrawals by channel", IntentDrillDown},
		{"Show me all bill payments", IntentExploration},
		{"What are the top products?", IntentExploration},
		{"Total deposit amount in January", IntentMetricQuery},
		{"Net flow for chequing accounts", IntentMetricQuery},
		// Earlier rules win when several keyword families match.
		{"Show the daily change in balances", IntentTrend},
		{"Compare totals by channel", IntentComparison},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.intent, classifyIntent(tt.question))
		})
	}
}

func TestRunRouterPlansFullPath(t *testing.T) {
	h := newHarness(t, &mockLLM{}, &mockQuerier{})
	state := &State{Question: "Total withdrawals by channel"}

	patch, detail, err := h.pipeline.runRouter(context.Background(), state)
	require.NoError(t, err)

	route, ok := patch.(RoutePatch)
	require.True(t, ok)
	assert.Equal(t, IntentDrillDown, route.Intent)
	assert.Equal(t, []Stage{StageInterpret, StageQuery, StageQuality, StageExplain}, route.PlannedStages)
	assert.Equal(t, "drill_down", detail["intent"])
}
