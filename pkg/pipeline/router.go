package pipeline

import (
	"context"
	"strings"
)

// intentRules are checked in order; the first keyword hit wins. Keywords are
// substrings of the lower-cased question, so "by channel" classifies as
// drill_down through "by" even without the word "breakdown".
var intentRules = []struct {
	intent Intent
	words  []string
}{
	{IntentTrend, []string{"trend", "over time", "monthly", "weekly", "daily", "growth", "change"}},
	{IntentComparison, []string{"compare", "vs", "versus", "difference", "between"}},
	{IntentDrillDown, []string{"breakdown", "by", "per", "each", "detail"}},
	{IntentExploration, []string{"show", "list", "what are", "explore"}},
}

func classifyIntent(question string) Intent {
	lower := strings.ToLower(question)
	for _, rule := range intentRules {
		for _, word := range rule.words {
			if strings.Contains(lower, word) {
				return rule.intent
			}
		}
	}
	return IntentMetricQuery
}

// runRouter classifies the question's intent and plans the remaining
// stages. Routing is deterministic; no model call.
func (p *Pipeline) runRouter(_ context.Context, state *State) (Patch, map[string]any, error) {
	intent := classifyIntent(state.Question)
	p.logInfo("pipeline: question routed", "run_id", state.RunID, "intent", intent)

	return RoutePatch{
		Intent:        intent,
		PlannedStages: []Stage{StageInterpret, StageQuery, StageQuality, StageExplain},
	}, map[string]any{"intent": string(intent)}, nil
}
