package pipeline

import (
	"context"

	"github.com/helioslabs/ledgerscope/pkg/querier"
)

// runQuality hands the result set to the quality checker. The topology only
// routes here when the query executed cleanly.
func (p *Pipeline) runQuality(_ context.Context, state *State) (Patch, map[string]any, error) {
	var result *querier.ResultSet
	if state.Query.Executed() {
		result = state.Query.Result
	}

	report := p.cfg.Quality.Validate(result)
	p.logInfo("pipeline: quality checked",
		"run_id", state.RunID,
		"status", report.Status,
		"k_met", report.Privacy.KMet)

	return QualityPatch{Report: report}, map[string]any{"status": string(report.Status)}, nil
}
