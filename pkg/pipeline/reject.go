package pipeline

import (
	"context"

	"github.com/helioslabs/ledgerscope/pkg/scope"
)

// runReject is the terminal node for disallowed questions. It renders the
// gate's verdict into user-facing text; no model or database work happens.
func (p *Pipeline) runReject(_ context.Context, state *State) (Patch, map[string]any, error) {
	var verdict scope.Verdict
	if state.Admission != nil {
		verdict = *state.Admission
	}
	p.logInfo("pipeline: question rejected",
		"run_id", state.RunID, "reason", verdict.Reason)

	return RejectPatch{FinalText: scope.RejectionMessage(verdict)},
		map[string]any{"status": string(verdict.Status)}, nil
}
