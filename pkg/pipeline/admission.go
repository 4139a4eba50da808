package pipeline

import "context"

// runAdmission checks the question against the scope gate. Disallowed
// questions route straight to the reject node; no model or database call
// happens before this gate passes.
func (p *Pipeline) runAdmission(_ context.Context, state *State) (Patch, map[string]any, error) {
	verdict := p.cfg.Gate.Check(state.Question)
	p.logInfo("pipeline: admission checked",
		"run_id", state.RunID,
		"status", verdict.Status,
		"confidence", verdict.Confidence)

	detail := map[string]any{
		"status":     string(verdict.Status),
		"confidence": verdict.Confidence,
	}
	return AdmissionPatch{Verdict: &verdict}, detail, nil
}
