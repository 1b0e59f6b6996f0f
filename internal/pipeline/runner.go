package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resolution-cli/internal/model"
)

// Job is one end-to-end resolution: a prompt followed by a resolve.
type Job struct {
	Prompt     PromptRequest
	Resolve    ResolveRequest
	SingleCall bool
}

// Run executes job on o and returns the summary together with the final
// state snapshot. The snapshot is returned on failure too so callers can
// inspect the partial progress.
func Run(ctx context.Context, o *Orchestrator, job Job) (*model.RunSummary, State, error) {
	if _, err := o.RunPrompt(ctx, job.Prompt); err != nil {
		return nil, o.State(), eris.Wrap(err, "pipeline: prompt")
	}

	resolve := o.RunResolve
	if job.SingleCall {
		resolve = o.RunResolveSingle
	}
	sum, err := resolve(ctx, job.Resolve)
	if err != nil {
		return nil, o.State(), eris.Wrap(err, "pipeline: resolve")
	}
	return sum, o.State(), nil
}
