// Package retrieval implements the lexical and vector retrieval stages
// behind a common contract the orchestrator schedules.
package retrieval

import (
	"context"
	"time"

	"github.com/chaekko/chaekko/internal/plan"
)

// Status classifies how a stage run ended.
type Status string

const (
	// StatusOK means the stage produced a (possibly short) ranked list.
	StatusOK Status = "ok"
	// StatusEmpty means the stage ran and matched nothing.
	StatusEmpty Status = "empty"
	// StatusTimeout means the stage exceeded its sub-budget.
	StatusTimeout Status = "timeout"
	// StatusError means the stage failed for a non-timeout reason.
	StatusError Status = "error"
	// StatusSkipped means the stage was not attempted: disabled by the
	// plan, or fenced off by its circuit breaker.
	StatusSkipped Status = "skipped"
)

// StageResult is the uniform outcome of one stage run. Err is only set
// for StatusTimeout and StatusError.
type StageResult struct {
	Stage   plan.Stage
	Status  Status
	DocIDs  []string
	Scores  []float64
	Elapsed time.Duration
	Err     error
	// DSL is the backend-native query rendering, present in debug runs.
	DSL string
	// Note records stage-internal decisions worth surfacing in debug
	// output, like the short-query re-probe firing.
	Note string
}

// Ran reports whether the stage actually executed against the backend.
func (r StageResult) Ran() bool {
	return r.Status == StatusOK || r.Status == StatusEmpty
}

// Retriever is the contract both retrieval stages implement. Run must
// respect the budget via context deadline and always return a result,
// never panic the pipeline.
type Retriever interface {
	Stage() plan.Stage
	Run(ctx context.Context, p *plan.RetrievalPlan, budget time.Duration) StageResult
}
