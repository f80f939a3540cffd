// Package fallback evaluates declared replan policies against the
// outcome of a finished retrieval pass.
package fallback

import (
	"log/slog"
	"strings"

	"github.com/chaekko/chaekko/internal/plan"
)

// OutcomeSet summarizes one retrieval pass for trigger matching.
type OutcomeSet struct {
	// Timeouts marks stages that exceeded their sub-budget.
	Timeouts map[plan.Stage]bool
	// Errors marks stages that failed for a non-timeout reason.
	Errors map[plan.Stage]bool
	// ZeroResults is set when fusion produced no candidates at all.
	ZeroResults bool
	// LowResults is set when the pass produced candidates but the
	// quality gate judged them insufficient.
	LowResults bool
}

func (o OutcomeSet) timedOut(stage plan.Stage) bool { return o.Timeouts[stage] }
func (o OutcomeSet) errored(stage plan.Stage) bool  { return o.Errors[stage] }

// Decision is the outcome of policy evaluation: the matched policy, the
// mutated plan, and which stages must run again under it.
type Decision struct {
	Policy      plan.FallbackPolicy
	NewPlan     *plan.RetrievalPlan
	RerunStages []plan.Stage
}

// Evaluator matches declared policies against pass outcomes. At most one
// policy fires per request: the first match in declaration order.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger disables logging.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{logger: logger}
}

// Evaluate returns the decision for the first applicable policy, or nil
// when no policy matches. A policy whose mutations cannot be applied
// (text-source switch to a blank variant) is skipped, not failed: the
// next declared policy still gets its chance.
func (e *Evaluator) Evaluate(p *plan.RetrievalPlan, outcome OutcomeSet) *Decision {
	for _, policy := range p.Fallbacks {
		if !matches(policy.When, outcome) {
			continue
		}
		decision, ok := e.apply(p, policy)
		if !ok {
			e.logger.Debug("fallback policy matched but is not applicable",
				slog.String("policy", policy.ID),
				slog.String("trigger", string(policy.When)))
			continue
		}
		e.logger.Info("fallback policy applied",
			slog.String("policy", policy.ID),
			slog.String("trigger", string(policy.When)),
			slog.Int("rerun_stages", len(decision.RerunStages)))
		return decision
	}
	return nil
}

// matches dispatches over the closed trigger set. Adding a trigger
// without a case here is a compile-visible omission, not a silent
// string mismatch.
func matches(trigger plan.Trigger, o OutcomeSet) bool {
	switch trigger {
	case plan.OnTimeout:
		return o.timedOut(plan.StageLexical) || o.timedOut(plan.StageVector)
	case plan.OnVectorError:
		return o.errored(plan.StageVector)
	case plan.OnRerankTimeout:
		return o.timedOut(plan.StageRerank)
	case plan.OnRerankError:
		return o.errored(plan.StageRerank)
	case plan.OnZeroResults:
		return o.ZeroResults
	case plan.OnLowResults:
		return o.LowResults
	default:
		return false
	}
}

// apply builds the mutated plan and the rerun set for one policy.
//
// Rerun semantics: switching the query text invalidates every retrieval
// result, so all stages still enabled after mutation rerun. A top-K
// override reruns only the widened stage. Pure stage disables rerun
// nothing: the next pass simply omits the stage.
func (e *Evaluator) apply(p *plan.RetrievalPlan, policy plan.FallbackPolicy) (*Decision, bool) {
	mut := policy.Mutations
	np := p.Clone()

	if src := mut.UseQueryTextSource; src != "" {
		text, known := np.Texts.Text(src)
		if !known || strings.TrimSpace(text) == "" {
			return nil, false
		}
		np.QueryText = strings.TrimSpace(text)
		np.TextSource = src
	}

	for _, stage := range mut.DisableStages {
		np.StageEnabled[stage] = false
	}
	for stage, k := range mut.TopKOverrides {
		if k > 0 {
			np.TopK[stage] = k
		}
	}

	rerun := make([]plan.Stage, 0, len(plan.Stages))
	switch {
	case mut.UseQueryTextSource != "":
		for _, stage := range plan.Stages {
			if stage != plan.StageRerank && np.Enabled(stage) {
				rerun = append(rerun, stage)
			}
		}
	case len(mut.TopKOverrides) > 0:
		for _, stage := range plan.Stages {
			if _, ok := mut.TopKOverrides[stage]; ok && np.Enabled(stage) {
				rerun = append(rerun, stage)
			}
		}
	}

	return &Decision{Policy: policy, NewPlan: np, RerunStages: rerun}, true
}
