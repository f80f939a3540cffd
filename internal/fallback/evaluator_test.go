package fallback

import (
	"testing"

	"github.com/chaekko/chaekko/internal/plan"
)

func basePlan(t *testing.T, policies ...plan.FallbackPolicy) *plan.RetrievalPlan {
	t.Helper()
	p, err := plan.NewResolver(plan.Defaults{}).Resolve(&plan.QueryContext{
		Version:         1,
		Query:           plan.QueryTexts{Raw: "해리 포터", Norm: "해리포터"},
		QueryTextSource: plan.TextSourceRaw,
		Fallbacks:       policies,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return p
}

func TestEvaluate_NoPolicies_NoDecision(t *testing.T) {
	p := basePlan(t)

	d := NewEvaluator(nil).Evaluate(p, OutcomeSet{ZeroResults: true})

	if d != nil {
		t.Fatalf("no declared policies but got decision %+v", d)
	}
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	// Given: two policies that both match a zero-result pass
	p := basePlan(t,
		plan.FallbackPolicy{ID: "widen", When: plan.OnZeroResults,
			Mutations: plan.Mutations{TopKOverrides: map[plan.Stage]int{plan.StageLexical: 200}}},
		plan.FallbackPolicy{ID: "retry-norm", When: plan.OnZeroResults,
			Mutations: plan.Mutations{UseQueryTextSource: plan.TextSourceNorm}},
	)

	// When: evaluating
	d := NewEvaluator(nil).Evaluate(p, OutcomeSet{ZeroResults: true})

	// Then: only the first declared policy fires
	if d == nil || d.Policy.ID != "widen" {
		t.Fatalf("decision = %+v, want policy widen", d)
	}
	if d.NewPlan.TopK[plan.StageLexical] != 200 {
		t.Errorf("topK override not applied: %d", d.NewPlan.TopK[plan.StageLexical])
	}
}

func TestEvaluate_TextSourceSwitchRerunsAllRetrievalStages(t *testing.T) {
	p := basePlan(t, plan.FallbackPolicy{
		ID:        "retry-norm",
		When:      plan.OnLowResults,
		Mutations: plan.Mutations{UseQueryTextSource: plan.TextSourceNorm},
	})

	d := NewEvaluator(nil).Evaluate(p, OutcomeSet{LowResults: true})

	if d == nil {
		t.Fatal("expected decision")
	}
	if d.NewPlan.QueryText != "해리포터" || d.NewPlan.TextSource != plan.TextSourceNorm {
		t.Errorf("text switch wrong: %q from %q", d.NewPlan.QueryText, d.NewPlan.TextSource)
	}
	if len(d.RerunStages) != 2 {
		t.Fatalf("rerun = %v, want both retrieval stages", d.RerunStages)
	}
}

func TestEvaluate_BlankTargetSourceSkipsToNextPolicy(t *testing.T) {
	// Given: the first policy switches to "final", which holds no text
	p := basePlan(t,
		plan.FallbackPolicy{ID: "retry-final", When: plan.OnZeroResults,
			Mutations: plan.Mutations{UseQueryTextSource: plan.TextSourceFinal}},
		plan.FallbackPolicy{ID: "widen", When: plan.OnZeroResults,
			Mutations: plan.Mutations{TopKOverrides: map[plan.Stage]int{plan.StageVector: 150}}},
	)

	d := NewEvaluator(nil).Evaluate(p, OutcomeSet{ZeroResults: true})

	if d == nil || d.Policy.ID != "widen" {
		t.Fatalf("inapplicable policy must be skipped, got %+v", d)
	}
}

func TestEvaluate_DisableOnlyMutationRerunsNothing(t *testing.T) {
	p := basePlan(t, plan.FallbackPolicy{
		ID:        "drop-vector",
		When:      plan.OnVectorError,
		Mutations: plan.Mutations{DisableStages: []plan.Stage{plan.StageVector}},
	})

	d := NewEvaluator(nil).Evaluate(p, OutcomeSet{Errors: map[plan.Stage]bool{plan.StageVector: true}})

	if d == nil {
		t.Fatal("expected decision")
	}
	if d.NewPlan.Enabled(plan.StageVector) {
		t.Error("vector stage should be disabled in the new plan")
	}
	if len(d.RerunStages) != 0 {
		t.Errorf("disable-only mutation must not rerun stages, got %v", d.RerunStages)
	}
}

func TestEvaluate_TriggerDispatch(t *testing.T) {
	cases := []struct {
		name    string
		trigger plan.Trigger
		outcome OutcomeSet
		match   bool
	}{
		{"timeout matches lexical", plan.OnTimeout,
			OutcomeSet{Timeouts: map[plan.Stage]bool{plan.StageLexical: true}}, true},
		{"timeout matches vector", plan.OnTimeout,
			OutcomeSet{Timeouts: map[plan.Stage]bool{plan.StageVector: true}}, true},
		{"timeout ignores rerank", plan.OnTimeout,
			OutcomeSet{Timeouts: map[plan.Stage]bool{plan.StageRerank: true}}, false},
		{"vector error", plan.OnVectorError,
			OutcomeSet{Errors: map[plan.Stage]bool{plan.StageVector: true}}, true},
		{"vector error ignores timeout", plan.OnVectorError,
			OutcomeSet{Timeouts: map[plan.Stage]bool{plan.StageVector: true}}, false},
		{"rerank timeout", plan.OnRerankTimeout,
			OutcomeSet{Timeouts: map[plan.Stage]bool{plan.StageRerank: true}}, true},
		{"rerank error", plan.OnRerankError,
			OutcomeSet{Errors: map[plan.Stage]bool{plan.StageRerank: true}}, true},
		{"zero results", plan.OnZeroResults, OutcomeSet{ZeroResults: true}, true},
		{"low results", plan.OnLowResults, OutcomeSet{LowResults: true}, true},
		{"low does not imply zero", plan.OnZeroResults, OutcomeSet{LowResults: true}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := basePlan(t, plan.FallbackPolicy{
				ID:        "p",
				When:      tc.trigger,
				Mutations: plan.Mutations{TopKOverrides: map[plan.Stage]int{plan.StageLexical: 99}},
			})
			d := NewEvaluator(nil).Evaluate(p, tc.outcome)
			if (d != nil) != tc.match {
				t.Errorf("trigger %s: matched=%v, want %v", tc.trigger, d != nil, tc.match)
			}
		})
	}
}
