package budget

import (
	"testing"
	"time"

	"github.com/chaekko/chaekko/internal/plan"
)

func TestAllocate_DefaultSplit(t *testing.T) {
	// Given: a 1050ms budget and default config (50ms overhead)
	a := New(Config{})

	// When: allocating without a hint
	alloc := a.Allocate(1050*time.Millisecond, nil)

	// Then: the 50/30/20 split applies to the usable 1000ms
	if alloc.Lexical != 500*time.Millisecond {
		t.Errorf("lexical = %v, want 500ms", alloc.Lexical)
	}
	if alloc.Vector != 300*time.Millisecond {
		t.Errorf("vector = %v, want 300ms", alloc.Vector)
	}
	if alloc.Rerank != 200*time.Millisecond {
		t.Errorf("rerank = %v, want 200ms", alloc.Rerank)
	}
}

func TestAllocate_FloorPreventsStarvation(t *testing.T) {
	a := New(Config{})

	// A tiny total would compute sub-floor budgets.
	alloc := a.Allocate(60*time.Millisecond, nil)

	for _, stage := range plan.Stages {
		if alloc.For(stage) < DefaultMinStage {
			t.Errorf("stage %s starved: %v < floor %v", stage, alloc.For(stage), DefaultMinStage)
		}
	}
}

func TestAllocate_HintOverridesVerbatim(t *testing.T) {
	a := New(Config{})

	alloc := a.Allocate(1000*time.Millisecond, &plan.ExecutionHint{
		LexicalMs: 400,
		VectorMs:  450,
		RerankMs:  100,
	})

	if alloc.Lexical != 400*time.Millisecond || alloc.Vector != 450*time.Millisecond || alloc.Rerank != 100*time.Millisecond {
		t.Errorf("hint not applied verbatim: %+v", alloc)
	}
}

func TestAllocate_HintStillFloored(t *testing.T) {
	a := New(Config{})

	alloc := a.Allocate(1000*time.Millisecond, &plan.ExecutionHint{VectorMs: 5})

	if alloc.Vector != DefaultMinStage {
		t.Errorf("hinted sub-floor budget must be raised to %v, got %v", DefaultMinStage, alloc.Vector)
	}
}

func TestAllocate_PartialHintKeepsComputedRest(t *testing.T) {
	a := New(Config{})

	alloc := a.Allocate(1050*time.Millisecond, &plan.ExecutionHint{LexicalMs: 700})

	if alloc.Lexical != 700*time.Millisecond {
		t.Errorf("lexical = %v, want hinted 700ms", alloc.Lexical)
	}
	if alloc.Vector != 300*time.Millisecond {
		t.Errorf("vector = %v, want computed 300ms", alloc.Vector)
	}
}
