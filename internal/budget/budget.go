// Package budget splits a request's total time budget into per-stage
// sub-budgets.
package budget

import (
	"time"

	"github.com/chaekko/chaekko/internal/plan"
)

// Defaults for the split.
const (
	// DefaultLexicalShare is the lexical stage's share of the budget.
	DefaultLexicalShare = 0.5
	// DefaultVectorShare is the vector stage's share of the budget.
	DefaultVectorShare = 0.3
	// DefaultRerankShare is the rerank stage's share of the budget.
	DefaultRerankShare = 0.2
	// DefaultMinStage is the minimum floor per stage so no stage is
	// starved to zero.
	DefaultMinStage = 20 * time.Millisecond
	// DefaultOverhead is reserved for planning, fusion, grouping and
	// response assembly before the split.
	DefaultOverhead = 50 * time.Millisecond
)

// Config configures the allocator.
type Config struct {
	LexicalShare float64
	VectorShare  float64
	RerankShare  float64
	MinStage     time.Duration
	Overhead     time.Duration
}

// fill replaces zero values with defaults.
func (c Config) fill() Config {
	if c.LexicalShare <= 0 {
		c.LexicalShare = DefaultLexicalShare
	}
	if c.VectorShare <= 0 {
		c.VectorShare = DefaultVectorShare
	}
	if c.RerankShare <= 0 {
		c.RerankShare = DefaultRerankShare
	}
	if c.MinStage <= 0 {
		c.MinStage = DefaultMinStage
	}
	if c.Overhead <= 0 {
		c.Overhead = DefaultOverhead
	}
	return c
}

// Allocation is the per-stage budget split for one request.
type Allocation struct {
	Lexical  time.Duration
	Vector   time.Duration
	Rerank   time.Duration
	Overhead time.Duration
}

// For returns the allocated budget for a stage.
func (a Allocation) For(stage plan.Stage) time.Duration {
	switch stage {
	case plan.StageLexical:
		return a.Lexical
	case plan.StageVector:
		return a.Vector
	case plan.StageRerank:
		return a.Rerank
	default:
		return 0
	}
}

// Allocator computes per-stage budgets.
type Allocator struct {
	cfg Config
}

// New creates an allocator.
func New(cfg Config) *Allocator {
	return &Allocator{cfg: cfg.fill()}
}

// Allocate splits total into per-stage budgets. An explicit execution
// hint overrides the computed split verbatim, after floor enforcement.
func (a *Allocator) Allocate(total time.Duration, hint *plan.ExecutionHint) Allocation {
	alloc := Allocation{Overhead: a.cfg.Overhead}

	usable := total - a.cfg.Overhead
	if usable < 0 {
		usable = 0
	}

	alloc.Lexical = time.Duration(float64(usable) * a.cfg.LexicalShare)
	alloc.Vector = time.Duration(float64(usable) * a.cfg.VectorShare)
	alloc.Rerank = time.Duration(float64(usable) * a.cfg.RerankShare)

	if hint != nil {
		if hint.LexicalMs > 0 {
			alloc.Lexical = time.Duration(hint.LexicalMs) * time.Millisecond
		}
		if hint.VectorMs > 0 {
			alloc.Vector = time.Duration(hint.VectorMs) * time.Millisecond
		}
		if hint.RerankMs > 0 {
			alloc.Rerank = time.Duration(hint.RerankMs) * time.Millisecond
		}
		if hint.OverheadMs > 0 {
			alloc.Overhead = time.Duration(hint.OverheadMs) * time.Millisecond
		}
	}

	alloc.Lexical = a.floor(alloc.Lexical)
	alloc.Vector = a.floor(alloc.Vector)
	alloc.Rerank = a.floor(alloc.Rerank)

	return alloc
}

func (a *Allocator) floor(d time.Duration) time.Duration {
	if d < a.cfg.MinStage {
		return a.cfg.MinStage
	}
	return d
}
