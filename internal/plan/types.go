// Package plan resolves the versioned query-context payload into an
// immutable RetrievalPlan that parameterizes the retrieval pipeline.
package plan

import (
	"time"
)

// Stage identifies one retrieval pipeline stage.
type Stage string

const (
	// StageLexical is keyword retrieval against the search index.
	StageLexical Stage = "lexical"
	// StageVector is semantic retrieval against the search index.
	StageVector Stage = "vector"
	// StageRerank is the optional downstream re-ranking pass.
	StageRerank Stage = "rerank"
)

// Stages lists all known stages in pipeline order.
var Stages = []Stage{StageLexical, StageVector, StageRerank}

// Text sources selectable via queryTextSource.
const (
	TextSourceRaw   = "raw"
	TextSourceNorm  = "norm"
	TextSourceFinal = "final"
)

// Fusion methods.
const (
	FusionRRF      = "rrf"
	FusionWeighted = "weighted"
)

// QueryTexts carries the query text variants produced by upstream
// query planning. Any of them may be blank.
type QueryTexts struct {
	Raw   string `json:"raw"`
	Norm  string `json:"norm"`
	Final string `json:"final"`
}

// Text returns the text for a named source and whether the source name
// is known.
func (q QueryTexts) Text(source string) (string, bool) {
	switch source {
	case TextSourceRaw:
		return q.Raw, true
	case TextSourceNorm:
		return q.Norm, true
	case TextSourceFinal:
		return q.Final, true
	default:
		return "", false
	}
}

// StageBlock is the per-stage section of the query-context payload.
// A missing block defaults to enabled with the platform default top-K.
type StageBlock struct {
	Enabled *bool              `json:"enabled"`
	TopK    int                `json:"topK"`
	Boosts  map[string]float64 `json:"boosts"`
	Fields  []string           `json:"fields"`
}

// FilterClause is one structured constraint. The exact mapping to index
// query clauses is the backend adapter's concern; this core validates
// shape and strictness only.
type FilterClause struct {
	Scope    string `json:"scope"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Strict   bool   `json:"strict"`
}

// FilterGroup is an AND-group of clauses.
type FilterGroup []FilterClause

// FusionSpec declares the fusion method and its parameters.
type FusionSpec struct {
	Method        string  `json:"method"`
	K             int     `json:"k"`
	LexicalWeight float64 `json:"lexicalWeight"`
	VectorWeight  float64 `json:"vectorWeight"`
}

// Trigger names one fallback condition. The set is closed; evaluation
// dispatches over it exhaustively.
type Trigger string

const (
	OnTimeout       Trigger = "onTimeout"
	OnVectorError   Trigger = "onVectorError"
	OnRerankTimeout Trigger = "onRerankTimeout"
	OnRerankError   Trigger = "onRerankError"
	OnZeroResults   Trigger = "onZeroResults"
	OnLowResults    Trigger = "onLowResults"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case OnTimeout, OnVectorError, OnRerankTimeout, OnRerankError, OnZeroResults, OnLowResults:
		return true
	default:
		return false
	}
}

// Mutations is the plan change set applied when a fallback policy matches.
type Mutations struct {
	DisableStages      []Stage       `json:"disableStages"`
	UseQueryTextSource string        `json:"useQueryTextSource"`
	TopKOverrides      map[Stage]int `json:"topKOverrides"`
}

// FallbackPolicy is one declared replan rule. At most one policy is
// applied per request: first match in declaration order.
type FallbackPolicy struct {
	ID        string    `json:"id"`
	When      Trigger   `json:"when"`
	Mutations Mutations `json:"mutations"`
}

// ExecutionHint optionally subdivides the total time budget.
// Values are milliseconds; zero means "not specified".
type ExecutionHint struct {
	BudgetMs   int `json:"budgetMs"`
	LexicalMs  int `json:"lexicalMs"`
	VectorMs   int `json:"vectorMs"`
	RerankMs   int `json:"rerankMs"`
	OverheadMs int `json:"overheadMs"`
}

// QueryContext is the versioned structured planning payload (preferred
// input form). DTO (de)serialization happens upstream; this package
// consumes the already-bound object.
type QueryContext struct {
	Version         int              `json:"version"`
	Query           QueryTexts       `json:"query"`
	QueryTextSource string           `json:"queryTextSource"`
	Lexical         *StageBlock      `json:"lexical"`
	Vector          *StageBlock      `json:"vector"`
	Rerank          *StageBlock      `json:"rerank"`
	Filters         []FilterGroup    `json:"filters"`
	Fusion          *FusionSpec      `json:"fusion"`
	Fallbacks       []FallbackPolicy `json:"fallbacks"`
	ExecutionHint   *ExecutionHint   `json:"executionHint"`
	Page            int              `json:"page"`
	Size            int              `json:"size"`
	Debug           bool             `json:"debug"`
}

// LegacyContext is the unstructured pre-versioning payload still sent by
// older callers.
type LegacyContext struct {
	Query           string        `json:"query"`
	NormalizedQuery string        `json:"normalizedQuery"`
	TopK            int           `json:"topK"`
	Filters         []FilterGroup `json:"filters"`
	Debug           bool          `json:"debug"`
}

// RetrievalPlan is the resolved, stage-agnostic execution plan. It is
// built once per request and treated as immutable; fallback policies
// mutate a Clone, never the original.
type RetrievalPlan struct {
	QueryText  string
	TextSource string
	Texts      QueryTexts

	StageEnabled map[Stage]bool
	TopK         map[Stage]int
	Boosts       map[Stage]map[string]float64
	Fields       map[Stage][]string
	Filters      []FilterGroup

	FusionMethod  string
	FusionK       int
	LexicalWeight float64
	VectorWeight  float64

	Fallbacks []FallbackPolicy
	Budget    time.Duration
	Hint      *ExecutionHint

	Page int
	Size int

	Debug bool
}

// Clone returns a deep copy suitable for fallback mutation.
func (p *RetrievalPlan) Clone() *RetrievalPlan {
	cp := *p

	cp.StageEnabled = make(map[Stage]bool, len(p.StageEnabled))
	for k, v := range p.StageEnabled {
		cp.StageEnabled[k] = v
	}
	cp.TopK = make(map[Stage]int, len(p.TopK))
	for k, v := range p.TopK {
		cp.TopK[k] = v
	}
	cp.Boosts = make(map[Stage]map[string]float64, len(p.Boosts))
	for stage, boosts := range p.Boosts {
		m := make(map[string]float64, len(boosts))
		for k, v := range boosts {
			m[k] = v
		}
		cp.Boosts[stage] = m
	}
	cp.Fields = make(map[Stage][]string, len(p.Fields))
	for stage, fields := range p.Fields {
		cp.Fields[stage] = append([]string(nil), fields...)
	}
	cp.Filters = make([]FilterGroup, len(p.Filters))
	for i, group := range p.Filters {
		cp.Filters[i] = append(FilterGroup(nil), group...)
	}
	cp.Fallbacks = append([]FallbackPolicy(nil), p.Fallbacks...)
	if p.Hint != nil {
		hint := *p.Hint
		cp.Hint = &hint
	}
	return &cp
}

// Enabled reports whether a stage is enabled in this plan.
func (p *RetrievalPlan) Enabled(stage Stage) bool {
	return p.StageEnabled[stage]
}
