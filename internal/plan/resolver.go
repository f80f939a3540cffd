package plan

import (
	"fmt"
	"strings"
	"time"

	chaekkoerrors "github.com/chaekko/chaekko/internal/errors"
)

// Platform defaults applied when the payload leaves a field unset.
const (
	DefaultTopK        = 50
	DefaultRerankTopK  = 20
	DefaultFusionK     = 60
	DefaultPageSize    = 20
	MaxPageSize        = 100
	DefaultLexWeight   = 0.5
	DefaultVecWeight   = 0.5
	DefaultTotalBudget = 800 * time.Millisecond
)

// allowedOperators is the closed operator set accepted in filter clauses.
var allowedOperators = map[string]struct{}{
	"eq": {}, "ne": {}, "gt": {}, "gte": {}, "lt": {}, "lte": {},
	"in": {}, "like": {},
}

// Defaults configures the resolver's platform defaults.
type Defaults struct {
	TopK        int
	RerankTopK  int
	FusionK     int
	PageSize    int
	MaxPageSize int
	LexWeight   float64
	VecWeight   float64
	Budget      time.Duration
}

// fill replaces zero values with platform defaults.
func (d Defaults) fill() Defaults {
	if d.TopK <= 0 {
		d.TopK = DefaultTopK
	}
	if d.RerankTopK <= 0 {
		d.RerankTopK = DefaultRerankTopK
	}
	if d.FusionK <= 0 {
		d.FusionK = DefaultFusionK
	}
	if d.PageSize <= 0 {
		d.PageSize = DefaultPageSize
	}
	if d.MaxPageSize <= 0 {
		d.MaxPageSize = MaxPageSize
	}
	if d.LexWeight == 0 {
		d.LexWeight = DefaultLexWeight
	}
	if d.VecWeight == 0 {
		d.VecWeight = DefaultVecWeight
	}
	if d.Budget <= 0 {
		d.Budget = DefaultTotalBudget
	}
	return d
}

// Resolver turns query-context payloads into retrieval plans.
type Resolver struct {
	defaults Defaults
}

// NewResolver creates a resolver with the given platform defaults.
func NewResolver(d Defaults) *Resolver {
	return &Resolver{defaults: d.fill()}
}

// Resolve builds a plan from the versioned structured payload.
//
// The query text is chosen strictly by the declared queryTextSource;
// a missing or blank source fails with a bad-request error. Silent text
// fallback is the fallback evaluator's job, never the resolver's.
func (r *Resolver) Resolve(qc *QueryContext) (*RetrievalPlan, error) {
	if qc == nil {
		return nil, chaekkoerrors.BadRequest("query context is nil", nil)
	}
	if qc.Version < 1 {
		return nil, chaekkoerrors.BadRequest(
			fmt.Sprintf("unsupported query context version %d", qc.Version), nil)
	}

	source := qc.QueryTextSource
	if source == "" {
		source = TextSourceRaw
	}
	text, known := qc.Query.Text(source)
	if !known {
		return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeUnknownTextSource,
			fmt.Sprintf("unknown queryTextSource %q", source), nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeQueryEmpty,
			fmt.Sprintf("declared queryTextSource %q holds no text", source), nil)
	}

	if err := validateFilters(qc.Filters); err != nil {
		return nil, err
	}
	if err := validateFallbacks(qc.Fallbacks); err != nil {
		return nil, err
	}

	p := &RetrievalPlan{
		QueryText:  strings.TrimSpace(text),
		TextSource: source,
		Texts:      qc.Query,

		StageEnabled: map[Stage]bool{
			StageLexical: stageEnabled(qc.Lexical),
			StageVector:  stageEnabled(qc.Vector),
			StageRerank:  stageEnabled(qc.Rerank),
		},
		TopK: map[Stage]int{
			StageLexical: stageTopK(qc.Lexical, r.defaults.TopK),
			StageVector:  stageTopK(qc.Vector, r.defaults.TopK),
			StageRerank:  stageTopK(qc.Rerank, r.defaults.RerankTopK),
		},
		Boosts: map[Stage]map[string]float64{
			StageLexical: stageBoosts(qc.Lexical),
			StageVector:  stageBoosts(qc.Vector),
		},
		Fields: map[Stage][]string{
			StageLexical: stageFields(qc.Lexical),
			StageVector:  stageFields(qc.Vector),
		},
		Filters: qc.Filters,

		Fallbacks: qc.Fallbacks,
		Hint:      qc.ExecutionHint,
		Debug:     qc.Debug,
	}

	if err := r.applyFusion(p, qc.Fusion); err != nil {
		return nil, err
	}
	r.applyBudget(p, qc.ExecutionHint)
	r.applyPaging(p, qc.Page, qc.Size)

	return p, nil
}

// ResolveLegacy builds a plan from the pre-versioning payload shape.
// Legacy callers get the full default pipeline over their raw query.
func (r *Resolver) ResolveLegacy(lc *LegacyContext) (*RetrievalPlan, error) {
	if lc == nil {
		return nil, chaekkoerrors.BadRequest("legacy query context is nil", nil)
	}
	qc := &QueryContext{
		Version: 1,
		Query: QueryTexts{
			Raw:  lc.Query,
			Norm: lc.NormalizedQuery,
		},
		QueryTextSource: TextSourceRaw,
		Filters:         lc.Filters,
		Debug:           lc.Debug,
	}
	if lc.TopK > 0 {
		qc.Lexical = &StageBlock{TopK: lc.TopK}
		qc.Vector = &StageBlock{TopK: lc.TopK}
	}
	return r.Resolve(qc)
}

// ResolveRaw builds a default plan around a bare query string.
func (r *Resolver) ResolveRaw(query string) (*RetrievalPlan, error) {
	if strings.TrimSpace(query) == "" {
		return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeQueryEmpty,
			"query text is empty", nil)
	}
	return r.Resolve(&QueryContext{
		Version:         1,
		Query:           QueryTexts{Raw: query},
		QueryTextSource: TextSourceRaw,
	})
}

func (r *Resolver) applyFusion(p *RetrievalPlan, spec *FusionSpec) error {
	p.FusionMethod = FusionRRF
	p.FusionK = r.defaults.FusionK
	p.LexicalWeight = r.defaults.LexWeight
	p.VectorWeight = r.defaults.VecWeight

	if spec == nil {
		return nil
	}
	switch spec.Method {
	case "", FusionRRF:
		p.FusionMethod = FusionRRF
	case FusionWeighted:
		p.FusionMethod = FusionWeighted
	default:
		return chaekkoerrors.BadRequest(
			fmt.Sprintf("unknown fusion method %q", spec.Method), nil)
	}
	if spec.K > 0 {
		p.FusionK = spec.K
	}
	if spec.LexicalWeight > 0 {
		p.LexicalWeight = spec.LexicalWeight
	}
	if spec.VectorWeight > 0 {
		p.VectorWeight = spec.VectorWeight
	}
	return nil
}

func (r *Resolver) applyBudget(p *RetrievalPlan, hint *ExecutionHint) {
	p.Budget = r.defaults.Budget
	if hint != nil && hint.BudgetMs > 0 {
		p.Budget = time.Duration(hint.BudgetMs) * time.Millisecond
	}
}

func (r *Resolver) applyPaging(p *RetrievalPlan, page, size int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = r.defaults.PageSize
	}
	if size > r.defaults.MaxPageSize {
		size = r.defaults.MaxPageSize
	}
	p.Page = page
	p.Size = size
}

func stageEnabled(block *StageBlock) bool {
	if block == nil || block.Enabled == nil {
		return true
	}
	return *block.Enabled
}

func stageTopK(block *StageBlock, def int) int {
	if block == nil || block.TopK <= 0 {
		return def
	}
	return block.TopK
}

func stageBoosts(block *StageBlock) map[string]float64 {
	if block == nil {
		return nil
	}
	return block.Boosts
}

func stageFields(block *StageBlock) []string {
	if block == nil {
		return nil
	}
	return block.Fields
}

// validateFilters checks clause shape: non-empty field, known operator,
// present value. Strictness is passed through untouched.
func validateFilters(groups []FilterGroup) error {
	for gi, group := range groups {
		for ci, clause := range group {
			if strings.TrimSpace(clause.Field) == "" {
				return chaekkoerrors.New(chaekkoerrors.ErrCodeInvalidFilter,
					fmt.Sprintf("filter[%d][%d]: field is empty", gi, ci), nil)
			}
			if _, ok := allowedOperators[clause.Operator]; !ok {
				return chaekkoerrors.New(chaekkoerrors.ErrCodeInvalidFilter,
					fmt.Sprintf("filter[%d][%d]: unknown operator %q", gi, ci, clause.Operator), nil)
			}
			if clause.Value == nil {
				return chaekkoerrors.New(chaekkoerrors.ErrCodeInvalidFilter,
					fmt.Sprintf("filter[%d][%d]: value is missing", gi, ci), nil)
			}
		}
	}
	return nil
}

// validateFallbacks rejects unknown triggers and text sources up front so
// a bad declaration fails the request instead of misfiring mid-pipeline.
func validateFallbacks(policies []FallbackPolicy) error {
	for i, policy := range policies {
		if !policy.When.Valid() {
			return chaekkoerrors.BadRequest(
				fmt.Sprintf("fallback[%d]: unknown trigger %q", i, policy.When), nil)
		}
		if src := policy.Mutations.UseQueryTextSource; src != "" {
			if _, ok := (QueryTexts{}).Text(src); !ok {
				return chaekkoerrors.New(chaekkoerrors.ErrCodeUnknownTextSource,
					fmt.Sprintf("fallback[%d]: unknown text source %q", i, src), nil)
			}
		}
	}
	return nil
}
