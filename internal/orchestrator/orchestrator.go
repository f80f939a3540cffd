// Package orchestrator runs the full search pipeline: plan resolution,
// budgeted concurrent retrieval, fusion, one fallback replan, document
// enrichment, grouping and paging.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/budget"
	"github.com/chaekko/chaekko/internal/cache"
	chaekkoerrors "github.com/chaekko/chaekko/internal/errors"
	"github.com/chaekko/chaekko/internal/fallback"
	"github.com/chaekko/chaekko/internal/grouping"
	"github.com/chaekko/chaekko/internal/plan"
	"github.com/chaekko/chaekko/internal/retrieval"
	"github.com/chaekko/chaekko/internal/telemetry"
	"github.com/chaekko/chaekko/pkg/fusion"
)

// Reranker is the optional downstream re-ranking hook. Implementations
// must return the same items in a new order; dropping items is not
// allowed.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []Item) ([]Item, error)
}

// Config configures the orchestrator.
type Config struct {
	Quality     QualityConfig
	PageCache   cache.Config
	DetailCache cache.Config
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithReranker attaches the re-ranking hook.
func WithReranker(r Reranker) Option {
	return func(o *Orchestrator) { o.reranker = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// Orchestrator coordinates one search request end to end.
type Orchestrator struct {
	resolver   *plan.Resolver
	allocator  *budget.Allocator
	retrievers map[plan.Stage]retrieval.Retriever
	evaluator  *fallback.Evaluator
	grouper    *grouping.Service
	index      backend.Index

	pageCache   *cache.TTLCache[Response]
	detailCache *cache.TTLCache[backend.Document]
	quality     QualityConfig

	reranker Reranker
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// New wires the pipeline. The retriever list must cover the lexical and
// vector stages.
func New(resolver *plan.Resolver, allocator *budget.Allocator,
	retrievers []retrieval.Retriever, evaluator *fallback.Evaluator,
	grouper *grouping.Service, index backend.Index, cfg Config, opts ...Option) *Orchestrator {

	o := &Orchestrator{
		resolver:    resolver,
		allocator:   allocator,
		retrievers:  make(map[plan.Stage]retrieval.Retriever, len(retrievers)),
		evaluator:   evaluator,
		grouper:     grouper,
		index:       index,
		pageCache:   cache.New[Response](cfg.PageCache),
		detailCache: cache.New[backend.Document](cfg.DetailCache),
		quality:     cfg.Quality.fill(),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, r := range retrievers {
		o.retrievers[r.Stage()] = r
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search runs the pipeline for a structured query context.
func (o *Orchestrator) Search(ctx context.Context, qc *plan.QueryContext) (*Response, error) {
	traceID := uuid.NewString()
	requestID := uuid.NewString()
	start := time.Now()

	p, err := o.resolver.Resolve(qc)
	if err != nil {
		o.metrics.ObserveSearch("bad_request")
		return nil, tagIDs(err, traceID, requestID)
	}
	return o.run(ctx, p, traceID, requestID, start)
}

// SearchLegacy runs the pipeline for the pre-versioning payload shape.
func (o *Orchestrator) SearchLegacy(ctx context.Context, lc *plan.LegacyContext) (*Response, error) {
	traceID := uuid.NewString()
	requestID := uuid.NewString()
	start := time.Now()

	p, err := o.resolver.ResolveLegacy(lc)
	if err != nil {
		o.metrics.ObserveSearch("bad_request")
		return nil, tagIDs(err, traceID, requestID)
	}
	return o.run(ctx, p, traceID, requestID, start)
}

// SearchRaw runs the default pipeline over a bare query string.
func (o *Orchestrator) SearchRaw(ctx context.Context, query string) (*Response, error) {
	traceID := uuid.NewString()
	requestID := uuid.NewString()
	start := time.Now()

	p, err := o.resolver.ResolveRaw(query)
	if err != nil {
		o.metrics.ObserveSearch("bad_request")
		return nil, tagIDs(err, traceID, requestID)
	}
	return o.run(ctx, p, traceID, requestID, start)
}

func (o *Orchestrator) run(ctx context.Context, p *plan.RetrievalPlan,
	traceID, requestID string, start time.Time) (*Response, error) {

	logger := o.logger.With(
		slog.String("trace_id", traceID),
		slog.String("request_id", requestID))

	pageKey := o.pageKey(p)
	if entry, ok := o.pageCache.GetEntry(pageKey); ok {
		o.metrics.ObserveCache("page", true)
		o.metrics.ObserveSearch("cache_hit")
		now := time.Now()
		resp := entry.Value
		resp.TraceID = traceID
		resp.RequestID = requestID
		resp.TookMs = time.Since(start).Milliseconds()
		resp.Cache.Hit = true
		resp.Cache.AgeMs = entry.Age(now).Milliseconds()
		resp.Cache.RemainingTTLMs = entry.RemainingTTL(now).Milliseconds()
		logger.Info("search served from page cache",
			slog.String("query", p.QueryText),
			slog.Int64("age_ms", resp.Cache.AgeMs))
		return &resp, nil
	}
	o.metrics.ObserveCache("page", false)

	// The declared budget is the request's hard deadline. Every stage,
	// rerun included, runs under it.
	deadline := start.Add(p.Budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	alloc := o.allocator.Allocate(p.Budget, p.Hint)
	results := o.runStages(ctx, p, alloc, nil)
	fused := o.fuse(p, results)

	outcome := outcomeFrom(results)
	outcome.ZeroResults, outcome.LowResults = o.quality.assess(len(fused), topScore(fused))

	appliedFallback := ""
	if decision := o.evaluator.Evaluate(p, outcome); decision != nil {
		appliedFallback = decision.Policy.ID
		o.metrics.ObserveFallback(string(decision.Policy.When))
		p = decision.NewPlan

		if len(decision.RerunStages) > 0 {
			// The rerun splits whatever is left of the original budget;
			// a fallback never extends the deadline.
			alloc = o.allocator.Allocate(time.Until(deadline), nil)
			rerun := o.runStages(ctx, p, alloc, decision.RerunStages)
			for stage, result := range rerun {
				results[stage] = result
			}
		}
		// Stages the mutated plan disabled drop out of fusion.
		for stage := range results {
			if stage != plan.StageRerank && !p.Enabled(stage) {
				results[stage] = retrieval.StageResult{
					Stage: stage, Status: retrieval.StatusSkipped, Note: "disabled by fallback",
				}
			}
		}
		fused = o.fuse(p, results)
	}

	lex, vec := results[plan.StageLexical], results[plan.StageVector]
	if !lex.Ran() && !vec.Ran() {
		o.metrics.ObserveSearch("exhausted")
		logger.Error("all retrieval stages failed",
			slog.String("lexical_status", string(lex.Status)),
			slog.String("vector_status", string(vec.Status)))
		return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeSearchExhausted,
			"no retrieval stage produced results", firstErr(lex.Err, vec.Err)).
			WithDetail("traceId", traceID).
			WithDetail("requestId", requestID)
	}

	window := enrichWindow(p, len(fused))
	docs := o.enrich(ctx, fused[:window], logger)

	materials := make([]grouping.Material, 0, window)
	for i, cand := range fused[:window] {
		materials = append(materials, materialFromDoc(cand.DocID, cand.Score, i+1, docs[cand.DocID]))
	}
	groups := o.grouper.Group(p.QueryText, materials)

	groupSizes := make(map[string]int, len(groups))
	for _, g := range groups {
		groupSizes[g.Canonical.ID] = g.Size()
	}

	items := make([]Item, 0, p.Size)
	for _, m := range o.grouper.Page(groups, p.Page, p.Size) {
		items = append(items, itemFromMaterial(m, docs[m.ID], groupSizes[m.ID]))
	}

	items, rerankResult := o.rerank(ctx, p, alloc, items)
	if rerankResult.Status != "" {
		results[plan.StageRerank] = rerankResult
		if rerankResult.Status == retrieval.StatusTimeout || rerankResult.Status == retrieval.StatusError {
			rerankOutcome := outcomeFrom(results)
			if decision := o.evaluator.Evaluate(p, rerankOutcome); decision != nil && appliedFallback == "" {
				appliedFallback = decision.Policy.ID
				o.metrics.ObserveFallback(string(decision.Policy.When))
			}
		}
	}

	resp := &Response{
		TraceID:   traceID,
		RequestID: requestID,
		Strategy:  strategy(results, appliedFallback),
		Total:     len(groups),
		Page:      p.Page,
		Size:      p.Size,
		TookMs:    time.Since(start).Milliseconds(),
		Items:     items,
		Cache:     CacheInfo{Hit: false, ETag: etag(items)},
	}
	if p.Debug {
		resp.Debug = o.debugInfo(p, results, appliedFallback)
	}

	for stage, r := range results {
		if r.Status != "" {
			o.metrics.ObserveStage(string(stage), string(r.Status), r.Elapsed)
		}
	}
	o.metrics.ObserveSearch("ok")
	logger.Info("search completed",
		slog.String("query", p.QueryText),
		slog.String("strategy", resp.Strategy),
		slog.Int("total", resp.Total),
		slog.Int("items", len(items)),
		slog.Int64("took_ms", resp.TookMs))

	o.pageCache.Put(pageKey, *resp)
	return resp, nil
}

// runStages executes the enabled retrieval stages concurrently, each
// under its own sub-budget. only restricts execution to a stage subset
// for fallback reruns; nil means all.
func (o *Orchestrator) runStages(ctx context.Context, p *plan.RetrievalPlan,
	alloc budget.Allocation, only []plan.Stage) map[plan.Stage]retrieval.StageResult {

	wanted := func(stage plan.Stage) bool {
		if only == nil {
			return true
		}
		for _, s := range only {
			if s == stage {
				return true
			}
		}
		return false
	}

	results := make(map[plan.Stage]retrieval.StageResult, len(o.retrievers))

	var runnable []plan.Stage
	for stage := range o.retrievers {
		if stage == plan.StageRerank || !wanted(stage) {
			continue
		}
		if !p.Enabled(stage) {
			results[stage] = retrieval.StageResult{
				Stage: stage, Status: retrieval.StatusSkipped, Note: "disabled by plan",
			}
			continue
		}
		runnable = append(runnable, stage)
	}

	slots := make([]retrieval.StageResult, len(runnable))
	g, ctx := errgroup.WithContext(ctx)
	for i, stage := range runnable {
		retriever := o.retrievers[stage]
		stageBudget := alloc.For(stage)
		g.Go(func() error {
			slots[i] = retriever.Run(ctx, p, stageBudget)
			return nil
		})
	}
	_ = g.Wait() // stage failures are statuses, never group errors

	for _, r := range slots {
		results[r.Stage] = r
	}
	return results
}

// fuse merges the two stage lists per the plan's fusion spec.
func (o *Orchestrator) fuse(p *plan.RetrievalPlan, results map[plan.Stage]retrieval.StageResult) []fusion.Candidate {
	return fusion.Fuse(
		results[plan.StageLexical].DocIDs,
		results[plan.StageVector].DocIDs,
		fusion.Config{
			Method:        fusion.Method(p.FusionMethod),
			K:             p.FusionK,
			LexicalWeight: p.LexicalWeight,
			VectorWeight:  p.VectorWeight,
		})
}

// enrich loads documents for the candidate window, detail cache first,
// then one batched backend fetch for the misses. Enrichment failure
// degrades the page (bare IDs) rather than failing the request.
func (o *Orchestrator) enrich(ctx context.Context, candidates []fusion.Candidate,
	logger *slog.Logger) map[string]backend.Document {

	docs := make(map[string]backend.Document, len(candidates))
	var missing []string
	for _, cand := range candidates {
		key := detailKey(cand.DocID)
		if doc, ok := o.detailCache.Get(key); ok {
			o.metrics.ObserveCache("detail", true)
			docs[cand.DocID] = doc
			continue
		}
		o.metrics.ObserveCache("detail", false)
		missing = append(missing, cand.DocID)
	}
	if len(missing) == 0 {
		return docs
	}

	fetched, err := o.index.FetchByIDs(ctx, missing)
	if err != nil {
		logger.Warn("enrichment fetch failed, serving bare results",
			slog.Int("missing", len(missing)),
			slog.String("error", err.Error()))
		return docs
	}
	for id, doc := range fetched {
		docs[id] = doc
		o.detailCache.Put(detailKey(id), doc)
	}
	return docs
}

// rerank runs the optional hook under the rerank sub-budget. A zero
// result means the hook was not configured or the plan disabled it.
func (o *Orchestrator) rerank(ctx context.Context, p *plan.RetrievalPlan,
	alloc budget.Allocation, items []Item) ([]Item, retrieval.StageResult) {

	if o.reranker == nil || !p.Enabled(plan.StageRerank) || len(items) == 0 {
		return items, retrieval.StageResult{}
	}

	start := time.Now()
	result := retrieval.StageResult{Stage: plan.StageRerank}

	rctx, cancel := context.WithTimeout(ctx, alloc.Rerank)
	defer cancel()

	reranked, err := o.reranker.Rerank(rctx, p.QueryText, items)
	result.Elapsed = time.Since(start)
	if err != nil {
		if rctx.Err() == context.DeadlineExceeded {
			result.Status = retrieval.StatusTimeout
		} else {
			result.Status = retrieval.StatusError
		}
		result.Err = err
		return items, result // keep the fused order
	}
	if len(reranked) != len(items) {
		result.Status = retrieval.StatusError
		result.Err = fmt.Errorf("reranker returned %d items, want %d", len(reranked), len(items))
		return items, result
	}
	for i := range reranked {
		reranked[i].Rank = items[i].Rank
	}
	result.Status = retrieval.StatusOK
	return reranked, result
}

func (o *Orchestrator) debugInfo(p *plan.RetrievalPlan,
	results map[plan.Stage]retrieval.StageResult, appliedFallback string) *DebugInfo {

	info := &DebugInfo{
		QueryTextSource:   p.TextSource,
		FusionMethod:      p.FusionMethod,
		AppliedFallbackID: appliedFallback,
	}
	for _, stage := range plan.Stages {
		r, ok := results[stage]
		if !ok || r.Status == "" {
			continue
		}
		info.Stages = append(info.Stages, StageDebug{
			Stage:     string(stage),
			Status:    string(r.Status),
			ElapsedMs: r.Elapsed.Milliseconds(),
			Hits:      len(r.DocIDs),
			DSL:       r.DSL,
			Note:      r.Note,
		})
	}
	return info
}

// pageKey identifies one result page for the page cache.
func (o *Orchestrator) pageKey(p *plan.RetrievalPlan) string {
	return cache.Key(map[string]any{
		"kind":    "page",
		"text":    p.QueryText,
		"source":  p.TextSource,
		"stages":  p.StageEnabled,
		"topK":    p.TopK,
		"filters": p.Filters,
		"fusion":  fmt.Sprintf("%s/%d/%g/%g", p.FusionMethod, p.FusionK, p.LexicalWeight, p.VectorWeight),
		"page":    p.Page,
		"size":    p.Size,
		// Fallbacks change what a replan can serve and debug changes the
		// response shape; neither may collapse onto another request's page.
		"fallbacks": p.Fallbacks,
		"debug":     p.Debug,
	})
}

func detailKey(id string) string {
	return cache.Key(map[string]any{"kind": "detail", "id": id})
}

// enrichWindow sizes the candidate prefix worth enriching: enough to
// fill the requested page after grouping collapses editions.
func enrichWindow(p *plan.RetrievalPlan, fusedLen int) int {
	window := p.Page * p.Size * 2
	if window > fusedLen {
		window = fusedLen
	}
	return window
}

func outcomeFrom(results map[plan.Stage]retrieval.StageResult) fallback.OutcomeSet {
	outcome := fallback.OutcomeSet{
		Timeouts: make(map[plan.Stage]bool),
		Errors:   make(map[plan.Stage]bool),
	}
	for stage, r := range results {
		switch r.Status {
		case retrieval.StatusTimeout:
			outcome.Timeouts[stage] = true
		case retrieval.StatusError:
			outcome.Errors[stage] = true
		}
	}
	return outcome
}

func topScore(fused []fusion.Candidate) float64 {
	if len(fused) == 0 {
		return 0
	}
	return fused[0].Score
}

func strategy(results map[plan.Stage]retrieval.StageResult, appliedFallback string) string {
	if appliedFallback != "" {
		return "fallback:" + appliedFallback
	}
	lexRan := results[plan.StageLexical].Ran()
	vecRan := results[plan.StageVector].Ran()
	switch {
	case lexRan && vecRan:
		return "hybrid"
	case lexRan:
		return "lexical"
	case vecRan:
		return "vector"
	default:
		return "none"
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// tagIDs attaches the request identifiers to a structured error.
func tagIDs(err error, traceID, requestID string) error {
	var ce *chaekkoerrors.ChaekkoError
	if errors.As(err, &ce) {
		return ce.WithDetail("traceId", traceID).WithDetail("requestId", requestID)
	}
	return err
}
