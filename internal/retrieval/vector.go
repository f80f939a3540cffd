package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/breaker"
	"github.com/chaekko/chaekko/internal/cache"
	"github.com/chaekko/chaekko/internal/embedding"
	"github.com/chaekko/chaekko/internal/plan"
)

// rankedList is what the vector-result cache stores: the promoted,
// material-level list for one (text, model, topK, filters) tuple.
type rankedList struct {
	DocIDs []string
	Scores []float64
}

// Vector runs semantic retrieval: embed the query, search the index,
// promote chunk hits to materials.
type Vector struct {
	index    backend.Index
	embedder embedding.Provider
	breaker  *breaker.Breaker
	cache    *cache.TTLCache[rankedList]
	logger   *slog.Logger
}

// NewVector creates the vector retriever. The breaker fences the
// embedding provider only; index errors fail the stage without
// counting against it. Cache may be disabled via its config.
func NewVector(index backend.Index, embedder embedding.Provider, brk *breaker.Breaker,
	cacheCfg cache.Config, logger *slog.Logger) *Vector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Vector{
		index:    index,
		embedder: embedder,
		breaker:  brk,
		cache:    cache.New[rankedList](cacheCfg),
		logger:   logger,
	}
}

// Stage implements Retriever.
func (v *Vector) Stage() plan.Stage { return plan.StageVector }

// Run implements Retriever.
func (v *Vector) Run(ctx context.Context, p *plan.RetrievalPlan, budget time.Duration) StageResult {
	start := time.Now()
	result := StageResult{Stage: plan.StageVector}

	text := strings.TrimSpace(p.QueryText)
	if text == "" {
		result.Status = StatusEmpty
		result.Elapsed = time.Since(start)
		return result
	}

	topK := p.TopK[plan.StageVector]
	if topK <= 0 {
		result.Status = StatusEmpty
		result.Elapsed = time.Since(start)
		return result
	}

	// Cache first: a warm entry is servable even while the circuit is open.
	key := v.cacheKey(text, p)
	if cached, ok := v.cache.Get(key); ok {
		result.DocIDs, result.Scores = cached.DocIDs, cached.Scores
		result.Status = statusForList(cached.DocIDs)
		result.Note = "served from vector-result cache"
		result.Elapsed = time.Since(start)
		return result
	}

	if v.breaker != nil && !v.breaker.Allow() {
		result.Status = StatusSkipped
		result.Note = "circuit open"
		result.Elapsed = time.Since(start)
		v.logger.Debug("vector stage skipped, circuit open")
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	vec, err := v.embedder.Embed(ctx, text)
	if err != nil {
		if v.breaker != nil {
			v.breaker.RecordFailure()
		}
		return v.fail(ctx, result, start, "embed query", err)
	}
	if v.breaker != nil {
		v.breaker.RecordSuccess()
	}

	hits, err := v.index.SearchByVector(ctx, backend.VectorQuery{
		Vector:  vec,
		TopK:    topK,
		Filters: p.Filters,
	})
	if err != nil {
		return v.fail(ctx, result, start, "vector search", err)
	}

	result.DocIDs, result.Scores = Promote(hits.DocIDs, hits.Scores)
	result.Status = statusForList(result.DocIDs)
	result.Elapsed = time.Since(start)

	// Cache the promoted list, not the raw chunk hits: every consumer
	// wants material level, and promotion is deterministic.
	v.cache.Put(key, rankedList{DocIDs: result.DocIDs, Scores: result.Scores})
	return result
}

func (v *Vector) fail(ctx context.Context, result StageResult, start time.Time, op string, err error) StageResult {
	result.Status, result.Err = classify(ctx, err)
	result.Elapsed = time.Since(start)
	v.logger.Warn("vector stage failed",
		slog.String("op", op),
		slog.String("status", string(result.Status)),
		slog.String("error", err.Error()))
	return result
}

func (v *Vector) cacheKey(text string, p *plan.RetrievalPlan) string {
	return cache.Key(map[string]any{
		"kind":    "vector-result",
		"mode":    "nearVector",
		"text":    text,
		"model":   v.embedder.ModelName(),
		"topK":    p.TopK[plan.StageVector],
		"filters": p.Filters,
	})
}

func statusForList(ids []string) Status {
	if len(ids) == 0 {
		return StatusEmpty
	}
	return StatusOK
}

// CachePurge drops all cached vector results. Exposed for admin reload
// paths where the index contents changed underneath the cache.
func (v *Vector) CachePurge() { v.cache.Purge() }
