// Package localindex is an in-process backend.Index over Bleve (lexical)
// and an HNSW graph (vector). It backs local development and the
// pipeline's end-to-end tests; production runs against the weaviate
// adapter.
package localindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/coder/hnsw"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/plan"
)

// Doc is one material to index.
type Doc struct {
	ID string
	// Fields is the stored document returned by FetchByIDs and matched
	// by filters.
	Fields map[string]any
	// SearchText maps lexical field name to its searchable text.
	SearchText map[string]string
	// Vector is the embedding; nil docs are invisible to vector search.
	Vector []float32
}

// Index is an in-memory hybrid index. Safe for concurrent use.
type Index struct {
	mu sync.RWMutex

	lexical bleve.Index
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	docs       map[string]backend.Document
	searchText map[string]map[string]string
}

// New creates an empty index.
func New() (*Index, error) {
	lexical, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance

	return &Index{
		lexical:    lexical,
		graph:      graph,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
		docs:       make(map[string]backend.Document),
		searchText: make(map[string]map[string]string),
	}, nil
}

// Add indexes documents. Re-adding an ID replaces it.
func (x *Index) Add(docs ...Doc) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	batch := x.lexical.NewBatch()
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document without id")
		}
		if err := batch.Index(doc.ID, doc.SearchText); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}

		stored := backend.Document{"materialId": doc.ID}
		for k, v := range doc.Fields {
			stored[k] = v
		}
		x.docs[doc.ID] = stored
		x.searchText[doc.ID] = doc.SearchText

		if doc.Vector != nil {
			if oldKey, exists := x.idMap[doc.ID]; exists {
				delete(x.keyMap, oldKey) // lazy delete, the node is orphaned
			}
			key := x.nextKey
			x.nextKey++
			vec := append([]float32(nil), doc.Vector...)
			normalize(vec)
			x.graph.Add(hnsw.MakeNode(key, vec))
			x.idMap[doc.ID] = key
			x.keyMap[key] = doc.ID
		}
	}
	if err := x.lexical.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// SearchByQuery implements backend.Index.
func (x *Index) SearchByQuery(ctx context.Context, q backend.TextQuery) (*backend.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	fields := q.Fields
	if len(fields) == 0 {
		fields = []string{"title", "author"}
	}

	if q.Mode == backend.ModeContains {
		return x.searchContains(q, fields)
	}

	disjuncts := make([]query.Query, 0, len(fields)*2)
	for _, field := range fields {
		match := bleve.NewMatchQuery(q.Query)
		match.SetField(field)
		if boost, ok := q.Boosts[field]; ok && boost > 0 {
			match.SetBoost(boost)
		}
		disjuncts = append(disjuncts, match)

		// Hangul queries index as whole tokens, so a term-level prefix
		// query is what makes "해리포터" reach "해리포터와".
		if q.Mode == backend.ModePhrasePrefix {
			prefix := bleve.NewPrefixQuery(strings.ToLower(q.Query))
			prefix.SetField(field)
			disjuncts = append(disjuncts, prefix)
		}
	}

	request := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(disjuncts...))
	request.Size = q.TopK + len(x.docs) // over-fetch, filters trim below

	hits, err := x.lexical.SearchInContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}

	result := &backend.Result{}
	for _, hit := range hits.Hits {
		if !x.matchesFilters(hit.ID, q.Filters) {
			continue
		}
		result.DocIDs = append(result.DocIDs, hit.ID)
		result.Scores = append(result.Scores, hit.Score)
		if len(result.DocIDs) == q.TopK {
			break
		}
	}
	if q.Explain {
		result.DSL = fmt.Sprintf("bleve(mode=%s, query=%q, fields=%v, topK=%d)",
			q.Mode, q.Query, fields, q.TopK)
	}
	return result, nil
}

// searchContains scans stored search text for a substring match. Linear,
// which is fine at local-index scale.
func (x *Index) searchContains(q backend.TextQuery, fields []string) (*backend.Result, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Query))
	if needle == "" {
		return &backend.Result{}, nil
	}

	type scored struct {
		id    string
		score float64
	}
	var matched []scored
	for id, texts := range x.searchText {
		if !x.matchesFilters(id, q.Filters) {
			continue
		}
		best := 0.0
		for _, field := range fields {
			text := strings.ToLower(texts[field])
			if text == "" || !strings.Contains(text, needle) {
				continue
			}
			// Shorter haystacks are tighter matches.
			score := float64(len(needle)) / float64(len(text))
			if score > best {
				best = score
			}
		}
		if best > 0 {
			matched = append(matched, scored{id: id, score: best})
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].id < matched[j].id
	})
	if q.TopK > 0 && len(matched) > q.TopK {
		matched = matched[:q.TopK]
	}

	result := &backend.Result{}
	for _, m := range matched {
		result.DocIDs = append(result.DocIDs, m.id)
		result.Scores = append(result.Scores, m.score)
	}
	return result, nil
}

// SearchByVector implements backend.Index.
func (x *Index) SearchByVector(ctx context.Context, q backend.VectorQuery) (*backend.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph.Len() == 0 {
		return &backend.Result{}, nil
	}

	query := append([]float32(nil), q.Vector...)
	normalize(query)

	// Over-fetch so post-filtering still fills topK.
	nodes := x.graph.Search(query, q.TopK+len(x.idMap))

	result := &backend.Result{}
	for _, node := range nodes {
		id, ok := x.keyMap[node.Key]
		if !ok {
			continue // orphaned by lazy delete
		}
		if !x.matchesFilters(id, q.Filters) {
			continue
		}
		distance := x.graph.Distance(query, node.Value)
		result.DocIDs = append(result.DocIDs, id)
		result.Scores = append(result.Scores, float64(1.0-distance/2.0))
		if len(result.DocIDs) == q.TopK {
			break
		}
	}
	return result, nil
}

// FetchByIDs implements backend.Index.
func (x *Index) FetchByIDs(ctx context.Context, ids []string) (map[string]backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	docs := make(map[string]backend.Document, len(ids))
	for _, id := range ids {
		if doc, ok := x.docs[id]; ok {
			docs[id] = doc
		}
	}
	return docs, nil
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Close releases the lexical index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.graph = nil
	return x.lexical.Close()
}

// matchesFilters evaluates filter groups against the stored document:
// clauses AND within a group, groups OR together.
func (x *Index) matchesFilters(id string, groups []plan.FilterGroup) bool {
	if len(groups) == 0 {
		return true
	}
	doc, ok := x.docs[id]
	if !ok {
		return false
	}
	for _, group := range groups {
		all := true
		for _, clause := range group {
			if !matchesClause(doc, clause) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func matchesClause(doc backend.Document, clause plan.FilterClause) bool {
	value, present := doc[clause.Field]
	if !present {
		return false
	}
	switch clause.Operator {
	case "eq":
		return equalValues(value, clause.Value)
	case "ne":
		return !equalValues(value, clause.Value)
	case "in":
		for _, candidate := range toSlice(clause.Value) {
			if equalValues(value, candidate) {
				return true
			}
		}
		return false
	case "like":
		want, _ := clause.Value.(string)
		got, _ := value.(string)
		return strings.Contains(strings.ToLower(got), strings.ToLower(strings.Trim(want, "*")))
	case "gt", "gte", "lt", "lte":
		a, aok := toFloat(value)
		b, bok := toFloat(clause.Value)
		if !aok || !bok {
			return false
		}
		switch clause.Operator {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toSlice(v any) []any {
	switch vs := v.(type) {
	case []any:
		return vs
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
