// Package weaviate adapts a Weaviate class to the backend.Index
// contract.
package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/plan"
)

// DefaultClass is the material class name in the shared schema.
const DefaultClass = "Material"

// defaultFetchFields are the properties loaded for enrichment.
var defaultFetchFields = []string{
	"materialId", "title", "author", "publisher", "publishYear",
	"editionLabel", "volume", "isbn", "materialType", "coverUrl",
}

// Config configures the adapter.
type Config struct {
	Class       string
	FetchFields []string
}

// Store runs retrieval against one Weaviate class.
type Store struct {
	client      *weaviate.Client
	class       string
	fetchFields []string
	logger      *slog.Logger
}

// New creates a store over an existing client.
func New(client *weaviate.Client, cfg Config, logger *slog.Logger) *Store {
	if cfg.Class == "" {
		cfg.Class = DefaultClass
	}
	if len(cfg.FetchFields) == 0 {
		cfg.FetchFields = defaultFetchFields
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		client:      client,
		class:       cfg.Class,
		fetchFields: cfg.FetchFields,
		logger:      logger,
	}
}

// SearchByQuery runs a BM25 query over the configured properties.
func (s *Store) SearchByQuery(ctx context.Context, q backend.TextQuery) (*backend.Result, error) {
	bm25 := s.client.GraphQL().Bm25ArgBuilder().WithQuery(q.Query)
	if props := boostedProperties(q.Fields, q.Boosts); len(props) > 0 {
		bm25 = bm25.WithProperties(props...)
	}

	builder := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(rankFields()...).
		WithBM25(bm25).
		WithLimit(q.TopK)

	if where := buildWhere(q.Filters); where != nil {
		builder = builder.WithWhere(where)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: bm25 query: %v", backend.ErrUnavailable, err)
	}
	result, err := s.parseRanked(resp)
	if err != nil {
		return nil, err
	}
	if q.Explain {
		result.DSL = fmt.Sprintf("bm25(query=%q, properties=%v, limit=%d)",
			q.Query, boostedProperties(q.Fields, q.Boosts), q.TopK)
	}
	return result, nil
}

// SearchByVector runs a nearVector query.
func (s *Store) SearchByVector(ctx context.Context, q backend.VectorQuery) (*backend.Result, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector)

	builder := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(certaintyFields()...).
		WithNearVector(nearVector).
		WithLimit(q.TopK)

	if where := buildWhere(q.Filters); where != nil {
		builder = builder.WithWhere(where)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: nearVector query: %v", backend.ErrUnavailable, err)
	}
	return s.parseRanked(resp)
}

// FetchByIDs loads full documents via a ContainsAny property filter on
// the material identifier. Weaviate object UUIDs are internal; IDs in
// the pipeline are always material IDs.
func (s *Store) FetchByIDs(ctx context.Context, ids []string) (map[string]backend.Document, error) {
	if len(ids) == 0 {
		return map[string]backend.Document{}, nil
	}

	where := filters.Where().
		WithPath([]string{"materialId"}).
		WithOperator(filters.ContainsAny).
		WithValueString(ids...)

	fields := make([]graphql.Field, 0, len(s.fetchFields))
	for _, f := range s.fetchFields {
		fields = append(fields, graphql.Field{Name: f})
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(len(ids)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch by ids: %v", backend.ErrUnavailable, err)
	}

	objects, err := s.classObjects(resp)
	if err != nil {
		return nil, err
	}
	docs := make(map[string]backend.Document, len(objects))
	for _, obj := range objects {
		doc := backend.Document(obj)
		if id := doc.ID(); id != "" {
			docs[id] = doc
		}
	}
	return docs, nil
}

// parseRanked extracts the aligned ID and score lists from a Get
// response. BM25 scores arrive as strings in _additional.
func (s *Store) parseRanked(resp *models.GraphQLResponse) (*backend.Result, error) {
	objects, err := s.classObjects(resp)
	if err != nil {
		return nil, err
	}

	result := &backend.Result{
		DocIDs: make([]string, 0, len(objects)),
		Scores: make([]float64, 0, len(objects)),
	}
	for _, obj := range objects {
		doc := backend.Document(obj)
		id := doc.ID()
		if id == "" {
			continue
		}
		result.DocIDs = append(result.DocIDs, id)
		result.Scores = append(result.Scores, additionalScore(obj))
	}
	return result, nil
}

// classObjects unwraps resp.Data["Get"][class] into property maps.
func (s *Store) classObjects(resp *models.GraphQLResponse) ([]map[string]any, error) {
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: %s", backend.ErrBadRequest, strings.Join(msgs, "; "))
	}

	get, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: response has no Get section", backend.ErrUnavailable)
	}
	raw, ok := get[s.class].([]any)
	if !ok {
		return []map[string]any{}, nil
	}

	objects := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

// additionalScore reads _additional.score (BM25, string-encoded) or
// _additional.certainty (vector, float) from one object.
func additionalScore(obj map[string]any) float64 {
	additional, ok := obj["_additional"].(map[string]any)
	if !ok {
		return 0
	}
	if raw, ok := additional["score"].(string); ok {
		if score, err := strconv.ParseFloat(raw, 64); err == nil {
			return score
		}
	}
	if certainty, ok := additional["certainty"].(float64); ok {
		return certainty
	}
	return 0
}

func rankFields() []graphql.Field {
	return []graphql.Field{
		{Name: "materialId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}
}

func certaintyFields() []graphql.Field {
	return []graphql.Field{
		{Name: "materialId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
}

// boostedProperties renders fields with their boosts in the
// "field^boost" property syntax.
func boostedProperties(fields []string, boosts map[string]float64) []string {
	props := make([]string, 0, len(fields))
	for _, f := range fields {
		if boost, ok := boosts[f]; ok && boost > 0 && boost != 1 {
			props = append(props, fmt.Sprintf("%s^%g", f, boost))
			continue
		}
		props = append(props, f)
	}
	return props
}

// operatorFor maps the closed filter operator set onto Weaviate's.
func operatorFor(op string) (filters.WhereOperator, bool) {
	switch op {
	case "eq":
		return filters.Equal, true
	case "ne":
		return filters.NotEqual, true
	case "gt":
		return filters.GreaterThan, true
	case "gte":
		return filters.GreaterThanEqual, true
	case "lt":
		return filters.LessThan, true
	case "lte":
		return filters.LessThanEqual, true
	case "in":
		return filters.ContainsAny, true
	case "like":
		return filters.Like, true
	default:
		return "", false
	}
}

// buildWhere renders filter groups as (clause AND clause) OR (…).
// Clauses with unmappable shapes are dropped; shape validation already
// happened at plan resolution.
func buildWhere(groups []plan.FilterGroup) *filters.WhereBuilder {
	groupBuilders := make([]*filters.WhereBuilder, 0, len(groups))
	for _, group := range groups {
		clauseBuilders := make([]*filters.WhereBuilder, 0, len(group))
		for _, clause := range group {
			if b := buildClause(clause); b != nil {
				clauseBuilders = append(clauseBuilders, b)
			}
		}
		switch len(clauseBuilders) {
		case 0:
		case 1:
			groupBuilders = append(groupBuilders, clauseBuilders[0])
		default:
			groupBuilders = append(groupBuilders, filters.Where().
				WithOperator(filters.And).
				WithOperands(clauseBuilders))
		}
	}

	switch len(groupBuilders) {
	case 0:
		return nil
	case 1:
		return groupBuilders[0]
	default:
		return filters.Where().
			WithOperator(filters.Or).
			WithOperands(groupBuilders)
	}
}

func buildClause(clause plan.FilterClause) *filters.WhereBuilder {
	op, ok := operatorFor(clause.Operator)
	if !ok {
		return nil
	}
	b := filters.Where().
		WithPath([]string{clause.Field}).
		WithOperator(op)

	switch v := clause.Value.(type) {
	case string:
		return b.WithValueString(v)
	case []string:
		return b.WithValueString(v...)
	case []any:
		strs := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				strs = append(strs, s)
			}
		}
		if len(strs) == 0 {
			return nil
		}
		return b.WithValueString(strs...)
	case int:
		return b.WithValueInt(int64(v))
	case int64:
		return b.WithValueInt(v)
	case float64:
		// JSON numbers decode as float64; treat integral values as ints
		// so year filters hit int-typed properties.
		if v == float64(int64(v)) {
			return b.WithValueInt(int64(v))
		}
		return b.WithValueNumber(v)
	case bool:
		return b.WithValueBoolean(v)
	default:
		return nil
	}
}
