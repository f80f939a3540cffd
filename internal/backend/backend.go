// Package backend defines the search-index contract the retrieval
// stages run against. Adapters live in subpackages; the pipeline only
// ever sees this interface.
package backend

import (
	"context"
	"errors"

	"github.com/chaekko/chaekko/internal/plan"
)

// Sentinel errors adapters translate backend failures into. The
// pipeline classifies stage outcomes by these, never by backend-native
// error types.
var (
	// ErrUnavailable means the index could not be reached or refused
	// the request for operational reasons. Retryable.
	ErrUnavailable = errors.New("search backend unavailable")
	// ErrBadRequest means the index rejected the query as malformed.
	// Not retryable; the caller built a bad query.
	ErrBadRequest = errors.New("search backend rejected query")
)

// TextMode selects how the lexical query matches fields.
type TextMode string

const (
	// ModeBestFields scores each field independently and takes the best.
	ModeBestFields TextMode = "best_fields"
	// ModePhrasePrefix matches the query as a phrase with a trailing
	// prefix term, for type-ahead style queries.
	ModePhrasePrefix TextMode = "phrase_prefix"
	// ModeContains matches documents whose field contains the query as
	// a substring. Used by the short-query re-probe.
	ModeContains TextMode = "contains"
)

// TextQuery is one lexical retrieval request.
type TextQuery struct {
	Query   string
	Fields  []string
	Boosts  map[string]float64
	Mode    TextMode
	TopK    int
	Filters []plan.FilterGroup
	Explain bool
}

// VectorQuery is one semantic retrieval request.
type VectorQuery struct {
	Vector  []float32
	TopK    int
	Filters []plan.FilterGroup
}

// Result is a ranked ID list with aligned scores. DSL carries the
// backend-native query rendering when Explain was requested.
type Result struct {
	DocIDs []string
	Scores []float64
	DSL    string
}

// Document is one enriched hit as stored in the index.
type Document map[string]any

// ID returns the document's identifier field, if present.
func (d Document) ID() string {
	if id, ok := d["materialId"].(string); ok {
		return id
	}
	return ""
}

// Str returns a string field, or "" when absent or not a string.
func (d Document) Str(field string) string {
	s, _ := d[field].(string)
	return s
}

// Index is the retrieval contract. Implementations must honor ctx
// deadlines on every call and be safe for concurrent use.
type Index interface {
	// SearchByQuery runs lexical retrieval.
	SearchByQuery(ctx context.Context, q TextQuery) (*Result, error)
	// SearchByVector runs semantic retrieval.
	SearchByVector(ctx context.Context, q VectorQuery) (*Result, error)
	// FetchByIDs loads full documents for enrichment. Missing IDs are
	// silently absent from the returned map.
	FetchByIDs(ctx context.Context, ids []string) (map[string]Document, error)
}
