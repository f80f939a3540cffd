package weaviate

import (
	"errors"
	"testing"

	"github.com/weaviate/weaviate/entities/models"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/plan"
)

func TestBoostedProperties(t *testing.T) {
	props := boostedProperties(
		[]string{"title", "author", "publisher"},
		map[string]float64{"title": 2, "publisher": 1},
	)

	want := []string{"title^2", "author", "publisher"}
	for i, p := range props {
		if p != want[i] {
			t.Errorf("props[%d] = %q, want %q", i, p, want[i])
		}
	}
}

func TestAdditionalScore(t *testing.T) {
	// BM25 score arrives string-encoded
	obj := map[string]any{"_additional": map[string]any{"score": "3.25"}}
	if got := additionalScore(obj); got != 3.25 {
		t.Errorf("bm25 score = %v, want 3.25", got)
	}

	// Vector certainty arrives as a float
	obj = map[string]any{"_additional": map[string]any{"certainty": 0.91}}
	if got := additionalScore(obj); got != 0.91 {
		t.Errorf("certainty = %v, want 0.91", got)
	}

	if got := additionalScore(map[string]any{}); got != 0 {
		t.Errorf("missing _additional should score 0, got %v", got)
	}
}

func TestParseRanked_AlignedLists(t *testing.T) {
	s := New(nil, Config{}, nil)
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]any{
				"Material": []any{
					map[string]any{"materialId": "M1", "_additional": map[string]any{"score": "2.0"}},
					map[string]any{"materialId": "M2", "_additional": map[string]any{"score": "1.5"}},
					map[string]any{"_additional": map[string]any{"score": "9.9"}}, // no id, dropped
				},
			},
		},
	}

	result, err := s.parseRanked(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.DocIDs) != 2 || result.DocIDs[0] != "M1" || result.DocIDs[1] != "M2" {
		t.Errorf("ids = %v", result.DocIDs)
	}
	if result.Scores[0] != 2.0 || result.Scores[1] != 1.5 {
		t.Errorf("scores = %v", result.Scores)
	}
}

func TestParseRanked_GraphQLErrorIsBadRequest(t *testing.T) {
	s := New(nil, Config{}, nil)
	resp := &models.GraphQLResponse{
		Errors: []*models.GraphQLError{{Message: "unknown property"}},
	}

	_, err := s.parseRanked(resp)
	if !errors.Is(err, backend.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestBuildWhere_GroupsAndOperators(t *testing.T) {
	if buildWhere(nil) != nil {
		t.Error("no groups must render no filter")
	}

	// A single valid clause renders a builder without AND/OR wrapping.
	w := buildWhere([]plan.FilterGroup{
		{{Field: "category", Operator: "eq", Value: "novel"}},
	})
	if w == nil {
		t.Fatal("single clause dropped")
	}

	// Multiple groups render (unknown operator clauses dropped silently).
	w = buildWhere([]plan.FilterGroup{
		{{Field: "category", Operator: "eq", Value: "novel"},
			{Field: "publishYear", Operator: "gte", Value: 2020}},
		{{Field: "materialType", Operator: "in", Value: []string{"book", "ebook"}}},
	})
	if w == nil {
		t.Fatal("multi-group filter dropped")
	}
}

func TestOperatorFor_ClosedSet(t *testing.T) {
	for _, op := range []string{"eq", "ne", "gt", "gte", "lt", "lte", "in", "like"} {
		if _, ok := operatorFor(op); !ok {
			t.Errorf("operator %q should map", op)
		}
	}
	if _, ok := operatorFor("matches"); ok {
		t.Error("unknown operator must not map")
	}
}
