// Package fusion merges ranked document lists from independent retrieval
// stages into a single ordering.
//
// Both methods are rank-based: raw stage scores are never compared across
// stages because lexical and vector scores live on incompatible scales.
package fusion

import (
	"sort"
)

// DefaultK is the standard reciprocal-rank-fusion constant.
const DefaultK = 60

// Method selects the fusion formula.
type Method string

const (
	// MethodRRF is plain reciprocal rank fusion: score = Σ 1/(k+rank).
	MethodRRF Method = "rrf"
	// MethodWeighted applies per-stage weights: score = Σ w·1/(k+rank).
	MethodWeighted Method = "weighted"
)

// Config parameterizes a fusion pass.
type Config struct {
	Method        Method
	K             int
	LexicalWeight float64
	VectorWeight  float64
}

func (c Config) fill() Config {
	if c.Method == "" {
		c.Method = MethodRRF
	}
	if c.K <= 0 {
		c.K = DefaultK
	}
	if c.LexicalWeight <= 0 {
		c.LexicalWeight = 1.0
	}
	if c.VectorWeight <= 0 {
		c.VectorWeight = 1.0
	}
	return c
}

// Candidate is one fused document with its provenance. Rank pointers are
// nil when the document did not appear in that stage's list.
type Candidate struct {
	DocID       string
	Score       float64
	LexicalRank *int
	VectorRank  *int
}

// InBoth reports whether the document appeared in both stage lists.
func (c Candidate) InBoth() bool {
	return c.LexicalRank != nil && c.VectorRank != nil
}

// Fuse merges the two ranked ID lists. Ranks are 1-based positions in the
// input slices; duplicate IDs within one list keep their first position.
//
// Ordering is fully deterministic: fused score descending, then lexical
// rank ascending (absent last), then vector rank ascending (absent last),
// then document ID ascending.
func Fuse(lexical, vector []string, cfg Config) []Candidate {
	cfg = cfg.fill()

	lexWeight, vecWeight := 1.0, 1.0
	if cfg.Method == MethodWeighted {
		lexWeight, vecWeight = cfg.LexicalWeight, cfg.VectorWeight
	}

	byID := make(map[string]*Candidate, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))

	add := func(id string) *Candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &Candidate{DocID: id}
		byID[id] = c
		order = append(order, id)
		return c
	}

	for i, id := range lexical {
		c := add(id)
		if c.LexicalRank != nil {
			continue // duplicate within the list, first rank wins
		}
		rank := i + 1
		c.LexicalRank = &rank
		c.Score += lexWeight / float64(cfg.K+rank)
	}
	for i, id := range vector {
		c := add(id)
		if c.VectorRank != nil {
			continue
		}
		rank := i + 1
		c.VectorRank = &rank
		c.Score += vecWeight / float64(cfg.K+rank)
	}

	fused := make([]Candidate, 0, len(order))
	for _, id := range order {
		fused = append(fused, *byID[id])
	}

	sort.SliceStable(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if r := compareRank(a.LexicalRank, b.LexicalRank); r != 0 {
			return r < 0
		}
		if r := compareRank(a.VectorRank, b.VectorRank); r != 0 {
			return r < 0
		}
		return a.DocID < b.DocID
	})

	return fused
}

// compareRank orders present ranks ascending and sorts absent ranks last.
func compareRank(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}
