package fusion

import (
	"math"
	"testing"
)

const eps = 1e-12

func TestFuse_RRFScores(t *testing.T) {
	// Given: a document ranked 1st lexically and 2nd by vector
	lexical := []string{"doc-a", "doc-b"}
	vector := []string{"doc-c", "doc-a"}

	// When: fusing with k=60
	fused := Fuse(lexical, vector, Config{K: 60})

	// Then: doc-a accumulates both reciprocal contributions and wins
	if fused[0].DocID != "doc-a" {
		t.Fatalf("top = %s, want doc-a", fused[0].DocID)
	}
	want := 1.0/61 + 1.0/62
	if math.Abs(fused[0].Score-want) > eps {
		t.Errorf("score = %v, want %v", fused[0].Score, want)
	}
	if !fused[0].InBoth() {
		t.Error("doc-a appeared in both lists")
	}
}

func TestFuse_SingleListDocKeepsNilRank(t *testing.T) {
	fused := Fuse([]string{"only-lex"}, []string{"only-vec"}, Config{})

	for _, c := range fused {
		switch c.DocID {
		case "only-lex":
			if c.LexicalRank == nil || *c.LexicalRank != 1 || c.VectorRank != nil {
				t.Errorf("only-lex ranks wrong: %+v", c)
			}
		case "only-vec":
			if c.VectorRank == nil || *c.VectorRank != 1 || c.LexicalRank != nil {
				t.Errorf("only-vec ranks wrong: %+v", c)
			}
		}
	}
}

func TestFuse_TieBreakIsDeterministic(t *testing.T) {
	// Same rank in opposite stages gives identical scores; the lexical
	// rank comparison (absent last) must break the tie the same way on
	// every run.
	fused := Fuse([]string{"zz"}, []string{"aa"}, Config{})

	if fused[0].DocID != "zz" || fused[1].DocID != "aa" {
		t.Errorf("tie-break order = [%s %s], want [zz aa]", fused[0].DocID, fused[1].DocID)
	}

	// Pure ID tie-break when both rank vectors match.
	fused = Fuse([]string{"bb", "aa"}, nil, Config{})
	if fused[0].DocID != "bb" {
		t.Errorf("rank 1 must sort before rank 2, got %s first", fused[0].DocID)
	}
}

func TestFuse_WeightedFavorsHeavierStage(t *testing.T) {
	cfg := Config{Method: MethodWeighted, K: 60, LexicalWeight: 0.8, VectorWeight: 0.2}

	fused := Fuse([]string{"lex-top"}, []string{"vec-top"}, cfg)

	if fused[0].DocID != "lex-top" {
		t.Fatalf("top = %s, want lex-top with 0.8 weight", fused[0].DocID)
	}
	want := 0.8 / 61
	if math.Abs(fused[0].Score-want) > eps {
		t.Errorf("score = %v, want %v", fused[0].Score, want)
	}
}

func TestFuse_DuplicateIDKeepsFirstRank(t *testing.T) {
	fused := Fuse([]string{"dup", "other", "dup"}, nil, Config{K: 60})

	var dup Candidate
	for _, c := range fused {
		if c.DocID == "dup" {
			dup = c
		}
	}
	if dup.LexicalRank == nil || *dup.LexicalRank != 1 {
		t.Fatalf("duplicate must keep rank 1, got %+v", dup.LexicalRank)
	}
	want := 1.0 / 61
	if math.Abs(dup.Score-want) > eps {
		t.Errorf("duplicate scored twice: %v, want %v", dup.Score, want)
	}
}

func TestFuse_EmptyInputs(t *testing.T) {
	if got := Fuse(nil, nil, Config{}); len(got) != 0 {
		t.Errorf("fusing nothing returned %d candidates", len(got))
	}
}
