package retrieval

import (
	"math"
	"testing"

	"github.com/manyfold-ai/manyfold/pkg/types"
)

func TestNormalize(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("Normalize: got %v, want [0.6 0.8]", vec)
	}

	var length float64
	for _, v := range vec {
		length += float64(v) * float64(v)
	}
	if math.Abs(length-1) > 1e-6 {
		t.Errorf("normalised length²: got %v, want 1", length)
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	vec := Normalize([]float32{0, 0, 0})
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("component %d: got %v, want 0", i, v)
		}
	}
}

func TestDot(t *testing.T) {
	if got := Dot([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("parallel: got %v, want 1", got)
	}
	if got := Dot([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal: got %v, want 0", got)
	}
	if got := Dot([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite: got %v, want -1", got)
	}
	// Mismatched lengths score over the common prefix.
	if got := Dot([]float32{1, 1, 1}, []float32{1}); math.Abs(got-1) > 1e-9 {
		t.Errorf("mismatched lengths: got %v, want 1", got)
	}
}

func TestRank_DescendingOrderWithAliasedDocuments(t *testing.T) {
	docLow := &types.Document{Content: "low"}
	docHigh := &types.Document{Content: "high"}
	docMid := &types.Document{Content: "mid"}

	query := Normalize([]float32{1, 0})
	results := Rank(query, []Scored{
		{Content: "low", Vector: Normalize([]float32{0, 1}), Document: docLow},
		{Content: "high", Vector: Normalize([]float32{1, 0}), Document: docHigh},
		{Content: "mid", Vector: Normalize([]float32{1, 1}), Document: docMid},
	})

	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}
	for i, want := range []string{"high", "mid", "low"} {
		if results[i].Content != want {
			t.Errorf("result %d: got %q, want %q", i, results[i].Content, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at %d: %v > %v", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].Document != docHigh {
		t.Error("top result does not alias its document")
	}
}

func TestRank_StableForEqualScores(t *testing.T) {
	query := []float32{1, 0}
	unit := []float32{1, 0}
	results := Rank(query, []Scored{
		{Content: "first", Vector: unit},
		{Content: "second", Vector: unit},
	})
	if results[0].Content != "first" || results[1].Content != "second" {
		t.Errorf("equal scores reordered: %v, %v", results[0].Content, results[1].Content)
	}
}
