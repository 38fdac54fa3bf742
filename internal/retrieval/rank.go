package retrieval

import (
	"math"
	"sort"

	"github.com/manyfold-ai/manyfold/pkg/types"
)

// Normalize scales vec to unit L2 length in place and returns it. A zero
// vector is returned unchanged rather than producing NaN components.
//
// Different embedding backends produce vectors with very different norms;
// normalising both sides lets a plain dot product stand in for cosine
// similarity and removes cross-provider magnitude bias.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

// Dot returns the dot product of a and b over their common length. On
// unit-length inputs this equals cosine similarity.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Scored pairs one chunk with its source document for ranking.
type Scored struct {
	Content  string
	Vector   []float32
	Document *types.Document
}

// Rank scores every chunk against the query vector and returns results in
// descending score order. Both query and chunk vectors must already be
// normalised. The sort is stable, so equal scores keep document order, though
// callers must not rely on any particular tie-break.
func Rank(query []float32, chunks []Scored) []types.RetrievalResult {
	results := make([]types.RetrievalResult, len(chunks))
	for i, c := range chunks {
		results[i] = types.RetrievalResult{
			Content:  c.Content,
			Score:    Dot(query, c.Vector),
			Document: c.Document,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
