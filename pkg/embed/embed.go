// Package embed ranks caller-supplied context items against the user input so
// a session can keep only the most relevant ones in the prompt.
package embed

import (
	"context"
	"math"
	"sort"
)

// Embedder maps text into a vector space. Queries and passages may use
// different prefixes underneath; callers just pick the right method.
type Embedder interface {
	Embed(ctx context.Context, query string) ([]float32, error)
	EmbedPassages(ctx context.Context, passages []string) ([][]float32, error)
	Dim() int
	Close() error
}

// Ranked is one passage with its similarity to the query.
type Ranked struct {
	Index int
	Score float64
}

// Rank orders passages by cosine similarity to the query, most similar first.
// Index points back into the input slice.
func Rank(ctx context.Context, e Embedder, query string, passages []string) ([]Ranked, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	qv, err := e.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	pvs, err := e.EmbedPassages(ctx, passages)
	if err != nil {
		return nil, err
	}

	ranked := make([]Ranked, len(pvs))
	for i, pv := range pvs {
		ranked[i] = Ranked{Index: i, Score: Cosine(qv, pv)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

// Cosine is the cosine similarity of two vectors. Mismatched or zero-length
// vectors score zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
