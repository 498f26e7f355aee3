package embed

import (
	"context"
	"math"
	"strings"
	"testing"
)

// wordEmbedder maps text onto a fixed vocabulary axis per word, enough to
// exercise ranking without a model download.
type wordEmbedder struct {
	vocab []string
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(e.vocab))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		for i, known := range e.vocab {
			if w == known {
				v[i]++
			}
		}
	}
	return v
}

func (e *wordEmbedder) Embed(_ context.Context, q string) ([]float32, error) {
	return e.vector(q), nil
}

func (e *wordEmbedder) EmbedPassages(_ context.Context, ps []string) ([][]float32, error) {
	out := make([][]float32, len(ps))
	for i, p := range ps {
		out[i] = e.vector(p)
	}
	return out, nil
}

func (e *wordEmbedder) Dim() int     { return len(e.vocab) }
func (e *wordEmbedder) Close() error { return nil }

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors: got %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Fatalf("mismatched lengths should score zero, got %v", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Fatalf("empty vectors should score zero, got %v", got)
	}
}

func TestRankOrdersByRelevance(t *testing.T) {
	e := &wordEmbedder{vocab: []string{"weather", "lisbon", "stocks", "recipe"}}
	passages := []string{
		"a recipe for bread",
		"weather report for lisbon",
		"stocks closed higher",
	}
	ranked, err := Rank(context.Background(), e, "weather in lisbon", passages)
	if err != nil {
		t.Fatalf("Rank returned error: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ranked))
	}
	if ranked[0].Index != 1 {
		t.Fatalf("expected the weather passage first, got index %d", ranked[0].Index)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Fatalf("scores not descending: %v", ranked)
	}
}

func TestRankEmpty(t *testing.T) {
	ranked, err := Rank(context.Background(), &wordEmbedder{vocab: []string{"x"}}, "q", nil)
	if err != nil || ranked != nil {
		t.Fatalf("expected nil, nil for no passages, got %v, %v", ranked, err)
	}
}
