package vector_test

import (
	"math"
	"testing"

	"github.com/alan-mat/vectra/internal/vector"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 2}, []float32{2, 4}, 1},
		{"empty", nil, nil, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := vector.CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.expected)) > 1e-6 {
				t.Errorf("got %f, expected %f", got, tt.expected)
			}
		})
	}
}

// mmrQuery sits between "a" and "a2" (near-duplicates of each other)
// and "c", which is less relevant but far from both.
var mmrQuery = []float32{1, 1, 0}

func mmrCandidates() []*vector.ScoredPoint {
	return []*vector.ScoredPoint{
		{ID: "a", Vector: []float32{1, 0.9, 0}},
		{ID: "a2", Vector: []float32{1, 0.85, 0}},
		{ID: "b", Vector: []float32{0, 0, 1}},
		{ID: "c", Vector: []float32{0.2, 1, 0}},
	}
}

func TestMaxMarginalRelevancePureRelevance(t *testing.T) {
	query := mmrQuery
	got := vector.MaxMarginalRelevance(query, mmrCandidates(), 1, 2)

	if len(got) != 2 {
		t.Fatalf("got %d points, expected 2", len(got))
	}
	// Lambda 1 ignores diversity, so the two near-duplicates win.
	if got[0].ID != "a" || got[1].ID != "a2" {
		t.Errorf("got %s, %s, expected a, a2", got[0].ID, got[1].ID)
	}
}

func TestMaxMarginalRelevanceDiversity(t *testing.T) {
	query := mmrQuery
	got := vector.MaxMarginalRelevance(query, mmrCandidates(), 0.5, 2)

	if len(got) != 2 {
		t.Fatalf("got %d points, expected 2", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("got first pick %s, expected a", got[0].ID)
	}
	// The near-duplicate of "a" must be penalized away.
	if got[1].ID == "a2" {
		t.Error("diversity pick selected a near-duplicate")
	}
}

func TestMaxMarginalRelevanceClampsK(t *testing.T) {
	query := mmrQuery

	candidates := mmrCandidates()
	got := vector.MaxMarginalRelevance(query, candidates, 0.5, 100)
	if len(got) != len(candidates) {
		t.Fatalf("got %d points, expected %d", len(got), len(candidates))
	}
	// With every candidate selected there is nothing to reorder for,
	// so the relevance order must survive.
	for i := range candidates {
		if got[i].ID != candidates[i].ID {
			t.Errorf("position %d: got %s, expected %s", i, got[i].ID, candidates[i].ID)
		}
	}

	if got := vector.MaxMarginalRelevance(query, mmrCandidates(), 0.5, 0); got != nil {
		t.Errorf("got %d points for k=0, expected none", len(got))
	}

	if got := vector.MaxMarginalRelevance(query, nil, 0.5, 3); got != nil {
		t.Errorf("got %d points for no candidates, expected none", len(got))
	}
}

func TestMaxMarginalRelevanceClampsLambda(t *testing.T) {
	query := mmrQuery

	// Out-of-range lambdas behave like their clamped values.
	high := vector.MaxMarginalRelevance(query, mmrCandidates(), 5, 2)
	pure := vector.MaxMarginalRelevance(query, mmrCandidates(), 1, 2)
	for i := range pure {
		if high[i].ID != pure[i].ID {
			t.Errorf("lambda above 1 not clamped: got %s, expected %s", high[i].ID, pure[i].ID)
		}
	}

	low := vector.MaxMarginalRelevance(query, mmrCandidates(), -3, 2)
	zero := vector.MaxMarginalRelevance(query, mmrCandidates(), 0, 2)
	for i := range zero {
		if low[i].ID != zero[i].ID {
			t.Errorf("lambda below 0 not clamped: got %s, expected %s", low[i].ID, zero[i].ID)
		}
	}
}
