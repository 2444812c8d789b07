package vector

import "math"

// CosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either vector is empty or zero-length.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// MaxMarginalRelevance reorders candidates to balance relevance to the
// query against diversity among the selected points, returning at most k
// points. Lambda 1 is pure relevance, lambda 0 pure diversity; values
// outside [0,1] are clamped. Candidates must carry their vectors.
// When k covers every candidate nothing competes for a slot, so the
// input is returned unchanged in its relevance order.
func MaxMarginalRelevance(query []float32, candidates []*ScoredPoint, lambda float32, k int) []*ScoredPoint {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k >= len(candidates) {
		return candidates
	}

	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	relevance := make([]float32, len(candidates))
	for i, c := range candidates {
		relevance[i] = CosineSimilarity(query, c.Vector)
	}

	selected := make([]*ScoredPoint, 0, k)
	picked := make([]bool, len(candidates))

	for len(selected) < k {
		best := -1
		bestScore := float32(math.Inf(-1))

		for i, c := range candidates {
			if picked[i] {
				continue
			}

			redundancy := float32(0)
			for _, s := range selected {
				if sim := CosineSimilarity(c.Vector, s.Vector); sim > redundancy {
					redundancy = sim
				}
			}

			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				best = i
			}
		}

		if best < 0 {
			break
		}
		picked[best] = true
		selected = append(selected, candidates[best])
	}

	return selected
}
