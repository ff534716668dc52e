package app

import (
	"math"

	"review_dashboard/internal/domain"
)

// ComputeStats groups reviews by listing in first-seen order. Only reviews with a
// nonzero rating contribute to the average and the count.
func ComputeStats(reviews []domain.Review) []domain.PropertyStats {
	type acc struct {
		sum   float64
		count int
	}
	order := make([]string, 0, 8)
	groups := make(map[string]*acc, 8)

	for _, r := range reviews {
		g, ok := groups[r.Listing]
		if !ok {
			g = &acc{}
			groups[r.Listing] = g
			order = append(order, r.Listing)
		}
		if rated(r) {
			g.sum += *r.Rating
			g.count++
		}
	}

	out := make([]domain.PropertyStats, 0, len(order))
	for _, l := range order {
		g := groups[l]
		avg := 0.0
		if g.count > 0 {
			avg = g.sum / float64(g.count)
		}
		out = append(out, domain.PropertyStats{Listing: l, AverageRating: avg, ReviewCount: g.count})
	}
	return out
}

func rated(r domain.Review) bool {
	return r.Rating != nil && *r.Rating != 0 && !math.IsNaN(*r.Rating)
}
