package segment

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Silhouette computes the mean silhouette coefficient of a partition,
// a separation/cohesion score in [-1, 1]. Higher is better. Points in
// singleton clusters score zero.
func Silhouette(X *mat.Dense, labels []int, k int) float64 {
	n, _ := X.Dims()
	if n < 2 || k < 2 {
		return 0
	}

	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}

	var total float64
	sums := make([]float64, k)
	for i := 0; i < n; i++ {
		for c := range sums {
			sums[c] = 0
		}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sums[labels[j]] += floats.Distance(X.RawRowView(i), X.RawRowView(j), 2)
		}

		own := labels[i]
		if sizes[own] < 2 {
			continue // silhouette of a singleton is defined as 0
		}
		a := sums[own] / float64(sizes[own]-1)

		b := -1.0
		for c := 0; c < k; c++ {
			if c == own || sizes[c] == 0 {
				continue
			}
			if mean := sums[c] / float64(sizes[c]); b < 0 || mean < b {
				b = mean
			}
		}
		if b < 0 {
			continue
		}

		if denom := max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}
