package segment

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	kmeansRestarts = 10
	kmeansMaxIter  = 300
)

// Partition is one k-means clustering of the factor scores. Labels are
// 0..k-1 and carry no meaning beyond the partition itself.
type Partition struct {
	K              int
	Labels         []int
	Inertia        float64
	MinClusterSize int
}

// Degenerate reports whether the partition has an empty or singleton
// cluster, which makes it invalid for model selection.
func (p Partition) Degenerate() bool {
	return p.MinClusterSize <= 1
}

// Cluster partitions the rows of X into k clusters with seeded k-means++
// initialization and Lloyd iterations. Deterministic: identical inputs and
// seed yield identical labels. The best of several restarts (by inertia)
// is returned.
func Cluster(X *mat.Dense, k int, seed int64) Partition {
	rng := rand.New(rand.NewSource(seed))

	best := Partition{K: k, Inertia: math.Inf(1)}
	for r := 0; r < kmeansRestarts; r++ {
		p := lloyd(X, k, rng)
		if p.Inertia < best.Inertia {
			best = p
		}
	}

	sizes := make([]int, k)
	for _, l := range best.Labels {
		sizes[l]++
	}
	best.MinClusterSize = sizes[0]
	for _, s := range sizes[1:] {
		if s < best.MinClusterSize {
			best.MinClusterSize = s
		}
	}
	return best
}

func lloyd(X *mat.Dense, k int, rng *rand.Rand) Partition {
	n, d := X.Dims()
	centers := initPlusPlus(X, k, rng)
	labels := make([]int, n)

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			l := nearestCenter(X.RawRowView(i), centers)
			if l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		// Recompute centers; an emptied cluster seizes the point farthest
		// from its own center so every requested index keeps a member.
		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, d)
		}
		for i := 0; i < n; i++ {
			floats.Add(next[labels[i]], X.RawRowView(i))
			counts[labels[i]]++
		}
		for c := 0; c < k; c++ {
			if counts[c] > 0 {
				continue
			}
			far := farthestPoint(X, labels, centers, counts)
			counts[labels[far]]--
			floats.Sub(next[labels[far]], X.RawRowView(far))
			labels[far] = c
			copy(next[c], X.RawRowView(far))
			counts[c] = 1
		}
		for c := 0; c < k; c++ {
			floats.Scale(1/float64(counts[c]), next[c])
			centers[c] = next[c]
		}
	}

	var inertia float64
	for i := 0; i < n; i++ {
		inertia += sqDist(X.RawRowView(i), centers[labels[i]])
	}
	return Partition{K: k, Labels: labels, Inertia: inertia}
}

// initPlusPlus seeds centers with the k-means++ scheme: first uniform,
// then proportional to squared distance from the nearest chosen center.
func initPlusPlus(X *mat.Dense, k int, rng *rand.Rand) [][]float64 {
	n, d := X.Dims()
	centers := make([][]float64, 0, k)

	first := make([]float64, d)
	copy(first, X.RawRowView(rng.Intn(n)))
	centers = append(centers, first)

	dists := make([]float64, n)
	for len(centers) < k {
		var total float64
		for i := 0; i < n; i++ {
			dists[i] = sqDist(X.RawRowView(i), centers[0])
			for _, c := range centers[1:] {
				if v := sqDist(X.RawRowView(i), c); v < dists[i] {
					dists[i] = v
				}
			}
			total += dists[i]
		}
		var idx int
		if total == 0 {
			idx = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			for ; idx < n-1 && target > dists[idx]; idx++ {
				target -= dists[idx]
			}
		}
		c := make([]float64, d)
		copy(c, X.RawRowView(idx))
		centers = append(centers, c)
	}
	return centers
}

func nearestCenter(x []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(x, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// farthestPoint finds the member of a multi-point cluster farthest from
// its own center, as a donor for an emptied cluster.
func farthestPoint(X *mat.Dense, labels []int, centers [][]float64, counts []int) int {
	n, _ := X.Dims()
	best, bestDist := 0, -1.0
	for i := 0; i < n; i++ {
		if counts[labels[i]] < 2 {
			continue
		}
		if d := sqDist(X.RawRowView(i), centers[labels[i]]); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
