package segment

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// CandidateK is one trial cluster count with its quality score. The full
// candidate table is surfaced for audit and logging.
type CandidateK struct {
	K          int     `json:"k"`
	Silhouette float64 `json:"silhouette"`
	Degenerate bool    `json:"degenerate"`
}

// SelectK sweeps cluster counts in [kMin, kMax], scores each candidate
// partition with the silhouette coefficient, and picks the best.
//
// The effective maximum is additionally capped at one cluster per ten
// clients (never below kMin). Candidate fits are independent and evaluated
// concurrently; the reduction is deterministic regardless of completion
// order, with ties broken toward the smaller k. Returns
// ErrDegenerateClustering when every candidate yields an empty or
// singleton cluster.
func SelectK(ctx context.Context, X *mat.Dense, kMin, kMax int, seed int64) (CandidateK, []CandidateK, error) {
	n, _ := X.Dims()
	effMax := kMax
	if limit := n / 10; limit < effMax {
		effMax = limit
	}
	if effMax < kMin {
		effMax = kMin
	}

	table := make([]CandidateK, effMax-kMin+1)
	g, ctx := errgroup.WithContext(ctx)
	for k := kMin; k <= effMax; k++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			part := Cluster(X, k, seed)
			cand := CandidateK{K: k, Degenerate: part.Degenerate()}
			if !cand.Degenerate {
				cand.Silhouette = Silhouette(X, part.Labels, k)
			}
			table[k-kMin] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CandidateK{}, nil, err
	}

	best, ok := pickBest(table)
	if !ok {
		return CandidateK{}, table, fmt.Errorf("%w: no candidate k in [%d,%d] yields a valid partition",
			ErrDegenerateClustering, kMin, effMax)
	}
	return best, table, nil
}

// pickBest reduces a candidate table deterministically: ascending k, a
// strictly better score wins, so equal scores keep the smaller (simpler)
// model. Degenerate candidates are ineligible. Returns
// false when no candidate is valid.
func pickBest(table []CandidateK) (CandidateK, bool) {
	best := CandidateK{K: -1}
	for _, cand := range table {
		if cand.Degenerate {
			continue
		}
		if best.K < 0 || cand.Silhouette > best.Silhouette {
			best = cand
		}
	}
	return best, best.K >= 0
}
