package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSelectKFindsBlobCount(t *testing.T) {
	X, _ := blobs(120, 3, 21)
	best, table, err := SelectK(context.Background(), X, 2, 6, 42)
	require.NoError(t, err)

	assert.Equal(t, 3, best.K)
	assert.GreaterOrEqual(t, best.Silhouette, -1.0)
	assert.LessOrEqual(t, best.Silhouette, 1.0)

	require.Len(t, table, 5, "every candidate k in [2,6] is scored")
	for i, cand := range table {
		assert.Equal(t, 2+i, cand.K)
		if !cand.Degenerate {
			assert.GreaterOrEqual(t, cand.Silhouette, -1.0)
			assert.LessOrEqual(t, cand.Silhouette, 1.0)
		}
	}
}

func TestSelectKCapsAtOnePerTenClients(t *testing.T) {
	X, _ := blobs(40, 2, 23)
	_, table, err := SelectK(context.Background(), X, 2, 6, 42)
	require.NoError(t, err)
	// 40 clients cap the sweep at k=4.
	assert.Len(t, table, 3)
	assert.Equal(t, 4, table[len(table)-1].K)
}

func TestSelectKDegenerate(t *testing.T) {
	// A single repeated point cannot form two clusters with two members.
	X := mat.NewDense(30, 2, nil)
	_, _, err := SelectK(context.Background(), X, 2, 3, 42)
	assert.ErrorIs(t, err, ErrDegenerateClustering)
}

func TestSelectKDeterministic(t *testing.T) {
	X, _ := blobs(100, 4, 29)
	a, _, err := SelectK(context.Background(), X, 2, 6, 42)
	require.NoError(t, err)
	b, _, err := SelectK(context.Background(), X, 2, 6, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPickBestPrefersSmallerKOnTie(t *testing.T) {
	table := []CandidateK{
		{K: 2, Silhouette: 0.61},
		{K: 3, Silhouette: 0.61},
		{K: 4, Silhouette: 0.40},
	}
	best, ok := pickBest(table)
	require.True(t, ok)
	assert.Equal(t, 2, best.K, "ties break toward the simpler model")
}

func TestPickBestSkipsDegenerate(t *testing.T) {
	table := []CandidateK{
		{K: 2, Degenerate: true},
		{K: 3, Silhouette: 0.2},
		{K: 4, Silhouette: 0.9, Degenerate: true},
	}
	best, ok := pickBest(table)
	require.True(t, ok)
	assert.Equal(t, 3, best.K)

	_, ok = pickBest([]CandidateK{{K: 2, Degenerate: true}})
	assert.False(t, ok)
}
