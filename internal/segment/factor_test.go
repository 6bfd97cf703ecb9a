package segment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// correlatedMatrix builds a standardized n x p matrix whose columns load
// on two latent variables plus noise.
func correlatedMatrix(t *testing.T, n, p int, seed int64) *mat.Dense {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		z1 := rng.NormFloat64()
		z2 := rng.NormFloat64()
		for j := 0; j < p; j++ {
			latent := z1
			if j%2 == 1 {
				latent = z2
			}
			X.Set(i, j, latent+0.3*rng.NormFloat64())
		}
	}
	// Standardize columns, as BuildFeatures would.
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		mean := stat.Mean(col, nil)
		std := stat.PopStdDev(col, nil)
		for i := 0; i < n; i++ {
			X.Set(i, j, (X.At(i, j)-mean)/std)
		}
	}
	return X
}

func TestReduceFactorsShape(t *testing.T) {
	X := correlatedMatrix(t, 80, 6, 1)
	scores, fm, err := ReduceFactors(X)
	require.NoError(t, err)

	assert.Equal(t, 3, fm.NumFactors, "capped at three factors")
	n, k := scores.Dims()
	assert.Equal(t, 80, n)
	assert.Equal(t, 3, k)

	rows, cols := fm.Loadings.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 6, cols)
	assert.Len(t, fm.Psi, 6)
	for _, psi := range fm.Psi {
		assert.Greater(t, psi, 0.0)
	}
}

func TestReduceFactorsFewColumns(t *testing.T) {
	X := correlatedMatrix(t, 40, 2, 2)
	scores, fm, err := ReduceFactors(X)
	require.NoError(t, err)
	assert.Equal(t, 2, fm.NumFactors)
	_, k := scores.Dims()
	assert.Equal(t, 2, k)
}

func TestReduceFactorsDeterministic(t *testing.T) {
	X := correlatedMatrix(t, 60, 5, 3)
	a, _, err := ReduceFactors(X)
	require.NoError(t, err)
	b, _, err := ReduceFactors(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a, b, 1e-12), "factor scores must be reproducible")
}

func TestReduceFactorsCapturesStructure(t *testing.T) {
	// Two well-separated location shifts should stay separated in factor
	// space: scores for the two halves must differ in the first factor.
	n, p := 60, 4
	X := mat.NewDense(n, p, nil)
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < n; i++ {
		base := -1.0
		if i >= n/2 {
			base = 1.0
		}
		for j := 0; j < p; j++ {
			X.Set(i, j, base+0.1*rng.NormFloat64())
		}
	}
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		mean := stat.Mean(col, nil)
		std := stat.PopStdDev(col, nil)
		for i := 0; i < n; i++ {
			X.Set(i, j, (X.At(i, j)-mean)/std)
		}
	}

	scores, _, err := ReduceFactors(X)
	require.NoError(t, err)

	var lo, hi float64
	for i := 0; i < n/2; i++ {
		lo += scores.At(i, 0)
	}
	for i := n / 2; i < n; i++ {
		hi += scores.At(i, 0)
	}
	lo /= float64(n / 2)
	hi /= float64(n / 2)
	assert.Greater(t, math.Abs(hi-lo), 1.0, "group means should separate in factor space")
}
