package segment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	factorMaxIter = 1000
	factorTol     = 1e-2
	psiFloor      = 1e-12
)

// FactorModel is a fitted factor-analysis decomposition: loadings W
// (factors x features) and per-feature noise variances psi.
type FactorModel struct {
	Loadings   *mat.Dense
	Psi        []float64
	NumFactors int
}

// chooseFactorCount caps the latent dimensionality by sample and feature
// counts: min(3, max(1, min(5, p, n-1))).
func chooseFactorCount(n, p int) int {
	maxComponents := 5
	if p < maxComponents {
		maxComponents = p
	}
	if n-1 < maxComponents {
		maxComponents = n - 1
	}
	if maxComponents < 1 {
		maxComponents = 1
	}
	if maxComponents > 3 {
		return 3
	}
	return maxComponents
}

// ReduceFactors fits a factor-analysis model to the standardized matrix X
// via expectation-maximization and returns per-client factor scores, one
// row per input row in the same order.
//
// Scores are standardized within the run and are not comparable across
// runs of different profiles. Returns ErrModelFit when the decomposition
// cannot converge or degenerates.
func ReduceFactors(X *mat.Dense) (*mat.Dense, *FactorModel, error) {
	n, p := X.Dims()
	k := chooseFactorCount(n, p)

	variances := make([]float64, p)
	for j := 0; j < p; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			v := X.At(i, j)
			sum += v * v
		}
		variances[j] = sum / float64(n)
	}

	psi := make([]float64, p)
	for j := range psi {
		psi[j] = 1
	}

	llConst := float64(p)*math.Log(2*math.Pi) + float64(k)
	oldLL := math.Inf(-1)
	converged := false

	W := mat.NewDense(k, p, nil)
	scaled := mat.NewDense(n, p, nil)
	sqrtN := math.Sqrt(float64(n))

	for iter := 0; iter < factorMaxIter; iter++ {
		sqrtPsi := make([]float64, p)
		for j := range psi {
			sqrtPsi[j] = math.Sqrt(psi[j]) + psiFloor
		}
		for i := 0; i < n; i++ {
			for j := 0; j < p; j++ {
				scaled.Set(i, j, X.At(i, j)/(sqrtPsi[j]*sqrtN))
			}
		}

		var svd mat.SVD
		if ok := svd.Factorize(scaled, mat.SVDThin); !ok {
			return nil, nil, fmt.Errorf("%w: singular value decomposition did not converge", ErrModelFit)
		}
		s := svd.Values(nil)
		var v mat.Dense
		svd.VTo(&v) // p x min(n,p); columns are right singular vectors

		// Loadings from the top-k singular values, rescaled back by psi.
		var logS, unexplained float64
		for idx, sv := range s {
			if idx < k {
				logS += math.Log(math.Max(sv*sv, psiFloor))
			} else {
				unexplained += sv * sv
			}
		}
		for f := 0; f < k; f++ {
			scale := math.Sqrt(math.Max(s[f]*s[f]-1, 0))
			for j := 0; j < p; j++ {
				W.Set(f, j, scale*v.At(j, f)*sqrtPsi[j])
			}
		}

		var logPsi float64
		for j := 0; j < p; j++ {
			colNorm := 0.0
			for f := 0; f < k; f++ {
				colNorm += W.At(f, j) * W.At(f, j)
			}
			psi[j] = math.Max(variances[j]-colNorm, psiFloor)
			logPsi += math.Log(psi[j])
		}

		ll := -float64(n) / 2 * (llConst + logS + unexplained + logPsi)
		if math.IsNaN(ll) {
			return nil, nil, fmt.Errorf("%w: log-likelihood diverged", ErrModelFit)
		}
		if ll-oldLL < factorTol {
			converged = true
			break
		}
		oldLL = ll
	}
	if !converged {
		return nil, nil, fmt.Errorf("%w: EM did not converge within %d iterations", ErrModelFit, factorMaxIter)
	}

	model := &FactorModel{Loadings: W, Psi: psi, NumFactors: k}
	scores, err := model.Transform(X)
	if err != nil {
		return nil, nil, err
	}
	return scores, model, nil
}

// Transform computes regression-method factor scores for X:
// Z = X Ψ⁻¹Wᵀ (I + WΨ⁻¹Wᵀ)⁻¹.
func (m *FactorModel) Transform(X *mat.Dense) (*mat.Dense, error) {
	k, p := m.Loadings.Dims()
	n, _ := X.Dims()

	// Wpsi = W / psi, applied per feature column.
	wPsi := mat.NewDense(k, p, nil)
	for f := 0; f < k; f++ {
		for j := 0; j < p; j++ {
			wPsi.Set(f, j, m.Loadings.At(f, j)/m.Psi[j])
		}
	}

	cov := mat.NewDense(k, k, nil)
	cov.Mul(wPsi, m.Loadings.T())
	for f := 0; f < k; f++ {
		cov.Set(f, f, cov.At(f, f)+1)
	}
	var covInv mat.Dense
	if err := covInv.Inverse(cov); err != nil {
		return nil, fmt.Errorf("%w: factor covariance is singular: %v", ErrModelFit, err)
	}

	var proj mat.Dense
	proj.Mul(X, wPsi.T())
	scores := mat.NewDense(n, k, nil)
	scores.Mul(&proj, &covInv)
	return scores, nil
}
