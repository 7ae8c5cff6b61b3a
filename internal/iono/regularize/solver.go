package regularize

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular reports that the SVD factorization of the regularized normal
// matrix failed outright. Rank deficiency alone is not an error; small
// singular values are truncated instead.
var ErrSingular = errors.New("svd factorization of the normal matrix failed")

// Solve computes the regularized weighted least-squares coefficients for the
// system A·c ≈ b with per-sample weights w and the penalty
// Σ params[kind]·mats[kind]. It forms the normal equations
//
//	X = Aᵀ(W⊙A) + Σ λ·M,  y = Aᵀ(W⊙b)
//
// and solves X·c = y through a truncated SVD, which stays stable when weak
// regularization leaves X near-singular. When wantCov is true the covariance
// dC = H·(AᵀWA)·Hᵀ is returned as well, with H the SVD pseudo-inverse of X
// (the delta-method sandwich estimator).
//
// Samples with zero or non-finite weights must be excluded by the caller;
// the solver does not filter.
func Solve(a *mat.Dense, b, w []float64, mats map[Kind]*mat.SymDense, params map[Kind]float64, wantCov bool) ([]float64, *mat.Dense, error) {
	n, p := a.Dims()

	// W⊙A and W⊙b (row scaling).
	wa := mat.NewDense(n, p, nil)
	wb := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			wa.Set(i, j, w[i]*a.At(i, j))
		}
		wb.SetVec(i, w[i]*b[i])
	}

	awa := mat.NewDense(p, p, nil)
	awa.Mul(a.T(), wa)
	y := mat.NewVecDense(p, nil)
	y.MulVec(a.T(), wb)

	x := mat.NewDense(p, p, nil)
	x.Copy(awa)
	for kind, lam := range params {
		if lam == 0 {
			continue
		}
		m, ok := mats[kind]
		if !ok {
			return nil, nil, &UnsupportedKindError{Kind: kind}
		}
		var scaled mat.Dense
		scaled.Scale(lam, m)
		x.Add(x, &scaled)
	}

	h, err := pseudoInverse(x)
	if err != nil {
		return nil, nil, err
	}

	cvec := mat.NewVecDense(p, nil)
	cvec.MulVec(h, y)
	c := make([]float64, p)
	copy(c, cvec.RawVector().Data)

	if !wantCov {
		return c, nil, nil
	}

	var hawa, cov mat.Dense
	hawa.Mul(h, awa)
	cov.Mul(&hawa, h.T())
	return c, &cov, nil
}

// pseudoInverse computes the Moore-Penrose inverse of a through a thin SVD,
// truncating singular values below a machine-precision threshold scaled by
// the largest singular value.
func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, ErrSingular
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	rows, cols := a.Dims()
	tol := float64(max(rows, cols)) * eps64 * maxValue(sigma)
	sInv := mat.NewDense(cols, rows, nil)
	for i, s := range sigma {
		if s > tol {
			sInv.Set(i, i, 1/s)
		}
	}

	var vs, pinv mat.Dense
	vs.Mul(&v, sInv)
	pinv.Mul(&vs, u.T())
	return &pinv, nil
}

const eps64 = 2.220446049250313e-16

func maxValue(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

// ChiSquared computes the weighted residual sum of squares
// Σ w_i·(A_i·c − b_i)².
func ChiSquared(a *mat.Dense, c, b, w []float64) float64 {
	n, p := a.Dims()
	pred := mat.NewVecDense(n, nil)
	pred.MulVec(a, mat.NewVecDense(p, c))
	var chi2 float64
	for i := 0; i < n; i++ {
		r := pred.AtVec(i) - b[i]
		chi2 += w[i] * r * r
	}
	return chi2
}
