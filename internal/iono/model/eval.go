package model

import "gonum.org/v1/gonum/mat"

// EvalOptions selects the optional outputs of Eval.
type EvalOptions struct {
	// Grad requests gradient vectors at each point.
	Grad bool
	// Err requests per-point parameter variances; requires a covariance
	// matrix.
	Err bool
}

// EvalResult holds model evaluations at a set of points.
type EvalResult struct {
	// Param is the fitted parameter value at each point.
	Param []float64
	// Grad is the parameter gradient at each point in geocentric spherical
	// components (radial, colatitude, azimuth). Nil unless requested.
	Grad [][3]float64
	// Err is the parameter variance at each point, diag(A·dC·Aᵀ). Nil
	// unless requested.
	Err []float64
}

// Eval evaluates the fitted model at arbitrary geocentric points given a
// coefficient vector, transforming into the session's centered frame first.
// The covariance matrix may be nil when errors are not requested.
func (mdl *Model) Eval(pts []Point, cp CenterPoint, c []float64, dc *mat.SymDense, opts EvalOptions) EvalResult {
	mpts := Transform(pts, cp)
	a := mdl.Basis(mpts)
	cv := mat.NewVecDense(len(c), c)

	var out EvalResult
	param := mat.NewVecDense(len(pts), nil)
	param.MulVec(a, cv)
	out.Param = make([]float64, len(pts))
	copy(out.Param, param.RawVector().Data)

	if opts.Grad {
		ag := mdl.GradBasis(mpts)
		modelGrad := make([][3]float64, len(pts))
		comp := mat.NewVecDense(len(pts), nil)
		for ci := 0; ci < 3; ci++ {
			comp.MulVec(ag[ci], cv)
			for i := 0; i < len(pts); i++ {
				modelGrad[i][ci] = comp.AtVec(i)
			}
		}
		out.Grad = InverseTransform(mpts, modelGrad, cp)
	}

	if opts.Err && dc != nil {
		// diag(A·dC·Aᵀ) without forming the full product.
		var adc mat.Dense
		adc.Mul(a, dc)
		out.Err = make([]float64, len(pts))
		for i := 0; i < len(pts); i++ {
			var sum float64
			for j := 0; j < mdl.NBasis; j++ {
				sum += adc.At(i, j) * a.At(i, j)
			}
			out.Err[i] = sum
		}
	}

	return out
}
