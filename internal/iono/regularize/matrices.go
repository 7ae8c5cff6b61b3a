package regularize

import (
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"

	"github.com/amisr-data/ionofit/internal/iono/model"
)

// quadNodes is the Gauss-Legendre node count per 1-D integral. The basis
// factors oscillate at most a handful of times over the cap and the altitude
// range, so this is comfortably resolved.
const quadNodes = 64

// Matrices evaluates the penalty matrix for every requested kind. The
// integrals are data independent, so this runs once per fit session; the
// result is read-only and safe to share across records and workers.
//
// Each entry is a separable product of three 1-D integrals over the model
// domain: altitude z in [0, zMax], colatitude up to the cap limit (with the
// sinθ area element), and the full azimuth circle. Curvature uses the second
// radial derivative of the basis in place of the basis itself.
//
// An unknown kind returns an UnsupportedKindError before any work is done.
func Matrices(mdl *model.Model, kinds []Kind, zMax float64) (map[Kind]*mat.SymDense, error) {
	for _, kind := range kinds {
		switch kind {
		case KindCurvature, KindZerothOrder:
		default:
			return nil, &UnsupportedKindError{Kind: kind}
		}
	}

	out := make(map[Kind]*mat.SymDense, len(kinds))
	for _, kind := range kinds {
		if _, ok := out[kind]; ok {
			continue
		}
		radial := mdl.RadialTerm
		if kind == KindCurvature {
			radial = mdl.RadialCurvature
		}
		out[kind] = penaltyMatrix(mdl, radial, zMax)
	}
	return out, nil
}

// penaltyMatrix fills the symmetric basis-pair matrix whose (n1, n2) entry
// is the domain integral of the product of basis factors, with the given
// radial factor. Pairs are independent, so the upper triangle is evaluated
// by a worker pool.
func penaltyMatrix(mdl *model.Model, radial func(int, float64) float64, zMax float64) *mat.SymDense {
	nb := mdl.NBasis
	m := mat.NewSymDense(nb, nil)

	type pair struct{ n1, n2 int }
	pairs := make(chan pair)

	var wg sync.WaitGroup
	var mu sync.Mutex
	workers := runtime.GOMAXPROCS(0)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range pairs {
				v := pairTerm(mdl, radial, zMax, p.n1, p.n2)
				mu.Lock()
				m.SetSym(p.n1, p.n2, v)
				mu.Unlock()
			}
		}()
	}

	for n1 := 0; n1 < nb; n1++ {
		for n2 := n1; n2 < nb; n2++ {
			pairs <- pair{n1, n2}
		}
	}
	close(pairs)
	wg.Wait()

	return m
}

// pairTerm evaluates one matrix entry: the product of the z, colatitude,
// and azimuth integrals for the basis pair (n1, n2).
func pairTerm(mdl *model.Model, radial func(int, float64) float64, zMax float64, n1, n2 int) float64 {
	iz := quad.Fixed(func(z float64) float64 {
		return radial(n1, z) * radial(n2, z)
	}, 0, zMax, quadNodes, nil, 0)

	it := quad.Fixed(func(theta float64) float64 {
		return mdl.ColatTerm(n1, theta) * mdl.ColatTerm(n2, theta) * math.Sin(theta)
	}, 0, mdl.CapLim, quadNodes, nil, 0)

	ip := quad.Fixed(func(phi float64) float64 {
		return mdl.AzTerm(n1, phi) * mdl.AzTerm(n2, phi)
	}, 0, 2*math.Pi, quadNodes, nil, 0)

	return iz * it * ip
}
