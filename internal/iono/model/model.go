// Package model implements the 3-D analytic basis model used to describe
// ionospheric density and temperature over a radar field of view. Each basis
// function is the product of a radial factor (exponential decay times a
// generalized Laguerre polynomial), a colatitude factor (associated Legendre
// function of non-integer degree, giving spherical cap harmonics), and an
// azimuthal sine/cosine factor.
package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RE is the mean Earth radius in meters used by the altitude rescaling.
const RE = 6371.2e3

// Point is a position in geocentric spherical coordinates: radius in meters,
// colatitude and longitude in radians.
type Point struct {
	R     float64
	Theta float64
	Phi   float64
}

// ModelPoint is a position in the model's centered frame: the rescaled
// vertical coordinate z = 100·(r/RE − 1) plus colatitude and longitude in the
// rotated frame where the data centroid sits at the pole.
type ModelPoint struct {
	Z     float64
	Theta float64
	Phi   float64
}

// Model holds the order parameters of the basis expansion. A Model is
// immutable after construction and safe for concurrent use.
type Model struct {
	// MaxK is the number of radial (vertical) basis orders.
	MaxK int
	// MaxL is the number of angular (horizontal) basis orders.
	MaxL int
	// NBasis is the total basis count, MaxK·MaxL².
	NBasis int
	// CapLim is the colatitude limit of the polar cap in radians.
	CapLim float64
}

// New constructs a Model with maxK radial orders, maxL angular orders, and a
// cap half-width given in degrees.
func New(maxK, maxL int, capLimDeg float64) *Model {
	return &Model{
		MaxK:   maxK,
		MaxL:   maxL,
		NBasis: maxK * maxL * maxL,
		CapLim: capLimDeg * math.Pi / 180,
	}
}

// BasisNumbers decomposes a flat basis index n into the radial order k, the
// angular degree l, and the angular order m. The decomposition is bijective
// over [0, NBasis).
func (mdl *Model) BasisNumbers(n int) (k, l, m int) {
	l2 := mdl.MaxL * mdl.MaxL
	k = n / l2
	r := n % l2
	l = int(math.Floor(math.Sqrt(float64(r))))
	m = r - l*(l+1)
	return k, l, m
}

// Nu returns the non-integer degree of the cap harmonic for angular degree l,
// using the approximation of Thébault et al. (2006).
func (mdl *Model) Nu(l int) float64 {
	return (2*float64(l)+0.5)*math.Pi/(2*mdl.CapLim) - 0.5
}

// Kvm returns the normalization constant for degree v and order m, doubled
// (by √2) for nonzero orders.
func Kvm(v float64, m int) float64 {
	am := math.Abs(float64(m))
	kvm := math.Sqrt((2*v + 1) / (4 * math.Pi) * GammaRatio(v-am+1, v+am+1))
	if m != 0 {
		kvm *= math.Sqrt2
	}
	return kvm
}

// Az evaluates the azimuthal factor: Kvm·sin(|m|φ) for negative orders,
// Kvm·cos(|m|φ) otherwise.
func Az(v float64, m int, phi float64) float64 {
	am := math.Abs(float64(m))
	if m < 0 {
		return Kvm(v, m) * math.Sin(am*phi)
	}
	return Kvm(v, m) * math.Cos(am*phi)
}

// DAz evaluates the derivative of the azimuthal factor with respect to φ.
func DAz(v float64, m int, phi float64) float64 {
	am := math.Abs(float64(m))
	if m < 0 {
		return am * Kvm(v, m) * math.Cos(am*phi)
	}
	return -am * Kvm(v, m) * math.Sin(am*phi)
}

// RadialTerm evaluates the radial factor e^(−z/2)·L_k(z) of basis index n.
func (mdl *Model) RadialTerm(n int, z float64) float64 {
	k, _, _ := mdl.BasisNumbers(n)
	return math.Exp(-0.5*z) * Laguerre(k, 0, z)
}

// RadialCurvature evaluates the second derivative with respect to z of the
// radial factor of basis index n, using L_k' = −L_{k−1}^(1) and
// L_k'' = L_{k−2}^(2).
func (mdl *Model) RadialCurvature(n int, z float64) float64 {
	k, _, _ := mdl.BasisNumbers(n)
	l0 := Laguerre(k, 0, z)
	l1 := Laguerre(k-1, 1, z)
	l2 := Laguerre(k-2, 2, z)
	return math.Exp(-0.5*z) * (0.25*l0 + l1 + l2)
}

// ColatTerm evaluates the colatitude factor P_v^m(cosθ) of basis index n.
func (mdl *Model) ColatTerm(n int, theta float64) float64 {
	_, l, m := mdl.BasisNumbers(n)
	return LegendreP(m, mdl.Nu(l), math.Cos(theta))
}

// AzTerm evaluates the azimuthal factor of basis index n.
func (mdl *Model) AzTerm(n int, phi float64) float64 {
	_, l, m := mdl.BasisNumbers(n)
	return Az(mdl.Nu(l), m, phi)
}

// Basis evaluates all basis functions at the given model-frame points,
// returning the design matrix with one row per point and one column per
// basis function. Non-finite coordinates propagate as NaN matrix entries.
func (mdl *Model) Basis(pts []ModelPoint) *mat.Dense {
	a := mat.NewDense(len(pts), mdl.NBasis, nil)
	for n := 0; n < mdl.NBasis; n++ {
		k, l, m := mdl.BasisNumbers(n)
		v := mdl.Nu(l)
		for i, p := range pts {
			radial := math.Exp(-0.5*p.Z) * Laguerre(k, 0, p.Z)
			a.Set(i, n, radial*Az(v, m, p.Phi)*LegendreP(m, v, math.Cos(p.Theta)))
		}
	}
	return a
}

// GradBasis evaluates the gradient of every basis function at the given
// model-frame points. The result holds one matrix per spatial component
// (radial, colatitude, azimuth), each with one row per point and one column
// per basis function. Components are physical derivatives in the model frame,
// so the radial entry carries the dz/dr = 100/RE factor and the angular
// entries the 1/(r·sinθ) metric terms.
func (mdl *Model) GradBasis(pts []ModelPoint) [3]*mat.Dense {
	var grad [3]*mat.Dense
	for c := range grad {
		grad[c] = mat.NewDense(len(pts), mdl.NBasis, nil)
	}
	for n := 0; n < mdl.NBasis; n++ {
		k, l, m := mdl.BasisNumbers(n)
		v := mdl.Nu(l)
		fm := float64(m)
		for i, p := range pts {
			x := math.Cos(p.Theta)
			y := math.Sin(p.Theta)
			e := math.Exp(-0.5 * p.Z)
			l0 := Laguerre(k, 0, p.Z)
			l1 := Laguerre(k-1, 1, p.Z)
			pmv := LegendreP(m, v, x)
			pmv1 := LegendreP(m, v+1, x)
			az := Az(v, m, p.Phi)
			r := (p.Z/100 + 1) * RE

			grad[0].Set(i, n, -0.5*e*(l0+2*l1)*pmv*az*100/RE)
			grad[1].Set(i, n, e*l0*(-(v+1)*x*pmv+(v-fm+1)*pmv1)*az/(y*r))
			grad[2].Set(i, n, e*l0*pmv*DAz(v, m, p.Phi)/(y*r))
		}
	}
	return grad
}
