package model

import (
	"math"

	"github.com/amisr-data/ionofit/internal/iono/coords"
)

// CenterPoint pins the basis expansion center for a fit session. It is
// computed once from the full sample footprint and passed explicitly into
// every transform call, so repeated transforms of different point sets stay
// referentially transparent.
type CenterPoint struct {
	// Theta0 is the rotation angle that carries the data centroid to the
	// pole (the negative mean colatitude).
	Theta0 float64
	// Phi0 is the mean longitude of the data.
	Phi0 float64
}

// Center computes the session center point from a set of geocentric points:
// the mean longitude and the negated mean colatitude.
func Center(pts []Point) CenterPoint {
	var sumTheta, sumPhi float64
	for _, p := range pts {
		sumTheta += p.Theta
		sumPhi += p.Phi
	}
	n := float64(len(pts))
	return CenterPoint{Theta0: -sumTheta / n, Phi0: sumPhi / n}
}

// rotationAxis returns the unit rotation axis for a center point: the
// horizontal direction perpendicular to the centroid meridian.
func (cp CenterPoint) rotationAxis() [3]float64 {
	s, c := math.Sincos(cp.Phi0 + math.Pi/2)
	return [3]float64{c, s, 0}
}

// rodrigues rotates vector r by angle about the unit axis k.
func rodrigues(r, k [3]float64, angle float64) [3]float64 {
	s, c := math.Sincos(angle)
	kxr := [3]float64{
		k[1]*r[2] - k[2]*r[1],
		k[2]*r[0] - k[0]*r[2],
		k[0]*r[1] - k[1]*r[0],
	}
	kr := k[0]*r[0] + k[1]*r[1] + k[2]*r[2]
	var out [3]float64
	for i := range out {
		out[i] = r[i]*c + kxr[i]*s + k[i]*kr*(1-c)
	}
	return out
}

// Transform carries geocentric spherical points into the model frame: a
// rotation that brings the session centroid to the pole followed by the
// altitude rescaling z = 100·(r/RE − 1).
func Transform(pts []Point, cp CenterPoint) []ModelPoint {
	k := cp.rotationAxis()
	out := make([]ModelPoint, len(pts))
	for i, p := range pts {
		x, y, z := coords.SphericalToCartesian(p.R, p.Theta, p.Phi)
		rot := rodrigues([3]float64{x, y, z}, k, cp.Theta0)
		r, theta, phi := coords.CartesianToSpherical(rot[0], rot[1], rot[2])
		out[i] = ModelPoint{Z: 100 * (r/RE - 1), Theta: theta, Phi: phi}
	}
	return out
}

// InverseTransform rotates vector components evaluated in the model frame
// back to geocentric spherical components at their original positions. This
// is needed to express fitted gradients in the caller's coordinates.
func InverseTransform(pts []ModelPoint, vecs [][3]float64, cp CenterPoint) [][3]float64 {
	angle := -cp.Theta0
	k := cp.rotationAxis()

	out := make([][3]float64, len(pts))
	for i, p := range pts {
		r := (p.Z/100 + 1) * RE
		px, py, pz := coords.SphericalToCartesian(r, p.Theta, p.Phi)
		vx, vy, vz := coords.VectorSphericalToCartesian(vecs[i][0], vecs[i][1], vecs[i][2], p.Theta, p.Phi)

		rp := rodrigues([3]float64{px, py, pz}, k, angle)
		vp := rodrigues([3]float64{vx, vy, vz}, k, angle)

		vr, vt, vph := coords.VectorCartesianToSpherical(vp[0], vp[1], vp[2], rp[0], rp[1], rp[2])
		out[i] = [3]float64{vr, vt, vph}
	}
	return out
}

// PointsFromGeodetic converts aligned geodetic coordinate arrays (degrees,
// degrees, meters) into geocentric spherical points.
func PointsFromGeodetic(lat, lon, alt []float64) []Point {
	pts := make([]Point, len(lat))
	for i := range lat {
		x, y, z := coords.GeodeticToECEF(lat[i], lon[i], alt[i])
		r, theta, phi := coords.CartesianToSpherical(x, y, z)
		pts[i] = Point{R: r, Theta: theta, Phi: phi}
	}
	return pts
}
