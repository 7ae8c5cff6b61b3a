// Package coords provides the pure coordinate transforms used by the
// volumetric fitting pipeline: geocentric spherical ⇄ cartesian, WGS84
// geodetic ⇄ ECEF, and the matching vector-component transforms.
//
// Conventions: colatitude theta is measured from the +Z axis in radians,
// longitude phi is measured from +X toward +Y in radians, radii and
// altitudes are in meters. All functions are stateless.
package coords

import "math"

// WGS84 ellipsoid constants.
const (
	wgs84A  = 6378137.0         // semi-major axis (m)
	wgs84F  = 1 / 298.257223563 // flattening
	wgs84B  = wgs84A * (1 - wgs84F)
	wgs84E2 = (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84A * wgs84A) // first eccentricity squared
	wgs84EP = (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B) // second eccentricity squared
)

// SphericalToCartesian converts geocentric spherical coordinates
// (radius, colatitude, longitude) to cartesian (x, y, z).
func SphericalToCartesian(r, theta, phi float64) (x, y, z float64) {
	st, ct := math.Sincos(theta)
	sp, cp := math.Sincos(phi)
	return r * st * cp, r * st * sp, r * ct
}

// CartesianToSpherical converts cartesian (x, y, z) to geocentric spherical
// coordinates (radius, colatitude, longitude).
func CartesianToSpherical(x, y, z float64) (r, theta, phi float64) {
	r = math.Sqrt(x*x + y*y + z*z)
	if r == 0 {
		return 0, 0, 0
	}
	theta = math.Acos(z / r)
	phi = math.Atan2(y, x)
	return r, theta, phi
}

// GeodeticToECEF converts WGS84 geodetic coordinates (latitude and longitude
// in degrees, altitude in meters above the ellipsoid) to earth-centered
// earth-fixed cartesian coordinates in meters.
func GeodeticToECEF(latDeg, lonDeg, alt float64) (x, y, z float64) {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	sl, cl := math.Sincos(lat)
	so, co := math.Sincos(lon)

	// Prime vertical radius of curvature.
	n := wgs84A / math.Sqrt(1-wgs84E2*sl*sl)

	x = (n + alt) * cl * co
	y = (n + alt) * cl * so
	z = (n*(1-wgs84E2) + alt) * sl
	return x, y, z
}

// ECEFToGeodetic converts ECEF cartesian coordinates (meters) to WGS84
// geodetic latitude and longitude in degrees and altitude in meters, using
// the closed-form solution of Zhu (1994).
func ECEFToGeodetic(x, y, z float64) (latDeg, lonDeg, alt float64) {
	p := math.Hypot(x, y)
	if p == 0 {
		// On the polar axis the longitude is arbitrary.
		lat := math.Pi / 2
		if z < 0 {
			lat = -lat
		}
		return lat * 180 / math.Pi, 0, math.Abs(z) - wgs84B
	}

	f := 54 * wgs84B * wgs84B * z * z
	g := p*p + (1-wgs84E2)*z*z - wgs84E2*(wgs84A*wgs84A-wgs84B*wgs84B)
	c := wgs84E2 * wgs84E2 * f * p * p / (g * g * g)
	s := math.Cbrt(1 + c + math.Sqrt(c*c+2*c))
	k := s + 1 + 1/s
	pp := f / (3 * k * k * g * g)
	q := math.Sqrt(1 + 2*wgs84E2*wgs84E2*pp)
	r0 := -pp*wgs84E2*p/(1+q) + math.Sqrt(
		0.5*wgs84A*wgs84A*(1+1/q)-pp*(1-wgs84E2)*z*z/(q*(1+q))-0.5*pp*p*p)
	u := math.Hypot(p-wgs84E2*r0, z)
	v := math.Sqrt((p-wgs84E2*r0)*(p-wgs84E2*r0) + (1-wgs84E2)*z*z)
	z0 := wgs84B * wgs84B * z / (wgs84A * v)

	alt = u * (1 - wgs84B*wgs84B/(wgs84A*v))
	lat := math.Atan((z + wgs84EP*z0) / p)
	lon := math.Atan2(y, x)
	return lat * 180 / math.Pi, lon * 180 / math.Pi, alt
}

// VectorSphericalToCartesian converts vector components (vr, vtheta, vphi)
// given at the spherical position (theta, phi) to cartesian components.
func VectorSphericalToCartesian(vr, vt, vp, theta, phi float64) (vx, vy, vz float64) {
	st, ct := math.Sincos(theta)
	sp, cp := math.Sincos(phi)
	vx = vr*st*cp + vt*ct*cp - vp*sp
	vy = vr*st*sp + vt*ct*sp + vp*cp
	vz = vr*ct - vt*st
	return vx, vy, vz
}

// VectorCartesianToSpherical converts cartesian vector components at the
// cartesian position (x, y, z) to spherical components (vr, vtheta, vphi).
func VectorCartesianToSpherical(vx, vy, vz, x, y, z float64) (vr, vt, vp float64) {
	_, theta, phi := CartesianToSpherical(x, y, z)
	st, ct := math.Sincos(theta)
	sp, cp := math.Sincos(phi)
	vr = vx*st*cp + vy*st*sp + vz*ct
	vt = vx*ct*cp + vy*ct*sp - vz*st
	vp = -vx*sp + vy*cp
	return vr, vt, vp
}
