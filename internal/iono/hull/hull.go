// Package hull computes the 3-D convex hull of a point cloud. The fitting
// pipeline uses it once per session, on the cartesian sample positions, to
// record the boundary of the region where data constrains the model.
package hull

import (
	"errors"
	"math"
	"sort"
)

// ErrDegenerate reports an input set with no 3-D extent (fewer than four
// points, or all points collinear/coplanar).
var ErrDegenerate = errors.New("hull: point set is degenerate in three dimensions")

// Point is a cartesian position.
type Point [3]float64

type face struct {
	a, b, c int
	normal  Point
	offset  float64
}

func sub(p, q Point) Point {
	return Point{p[0] - q[0], p[1] - q[1], p[2] - q[2]}
}

func cross(p, q Point) Point {
	return Point{
		p[1]*q[2] - p[2]*q[1],
		p[2]*q[0] - p[0]*q[2],
		p[0]*q[1] - p[1]*q[0],
	}
}

func dot(p, q Point) float64 {
	return p[0]*q[0] + p[1]*q[1] + p[2]*q[2]
}

func newFace(pts []Point, a, b, c int) face {
	n := cross(sub(pts[b], pts[a]), sub(pts[c], pts[a]))
	return face{a: a, b: b, c: c, normal: n, offset: dot(n, pts[a])}
}

// dist is the signed distance surrogate of p from the face plane (positive
// outside).
func (f face) dist(p Point) float64 {
	return dot(f.normal, p) - f.offset
}

// Compute returns the vertices of the convex hull of pts, ordered by their
// first appearance in the input. The input slice is not modified.
func Compute(pts []Point) ([]Point, error) {
	if len(pts) < 4 {
		return nil, ErrDegenerate
	}

	eps := scaleEpsilon(pts)

	faces, used, err := initialTetrahedron(pts, eps)
	if err != nil {
		return nil, err
	}

	for i := range pts {
		if used[i] {
			continue
		}
		faces = addPoint(pts, faces, i, eps)
	}

	// Collect distinct vertex indices in input order.
	seen := make(map[int]bool)
	var idx []int
	for _, f := range faces {
		for _, v := range []int{f.a, f.b, f.c} {
			if !seen[v] {
				seen[v] = true
				idx = append(idx, v)
			}
		}
	}
	sort.Ints(idx)

	out := make([]Point, len(idx))
	for i, v := range idx {
		out[i] = pts[v]
	}
	return out, nil
}

// scaleEpsilon derives a distance tolerance from the bounding-box diagonal.
func scaleEpsilon(pts []Point) float64 {
	lo := pts[0]
	hi := pts[0]
	for _, p := range pts {
		for c := 0; c < 3; c++ {
			lo[c] = math.Min(lo[c], p[c])
			hi[c] = math.Max(hi[c], p[c])
		}
	}
	d := sub(hi, lo)
	diag := math.Sqrt(dot(d, d))
	return 1e-9 * diag * diag // tolerance on the unnormalized plane distance
}

// initialTetrahedron finds four non-coplanar points and returns the four
// outward-oriented starting faces.
func initialTetrahedron(pts []Point, eps float64) ([]face, []bool, error) {
	used := make([]bool, len(pts))

	// First two: any pair with separation.
	i0 := 0
	i1 := -1
	for i := 1; i < len(pts); i++ {
		d := sub(pts[i], pts[i0])
		if dot(d, d) > 0 {
			i1 = i
			break
		}
	}
	if i1 < 0 {
		return nil, nil, ErrDegenerate
	}

	// Third: maximize area with the first edge.
	i2 := -1
	best := 0.0
	for i := 0; i < len(pts); i++ {
		if i == i0 || i == i1 {
			continue
		}
		c := cross(sub(pts[i1], pts[i0]), sub(pts[i], pts[i0]))
		if a := dot(c, c); a > best {
			best = a
			i2 = i
		}
	}
	if i2 < 0 || best == 0 {
		return nil, nil, ErrDegenerate
	}

	// Fourth: maximize distance from the first plane.
	base := newFace(pts, i0, i1, i2)
	i3 := -1
	best = 0
	for i := 0; i < len(pts); i++ {
		if i == i0 || i == i1 || i == i2 {
			continue
		}
		if d := math.Abs(base.dist(pts[i])); d > best {
			best = d
			i3 = i
		}
	}
	if i3 < 0 || best <= eps {
		return nil, nil, ErrDegenerate
	}

	// Orient so i3 is below the base face, then build the four faces.
	if base.dist(pts[i3]) > 0 {
		i1, i2 = i2, i1
	}
	faces := []face{
		newFace(pts, i0, i1, i2),
		newFace(pts, i0, i2, i3),
		newFace(pts, i2, i1, i3),
		newFace(pts, i1, i0, i3),
	}
	for _, v := range []int{i0, i1, i2, i3} {
		used[v] = true
	}
	return faces, used, nil
}

// addPoint grows the hull with pts[pi] by removing visible faces and
// stitching new faces along the horizon. Interior points leave the hull
// unchanged.
func addPoint(pts []Point, faces []face, pi int, eps float64) []face {
	p := pts[pi]

	visible := make([]bool, len(faces))
	any := false
	for i, f := range faces {
		if f.dist(p) > eps {
			visible[i] = true
			any = true
		}
	}
	if !any {
		return faces
	}

	// Horizon edges appear exactly once among the visible faces' edges.
	type edge struct{ u, v int }
	count := make(map[edge]int)
	for i, f := range faces {
		if !visible[i] {
			continue
		}
		for _, e := range [][2]int{{f.a, f.b}, {f.b, f.c}, {f.c, f.a}} {
			key := edge{e[0], e[1]}
			if e[0] > e[1] {
				key = edge{e[1], e[0]}
			}
			count[key]++
		}
	}

	next := make([]face, 0, len(faces))
	for i, f := range faces {
		if !visible[i] {
			next = append(next, f)
		}
	}

	for i, f := range faces {
		if !visible[i] {
			continue
		}
		for _, e := range [][2]int{{f.a, f.b}, {f.b, f.c}, {f.c, f.a}} {
			key := edge{e[0], e[1]}
			if e[0] > e[1] {
				key = edge{e[1], e[0]}
			}
			if count[key] == 1 {
				// Horizon edge, oriented as seen from the visible face:
				// the new face (u, v, p) faces outward.
				next = append(next, newFace(pts, e[0], e[1], pi))
			}
		}
	}
	return next
}
