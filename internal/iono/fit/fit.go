// Package fit drives a model-fitting session: it loads time records from a
// data source, selects regularization strengths, and solves for one
// coefficient vector and covariance per record. Records are independent; a
// record whose fit cannot be determined degrades to an all-NaN slot so long
// runs complete and consumers can tell an attempted-and-failed fit from one
// never attempted.
package fit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/amisr-data/ionofit/internal/iono/coords"
	"github.com/amisr-data/ionofit/internal/iono/hull"
	"github.com/amisr-data/ionofit/internal/iono/model"
	"github.com/amisr-data/ionofit/internal/iono/regularize"
)

// Grid holds the geodetic sample positions shared by every record of a
// session: degrees latitude and longitude, meters altitude, index-aligned.
type Grid struct {
	Lat []float64
	Lon []float64
	Alt []float64
}

// Record is one acquisition interval: measured values and their standard
// errors, index-aligned with the session Grid. Records are immutable during
// fitting.
type Record struct {
	Start  time.Time
	End    time.Time
	Values []float64
	Errors []float64
}

// DataSource supplies the sample grid and time records for one session.
type DataSource interface {
	Name() string
	Load() (Grid, []Record, error)
}

// ConfigSnapshot is the verbatim copy of the configuration that produced a
// session, carried with the result for reproducibility.
type ConfigSnapshot struct {
	Name string
	Path string
	Text string
}

// Result aggregates the per-record outputs of a session. The Start, End,
// Coeffs, Cov, and Chi2 slices are index-aligned; a disqualified record
// occupies its slot with NaN-filled arrays, never a gap. Cov rows are the
// nbasis×nbasis covariance stored row-major.
type Result struct {
	Source string
	Method string
	Kinds  []regularize.Kind
	Config ConfigSnapshot
	Center model.CenterPoint
	Hull   [][3]float64

	Start  []time.Time
	End    []time.Time
	Coeffs [][]float64
	Cov    [][]float64
	Chi2   []float64
}

// Session fits every record of a data source against one basis model. The
// penalty matrices and the centering transform are computed once up front
// and shared read-only across records.
type Session struct {
	Model    *model.Model
	Kinds    []regularize.Kind
	Method   string
	Searcher regularize.Searcher
	ZMax     float64

	// Start and End optionally restrict which records are fit. A zero
	// time leaves that side of the window open.
	Start time.Time
	End   time.Time
}

// Run processes every record of src in order and assembles the session
// result. It returns an error only for session-level failures: a data source
// that cannot load, misaligned arrays, or an unsupported regularization kind.
// Per-record failures are logged and degrade to NaN slots.
func (s *Session) Run(ctx context.Context, src DataSource) (*Result, error) {
	if s.Model == nil || s.Searcher == nil {
		return nil, errors.New("fit: session needs a model and a searcher")
	}

	grid, records, err := src.Load()
	if err != nil {
		return nil, fmt.Errorf("loading samples from %s: %w", src.Name(), err)
	}
	if err := checkAligned(grid, records); err != nil {
		return nil, err
	}

	// The unsupported-kind check happens here, before any record is touched.
	mats, err := regularize.Matrices(s.Model, s.Kinds, s.ZMax)
	if err != nil {
		return nil, err
	}

	np := len(grid.Lat)
	coordOK := make([]bool, np)
	for i := 0; i < np; i++ {
		coordOK[i] = finite(grid.Lat[i]) && finite(grid.Lon[i]) && finite(grid.Alt[i])
	}

	pts := model.PointsFromGeodetic(grid.Lat, grid.Lon, grid.Alt)
	var valid []model.Point
	for i, p := range pts {
		if coordOK[i] {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return nil, errors.New("fit: no samples with finite coordinates")
	}

	// The expansion center is pinned for the life of the session so every
	// record shares one basis.
	cp := model.Center(valid)
	full := s.Model.Basis(model.Transform(pts, cp))

	res := &Result{
		Source: src.Name(),
		Method: s.Method,
		Kinds:  append([]regularize.Kind(nil), s.Kinds...),
		Center: cp,
		Hull:   footprintHull(grid, coordOK),
	}

	var (
		lastKey string
		a       *mat.Dense
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.inWindow(rec) {
			continue
		}

		rows, key := usableRows(rec, coordOK)
		if len(rows) == 0 {
			log.Printf("fit: record %s has no usable samples; marking NaN",
				rec.Start.Format(time.RFC3339))
			s.appendNaN(res, rec)
			continue
		}
		// The basis depends only on coordinates, so the design matrix is
		// rebuilt only when the keep mask changes.
		if key != lastKey {
			a = selectRows(full, rows)
			lastKey = key
		}

		b := make([]float64, len(rows))
		w := make([]float64, len(rows))
		for i, r := range rows {
			b[i] = rec.Values[r]
			w[i] = 1 / (rec.Errors[r] * rec.Errors[r])
		}

		params := regularize.FindParams(a, b, w, mats, s.Kinds, s.Searcher)
		if anyNaN(params) {
			log.Printf("fit: record %s disqualified by failed parameter search; marking NaN",
				rec.Start.Format(time.RFC3339))
			s.appendNaN(res, rec)
			continue
		}

		c, cov, err := regularize.Solve(a, b, w, mats, params, true)
		if err != nil {
			log.Printf("fit: record %s solve failed: %v; marking NaN",
				rec.Start.Format(time.RFC3339), err)
			s.appendNaN(res, rec)
			continue
		}

		res.Start = append(res.Start, rec.Start)
		res.End = append(res.End, rec.End)
		res.Coeffs = append(res.Coeffs, c)
		res.Cov = append(res.Cov, flatten(cov))
		res.Chi2 = append(res.Chi2, regularize.ChiSquared(a, c, b, w))
	}
	return res, nil
}

func (s *Session) inWindow(rec Record) bool {
	if !s.Start.IsZero() && rec.End.Before(s.Start) {
		return false
	}
	if !s.End.IsZero() && rec.Start.After(s.End) {
		return false
	}
	return true
}

// appendNaN fills the record's result slot with NaN arrays of the right
// shapes.
func (s *Session) appendNaN(res *Result, rec Record) {
	nb := s.Model.NBasis
	res.Start = append(res.Start, rec.Start)
	res.End = append(res.End, rec.End)
	res.Coeffs = append(res.Coeffs, nanVector(nb))
	res.Cov = append(res.Cov, nanVector(nb*nb))
	res.Chi2 = append(res.Chi2, math.NaN())
}

func checkAligned(grid Grid, records []Record) error {
	np := len(grid.Lat)
	if len(grid.Lon) != np || len(grid.Alt) != np {
		return fmt.Errorf("fit: grid arrays misaligned: %d lat, %d lon, %d alt",
			np, len(grid.Lon), len(grid.Alt))
	}
	for i, rec := range records {
		if len(rec.Values) != np || len(rec.Errors) != np {
			return fmt.Errorf("fit: record %d arrays misaligned with %d-point grid", i, np)
		}
	}
	return nil
}

// usableRows returns the indexes of samples that can enter the fit: finite
// coordinates, finite value, and a positive finite error. The key encodes the
// mask so callers can detect when it is unchanged from the previous record.
func usableRows(rec Record, coordOK []bool) ([]int, string) {
	rows := make([]int, 0, len(rec.Values))
	mask := make([]byte, len(rec.Values))
	for i, v := range rec.Values {
		if coordOK[i] && finite(v) && finite(rec.Errors[i]) && rec.Errors[i] > 0 {
			rows = append(rows, i)
			mask[i] = 1
		}
	}
	return rows, string(mask)
}

func selectRows(full *mat.Dense, rows []int) *mat.Dense {
	_, nc := full.Dims()
	out := mat.NewDense(len(rows), nc, nil)
	for i, r := range rows {
		out.SetRow(i, mat.Row(nil, r, full))
	}
	return out
}

// footprintHull bounds the spatial validity region of the session with the
// convex hull of the sample positions in ECEF. A degenerate footprint is not
// an error worth aborting a fit over, so it yields an empty hull.
func footprintHull(grid Grid, coordOK []bool) [][3]float64 {
	var pts []hull.Point
	for i := range grid.Lat {
		if !coordOK[i] {
			continue
		}
		x, y, z := coords.GeodeticToECEF(grid.Lat[i], grid.Lon[i], grid.Alt[i])
		pts = append(pts, hull.Point{x, y, z})
	}
	verts, err := hull.Compute(pts)
	if err != nil {
		log.Printf("fit: footprint hull unavailable: %v", err)
		return nil
	}
	out := make([][3]float64, len(verts))
	for i, v := range verts {
		out[i] = v
	}
	return out
}

func flatten(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

func nanVector(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func anyNaN(params map[regularize.Kind]float64) bool {
	for _, v := range params {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
