package fit

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/amisr-data/ionofit/internal/iono/model"
	"github.com/amisr-data/ionofit/internal/iono/regularize"
)

type memSource struct {
	name string
	grid Grid
	recs []Record
}

func (m *memSource) Name() string                  { return m.name }
func (m *memSource) Load() (Grid, []Record, error) { return m.grid, m.recs, nil }

// testGrid is a 5×2 geodetic grid at a fixed 300 km altitude, roughly the
// footprint of a high-latitude radar.
func testGrid() Grid {
	var g Grid
	for _, lat := range []float64{64, 65} {
		for _, lon := range []float64{-150, -149, -148, -147, -146} {
			g.Lat = append(g.Lat, lat)
			g.Lon = append(g.Lon, lon)
			g.Alt = append(g.Alt, 300e3)
		}
	}
	return g
}

func constantRecord(start time.Time, n int, value float64) Record {
	rec := Record{Start: start, End: start.Add(time.Minute)}
	for i := 0; i < n; i++ {
		rec.Values = append(rec.Values, value)
		rec.Errors = append(rec.Errors, 0.1)
	}
	return rec
}

// zeroSession builds a session whose manual searcher applies no
// regularization at all.
func zeroSession(t *testing.T) *Session {
	t.Helper()
	kinds := []regularize.Kind{regularize.KindZerothOrder}
	searcher, err := regularize.NewSearcher("manual", regularize.Options{
		Kinds:  kinds,
		Manual: map[regularize.Kind]float64{regularize.KindZerothOrder: 0},
	})
	if err != nil {
		t.Fatalf("NewSearcher failed: %v", err)
	}
	return &Session{
		Model:    model.New(2, 3, 10),
		Kinds:    kinds,
		Method:   "manual",
		Searcher: searcher,
		ZMax:     10,
	}
}

func TestConstantFieldRecovery(t *testing.T) {
	// With more basis functions than samples and zero regularization, the
	// minimum-norm solve interpolates the data exactly, so evaluating the
	// fitted model at the sample positions must give back the constant.
	grid := testGrid()
	start := time.Date(2016, 9, 13, 0, 0, 0, 0, time.UTC)
	src := &memSource{
		name: "synthetic",
		grid: grid,
		recs: []Record{constantRecord(start, len(grid.Lat), 1.0)},
	}

	s := zeroSession(t)
	res, err := s.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Chi2) != 1 {
		t.Fatalf("got %d result slots, expected 1", len(res.Chi2))
	}
	if res.Chi2[0] > 1e-6 {
		t.Errorf("chi-squared of the interpolating fit is %g, expected near zero", res.Chi2[0])
	}
	if len(res.Coeffs[0]) != s.Model.NBasis {
		t.Fatalf("coefficient vector has %d entries, expected %d", len(res.Coeffs[0]), s.Model.NBasis)
	}

	pts := model.PointsFromGeodetic(grid.Lat, grid.Lon, grid.Alt)
	ev := s.Model.Eval(pts, res.Center, res.Coeffs[0], nil, model.EvalOptions{})
	for i, v := range ev.Param {
		if math.Abs(v-1.0) > 1e-6 {
			t.Errorf("fitted model at sample %d evaluates to %.9g, expected 1", i, v)
		}
	}

	if len(res.Hull) < 4 {
		t.Errorf("footprint hull has %d vertices, expected at least 4", len(res.Hull))
	}
	if res.Source != "synthetic" {
		t.Errorf("source name %q not carried into the result", res.Source)
	}
}

func TestAllNaNRecordDegradesToNaNSlot(t *testing.T) {
	grid := testGrid()
	start := time.Date(2016, 9, 13, 0, 0, 0, 0, time.UTC)

	good := constantRecord(start, len(grid.Lat), 1.0)
	bad := constantRecord(start.Add(time.Minute), len(grid.Lat), math.NaN())
	partial := constantRecord(start.Add(2*time.Minute), len(grid.Lat), 1.0)
	partial.Values[3] = math.NaN()
	partial.Errors[7] = -1

	src := &memSource{name: "mixed", grid: grid, recs: []Record{good, bad, partial}}
	s := zeroSession(t)
	res, err := s.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Chi2) != 3 {
		t.Fatalf("got %d result slots, expected 3 (NaN records must keep their slot)", len(res.Chi2))
	}

	if math.IsNaN(res.Chi2[0]) {
		t.Error("good record unexpectedly NaN")
	}
	if !math.IsNaN(res.Chi2[1]) {
		t.Error("all-NaN record did not yield NaN chi-squared")
	}
	for _, v := range res.Coeffs[1] {
		if !math.IsNaN(v) {
			t.Fatal("all-NaN record did not yield an all-NaN coefficient vector")
		}
	}
	for _, v := range res.Cov[1] {
		if !math.IsNaN(v) {
			t.Fatal("all-NaN record did not yield an all-NaN covariance")
		}
	}
	if len(res.Cov[1]) != s.Model.NBasis*s.Model.NBasis {
		t.Errorf("NaN covariance slot has %d entries, expected %d",
			len(res.Cov[1]), s.Model.NBasis*s.Model.NBasis)
	}
	if math.IsNaN(res.Chi2[2]) {
		t.Error("partially masked record should still fit")
	}
	if !res.Start[1].Equal(bad.Start) {
		t.Error("result slots not aligned with record timestamps")
	}
}

func TestUnsupportedKindAbortsSession(t *testing.T) {
	grid := testGrid()
	start := time.Date(2016, 9, 13, 0, 0, 0, 0, time.UTC)
	src := &memSource{
		name: "synthetic",
		grid: grid,
		recs: []Record{constantRecord(start, len(grid.Lat), 1.0)},
	}

	s := zeroSession(t)
	s.Kinds = append(s.Kinds, regularize.Kind("wavelet"))
	_, err := s.Run(context.Background(), src)
	if err == nil {
		t.Fatal("expected a configuration error for the unsupported kind")
	}
	var uk *regularize.UnsupportedKindError
	if !errors.As(err, &uk) {
		t.Fatalf("error %v is not an UnsupportedKindError", err)
	}
}

func TestTimeWindowRestrictsRecords(t *testing.T) {
	grid := testGrid()
	start := time.Date(2016, 9, 13, 0, 0, 0, 0, time.UTC)
	var recs []Record
	for i := 0; i < 3; i++ {
		recs = append(recs, constantRecord(start.Add(time.Duration(i)*time.Hour), len(grid.Lat), 1.0))
	}
	src := &memSource{name: "windowed", grid: grid, recs: recs}

	s := zeroSession(t)
	s.Start = start.Add(30 * time.Minute)
	s.End = start.Add(90 * time.Minute)
	res, err := s.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Chi2) != 1 {
		t.Fatalf("got %d result slots, expected only the record inside the window", len(res.Chi2))
	}
	if !res.Start[0].Equal(recs[1].Start) {
		t.Errorf("wrong record selected: start %v", res.Start[0])
	}
}

func TestMisalignedRecordRejected(t *testing.T) {
	grid := testGrid()
	rec := constantRecord(time.Now(), len(grid.Lat)-1, 1.0)
	src := &memSource{name: "bad", grid: grid, recs: []Record{rec}}
	s := zeroSession(t)
	if _, err := s.Run(context.Background(), src); err == nil {
		t.Fatal("expected an error for a record misaligned with the grid")
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	grid := testGrid()
	src := &memSource{
		name: "cancelled",
		grid: grid,
		recs: []Record{constantRecord(time.Now(), len(grid.Lat), 1.0)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := zeroSession(t)
	if _, err := s.Run(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
