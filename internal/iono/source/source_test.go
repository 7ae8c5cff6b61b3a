package source

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/amisr-data/ionofit/internal/iono/fit"
)

func maskThresholds() Thresholds {
	return Thresholds{
		ErrLim:       [2]float64{1e9, 1e13},
		Chi2Lim:      [2]float64{0.1, 10},
		GoodFitCodes: []int{1, 2, 3, 4},
	}
}

func TestApplyQualityMaskErrorWindow(t *testing.T) {
	recs := []fit.Record{{
		Values: []float64{1, 2, 3},
		Errors: []float64{1e10, 1e8, 1e14},
	}}
	ApplyQualityMask(recs, nil, nil, maskThresholds())
	if math.IsNaN(recs[0].Values[0]) {
		t.Error("in-window sample was masked")
	}
	if !math.IsNaN(recs[0].Values[1]) {
		t.Error("sample with too-small error was not masked")
	}
	if !math.IsNaN(recs[0].Values[2]) {
		t.Error("sample with too-large error was not masked")
	}
}

func TestApplyQualityMaskChi2AndFitCode(t *testing.T) {
	recs := []fit.Record{{
		Values: []float64{1, 2, 3, 4},
		Errors: []float64{1e10, 1e10, 1e10, 1e10},
	}}
	chi2 := [][]float64{{1, 50, 1, 1}}
	codes := [][]float64{{1, 1, 6, 2}}
	ApplyQualityMask(recs, chi2, codes, maskThresholds())

	if math.IsNaN(recs[0].Values[0]) || math.IsNaN(recs[0].Values[3]) {
		t.Error("good samples were masked")
	}
	if !math.IsNaN(recs[0].Values[1]) {
		t.Error("out-of-window chi-squared was not masked")
	}
	if !math.IsNaN(recs[0].Values[2]) {
		t.Error("bad fit code was not masked")
	}
}

func TestApplyQualityMaskChi2Correction(t *testing.T) {
	// When the median chi-squared is above 100 the whole array carries the
	// +369 offset; after correction these values sit inside the window.
	recs := []fit.Record{{
		Values: []float64{1, 2, 3},
		Errors: []float64{1e10, 1e10, 1e10},
	}}
	chi2 := [][]float64{{370, 371, 372}}
	ApplyQualityMask(recs, chi2, nil, maskThresholds())
	for i, v := range recs[0].Values {
		if math.IsNaN(v) {
			t.Errorf("sample %d masked despite the offset correction (chi2 now %g)", i, chi2[0][i])
		}
	}
}

func TestApplyQualityMaskNoCorrectionBelowMedian(t *testing.T) {
	recs := []fit.Record{{
		Values: []float64{1, 2},
		Errors: []float64{1e10, 1e10},
	}}
	chi2 := [][]float64{{1, 50}}
	ApplyQualityMask(recs, chi2, nil, maskThresholds())
	if math.IsNaN(recs[0].Values[0]) {
		t.Error("in-window chi-squared masked; correction applied when it should not be")
	}
	if !math.IsNaN(recs[0].Values[1]) {
		t.Error("out-of-window chi-squared survived")
	}
}

func TestMemorySource(t *testing.T) {
	src := &MemorySource{
		SourceName: "mem",
		Grid:       fit.Grid{Lat: []float64{64}, Lon: []float64{-147}, Alt: []float64{300e3}},
		Records:    []fit.Record{{Values: []float64{1}, Errors: []float64{0.1}}},
	}
	if src.Name() != "mem" {
		t.Errorf("Name() = %q", src.Name())
	}
	grid, recs, err := src.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(grid.Lat) != 1 || len(recs) != 1 {
		t.Errorf("Load returned %d grid points and %d records", len(grid.Lat), len(recs))
	}
}

const sampleJSON = `{
  "grid": {"lat": [64, 65], "lon": [-147, -147], "alt": [300000, 300000]},
  "records": [
    {
      "start": "2016-09-13T00:00:00Z",
      "end": "2016-09-13T00:01:00Z",
      "values": [1.5e11, null],
      "errors": [1e10, 1e10],
      "chi2": [1.0, 1.0],
      "fitcode": [1, 1]
    }
  ]
}`

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	th := maskThresholds()
	src := &FileSource{Path: path, Mask: &th}
	if src.Name() != "samples.json" {
		t.Errorf("Name() = %q, expected the base filename", src.Name())
	}

	grid, recs, err := src.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	wantGrid := fit.Grid{
		Lat: []float64{64, 65},
		Lon: []float64{-147, -147},
		Alt: []float64{300000, 300000},
	}
	if diff := cmp.Diff(wantGrid, grid); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, expected 1", len(recs))
	}
	if !recs[0].Start.Equal(time.Date(2016, 9, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("record start %v", recs[0].Start)
	}
	if recs[0].Values[0] != 1.5e11 {
		t.Errorf("value[0] = %g", recs[0].Values[0])
	}
	if !math.IsNaN(recs[0].Values[1]) {
		t.Error("JSON null did not decode to NaN")
	}
}

func TestFileSourceMisalignedRecord(t *testing.T) {
	doc := `{
  "grid": {"lat": [64], "lon": [-147], "alt": [300000]},
  "records": [{"start": "2016-09-13T00:00:00Z", "end": "2016-09-13T00:01:00Z", "values": [1, 2], "errors": [1]}]
}`
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	src := &FileSource{Path: path}
	if _, _, err := src.Load(); err == nil {
		t.Fatal("expected an error for misaligned record arrays")
	}
}
