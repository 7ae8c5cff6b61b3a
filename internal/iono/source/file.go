package source

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/amisr-data/ionofit/internal/iono/fit"
)

// fileDocument is the on-disk layout of a sample file. Values use pointers
// so a JSON null round-trips as NaN, which JSON itself cannot encode.
type fileDocument struct {
	Grid struct {
		Lat []float64 `json:"lat"`
		Lon []float64 `json:"lon"`
		Alt []float64 `json:"alt"`
	} `json:"grid"`
	Records []struct {
		Start   time.Time  `json:"start"`
		End     time.Time  `json:"end"`
		Values  []*float64 `json:"values"`
		Errors  []*float64 `json:"errors"`
		Chi2    []*float64 `json:"chi2,omitempty"`
		FitCode []*float64 `json:"fitcode,omitempty"`
	} `json:"records"`
}

// FileSource reads a JSON sample file and optionally applies quality
// masking before handing records to a session.
type FileSource struct {
	Path string
	// Mask, when set, is applied to the loaded records using the chi2 and
	// fitcode arrays carried in the file.
	Mask *Thresholds
}

func (s *FileSource) Name() string { return filepath.Base(s.Path) }

func (s *FileSource) Load() (fit.Grid, []fit.Record, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return fit.Grid{}, nil, fmt.Errorf("reading sample file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fit.Grid{}, nil, fmt.Errorf("parsing sample file %s: %w", s.Path, err)
	}

	grid := fit.Grid{Lat: doc.Grid.Lat, Lon: doc.Grid.Lon, Alt: doc.Grid.Alt}
	np := len(grid.Lat)

	recs := make([]fit.Record, 0, len(doc.Records))
	var chi2, fitCode [][]float64
	for i, dr := range doc.Records {
		if len(dr.Values) != np || len(dr.Errors) != np {
			return fit.Grid{}, nil, fmt.Errorf("sample file %s: record %d has %d values and %d errors for a %d-point grid",
				s.Path, i, len(dr.Values), len(dr.Errors), np)
		}
		recs = append(recs, fit.Record{
			Start:  dr.Start,
			End:    dr.End,
			Values: densify(dr.Values),
			Errors: densify(dr.Errors),
		})
		if dr.Chi2 != nil {
			chi2 = append(chi2, densify(dr.Chi2))
		}
		if dr.FitCode != nil {
			fitCode = append(fitCode, densify(dr.FitCode))
		}
	}

	if s.Mask != nil {
		if len(chi2) != len(recs) {
			chi2 = nil
		}
		if len(fitCode) != len(recs) {
			fitCode = nil
		}
		ApplyQualityMask(recs, chi2, fitCode, *s.Mask)
	}
	return grid, recs, nil
}

func densify(xs []*float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if x == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *x
		}
	}
	return out
}
