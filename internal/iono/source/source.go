// Package source provides fit.DataSource implementations and the upstream
// quality masking applied to raw per-gate fitter output before a session
// sees it.
package source

import (
	"math"
	"sort"

	"github.com/amisr-data/ionofit/internal/iono/fit"
)

// MemorySource serves a grid and records held in memory. It is the source of
// choice for synthetic runs and tests.
type MemorySource struct {
	SourceName string
	Grid       fit.Grid
	Records    []fit.Record
}

func (s *MemorySource) Name() string { return s.SourceName }

func (s *MemorySource) Load() (fit.Grid, []fit.Record, error) {
	return s.Grid, s.Records, nil
}

// Thresholds are the acceptance windows for upstream fit quality. A sample
// outside any window is treated as missing.
type Thresholds struct {
	// ErrLim is the closed acceptance interval for sample errors.
	ErrLim [2]float64
	// Chi2Lim is the closed acceptance interval for the upstream per-gate
	// chi-squared.
	Chi2Lim [2]float64
	// GoodFitCodes lists the upstream fitter exit codes accepted as
	// converged. Empty accepts every code.
	GoodFitCodes []int
}

// ApplyQualityMask blanks every sample failing the thresholds by setting its
// value to NaN, which removes it from any later fit. chi2 and fitCode are
// per-record arrays aligned with the sample grid; either may be nil to skip
// that check.
//
// Some upstream files carry chi-squared values uniformly overestimated by
// 369 (a known artifact of their processing chain); that is detected by the
// median exceeding 100 and corrected before the window test.
func ApplyQualityMask(recs []fit.Record, chi2, fitCode [][]float64, th Thresholds) {
	if needsChi2Correction(chi2) {
		for _, row := range chi2 {
			for i := range row {
				row[i] -= 369
			}
		}
	}

	for ri := range recs {
		rec := &recs[ri]
		for i := range rec.Values {
			if rec.Errors[i] < th.ErrLim[0] || rec.Errors[i] > th.ErrLim[1] {
				rec.Values[i] = math.NaN()
				continue
			}
			if chi2 != nil {
				if c := chi2[ri][i]; math.IsNaN(c) || c < th.Chi2Lim[0] || c > th.Chi2Lim[1] {
					rec.Values[i] = math.NaN()
					continue
				}
			}
			if fitCode != nil && len(th.GoodFitCodes) > 0 {
				if !goodCode(fitCode[ri][i], th.GoodFitCodes) {
					rec.Values[i] = math.NaN()
				}
			}
		}
	}
}

func goodCode(code float64, good []int) bool {
	for _, g := range good {
		if code == float64(g) {
			return true
		}
	}
	return false
}

func needsChi2Correction(chi2 [][]float64) bool {
	var all []float64
	for _, row := range chi2 {
		for _, c := range row {
			if !math.IsNaN(c) {
				all = append(all, c)
			}
		}
	}
	if len(all) == 0 {
		return false
	}
	return median(all) > 100
}

// median mutates its argument by sorting.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return 0.5 * (xs[n/2-1] + xs[n/2])
}
