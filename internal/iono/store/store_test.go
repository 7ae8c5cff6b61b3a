package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amisr-data/ionofit/internal/iono/fit"
	"github.com/amisr-data/ionofit/internal/iono/model"
	"github.com/amisr-data/ionofit/internal/iono/regularize"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "coeffs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() *fit.Result {
	start := time.Date(2016, 9, 13, 0, 0, 0, 0, time.UTC)
	nan := math.NaN()
	return &fit.Result{
		Source: "20160913.001_lp_1min-fitcal.h5",
		Method: "chi2",
		Kinds:  []regularize.Kind{regularize.KindCurvature, regularize.KindZerothOrder},
		Config: fit.ConfigSnapshot{
			Name: "volumetric.json",
			Path: "/etc/ionofit/volumetric.json",
			Text: `{"method": "chi2"}`,
		},
		Center: model.CenterPoint{Theta0: -0.45, Phi0: -2.57},
		Hull: [][3]float64{
			{1.1e6, -2.2e6, 6.0e6},
			{1.2e6, -2.1e6, 6.0e6},
			{1.0e6, -2.3e6, 6.1e6},
			{1.1e6, -2.2e6, 6.2e6},
		},
		Start:  []time.Time{start, start.Add(time.Minute)},
		End:    []time.Time{start.Add(time.Minute), start.Add(2 * time.Minute)},
		Coeffs: [][]float64{{1.5e11, -3.2e9, 7.7e8}, {nan, nan, nan}},
		Cov: [][]float64{
			{1, 0.1, 0.2, 0.1, 2, 0.3, 0.2, 0.3, 3},
			{nan, nan, nan, nan, nan, nan, nan, nan, nan},
		},
		Chi2: []float64{42.5, nan},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := sampleResult()

	id, err := s.SaveResult(want)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.LoadResult(id)
	require.NoError(t, err)

	require.Equal(t, want.Source, got.Source)
	require.Equal(t, want.Method, got.Method)
	require.Equal(t, want.Kinds, got.Kinds)
	require.Equal(t, want.Config, got.Config)
	require.Equal(t, want.Center, got.Center)
	require.Equal(t, want.Hull, got.Hull)

	require.Len(t, got.Chi2, len(want.Chi2))
	for i := range want.Chi2 {
		require.True(t, want.Start[i].Equal(got.Start[i]), "record %d start", i)
		require.True(t, want.End[i].Equal(got.End[i]), "record %d end", i)
		requireFloatsEqual(t, want.Coeffs[i], got.Coeffs[i])
		requireFloatsEqual(t, want.Cov[i], got.Cov[i])
		if math.IsNaN(want.Chi2[i]) {
			require.True(t, math.IsNaN(got.Chi2[i]), "record %d chi2", i)
		} else {
			require.Equal(t, want.Chi2[i], got.Chi2[i], "record %d chi2", i)
		}
	}
}

// requireFloatsEqual compares bit-for-bit so NaN slots count as equal.
func requireFloatsEqual(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, math.Float64bits(want[i]), math.Float64bits(got[i]),
			"element %d: %g vs %g", i, want[i], got[i])
	}
}

func TestLoadMissingSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadResult("no-such-session")
	require.Error(t, err)
}

func TestSessionsListing(t *testing.T) {
	s := openTestStore(t)
	id1, err := s.SaveResult(sampleResult())
	require.NoError(t, err)
	id2, err := s.SaveResult(sampleResult())
	require.NoError(t, err)

	sessions, err := s.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	seen := map[string]bool{}
	for _, si := range sessions {
		seen[si.ID] = true
		require.Equal(t, 2, si.Records)
		require.Equal(t, "chi2", si.Method)
	}
	require.True(t, seen[id1] && seen[id2])
}

func TestEmptyResultRoundTrip(t *testing.T) {
	s := openTestStore(t)
	res := &fit.Result{Source: "empty", Method: "manual",
		Kinds: []regularize.Kind{regularize.KindCurvature}}
	id, err := s.SaveResult(res)
	require.NoError(t, err)
	got, err := s.LoadResult(id)
	require.NoError(t, err)
	require.Empty(t, got.Chi2)
	require.Empty(t, got.Hull)
	require.Equal(t, res.Kinds, got.Kinds)
}
