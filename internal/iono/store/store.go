// Package store persists fit sessions to a SQLite coefficient file. Each
// session carries its per-record coefficient vectors, covariances, and
// chi-squared scores plus enough metadata (method, kinds, expansion center,
// hull, verbatim configuration) to reproduce or audit the fit later.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/amisr-data/ionofit/internal/iono/fit"
	"github.com/amisr-data/ionofit/internal/iono/regularize"
)

// schema.sql defines the coefficient-file layout: one row per session, one
// row per fitted time record, and the session's footprint hull vertices.
//
//go:embed schema.sql
var schemaSQL string

type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (creating if necessary) a coefficient file at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing coefficient file schema: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// SaveResult writes one session and returns its generated identifier.
func (s *Store) SaveResult(res *fit.Result) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	kinds := make([]string, len(res.Kinds))
	for i, k := range res.Kinds {
		kinds[i] = string(k)
	}
	_, err = tx.Exec(`
		INSERT INTO fit_sessions (
			id, source, method, kinds, nbasis, center_theta, center_phi,
			config_name, config_path, config_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, res.Source, res.Method, strings.Join(kinds, ","), nbasisOf(res),
		res.Center.Theta0, res.Center.Phi0,
		res.Config.Name, res.Config.Path, res.Config.Text)
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}

	for i := range res.Chi2 {
		coeffs := s.encodeFloats(res.Coeffs[i])
		cov := s.encodeFloats(res.Cov[i])
		// SQLite has no NaN; a disqualified record stores NULL chi2.
		chi2 := sql.NullFloat64{Float64: res.Chi2[i], Valid: !math.IsNaN(res.Chi2[i])}
		_, err = tx.Exec(`
			INSERT INTO fit_records (session_id, seq, start_ns, end_ns, chi2, coeffs, cov)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, i, res.Start[i].UnixNano(), res.End[i].UnixNano(), chi2, coeffs, cov)
		if err != nil {
			return "", fmt.Errorf("inserting record %d: %w", i, err)
		}
	}

	for i, v := range res.Hull {
		_, err = tx.Exec(`
			INSERT INTO hull_vertices (session_id, seq, x, y, z)
			VALUES (?, ?, ?, ?, ?)
		`, id, i, v[0], v[1], v[2])
		if err != nil {
			return "", fmt.Errorf("inserting hull vertex %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// LoadResult reads a session back. Timestamps, coefficients, covariances,
// and chi-squared values round-trip exactly; a NULL chi2 loads as NaN.
func (s *Store) LoadResult(id string) (*fit.Result, error) {
	res := &fit.Result{}
	var kinds string
	var nbasis int
	err := s.db.QueryRow(`
		SELECT source, method, kinds, nbasis, center_theta, center_phi,
		       config_name, config_path, config_text
		FROM fit_sessions WHERE id = ?
	`, id).Scan(&res.Source, &res.Method, &kinds, &nbasis,
		&res.Center.Theta0, &res.Center.Phi0,
		&res.Config.Name, &res.Config.Path, &res.Config.Text)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	for _, k := range strings.Split(kinds, ",") {
		if k != "" {
			res.Kinds = append(res.Kinds, regularize.Kind(k))
		}
	}

	rows, err := s.db.Query(`
		SELECT start_ns, end_ns, chi2, coeffs, cov
		FROM fit_records WHERE session_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var startNs, endNs int64
		var chi2 sql.NullFloat64
		var coeffs, cov []byte
		if err := rows.Scan(&startNs, &endNs, &chi2, &coeffs, &cov); err != nil {
			return nil, err
		}
		res.Start = append(res.Start, time.Unix(0, startNs).UTC())
		res.End = append(res.End, time.Unix(0, endNs).UTC())
		if chi2.Valid {
			res.Chi2 = append(res.Chi2, chi2.Float64)
		} else {
			res.Chi2 = append(res.Chi2, math.NaN())
		}
		c, err := s.decodeFloats(coeffs)
		if err != nil {
			return nil, fmt.Errorf("decoding coefficients: %w", err)
		}
		dc, err := s.decodeFloats(cov)
		if err != nil {
			return nil, fmt.Errorf("decoding covariance: %w", err)
		}
		res.Coeffs = append(res.Coeffs, c)
		res.Cov = append(res.Cov, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hrows, err := s.db.Query(`
		SELECT x, y, z FROM hull_vertices WHERE session_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var v [3]float64
		if err := hrows.Scan(&v[0], &v[1], &v[2]); err != nil {
			return nil, err
		}
		res.Hull = append(res.Hull, v)
	}
	return res, hrows.Err()
}

// SessionInfo summarizes one stored session.
type SessionInfo struct {
	ID        string
	Source    string
	Method    string
	CreatedAt string
	Records   int
}

// Sessions lists stored sessions, newest first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.source, s.method, s.created_at,
		       (SELECT COUNT(*) FROM fit_records r WHERE r.session_id = s.id)
		FROM fit_sessions s ORDER BY s.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionInfo
	for rows.Next() {
		var si SessionInfo
		if err := rows.Scan(&si.ID, &si.Source, &si.Method, &si.CreatedAt, &si.Records); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

// encodeFloats packs a float64 slice little-endian and compresses it. The
// raw bit patterns survive, so NaN entries round-trip.
func (s *Store) encodeFloats(xs []float64) []byte {
	buf := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return s.enc.EncodeAll(buf, nil)
}

func (s *Store) decodeFloats(b []byte) ([]float64, error) {
	raw, err := s.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("float blob has %d bytes, not a multiple of 8", len(raw))
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

func nbasisOf(res *fit.Result) int {
	if len(res.Coeffs) > 0 {
		return len(res.Coeffs[0])
	}
	return 0
}
