// Package regularize implements the regularized weighted least-squares
// engine: data-independent penalty matrices over the basis index space, the
// rank-robust solver for coefficients and covariance, and the strategies
// that select per-kind regularization strengths.
package regularize

import (
	"errors"
	"fmt"
)

// Kind identifies one regularization penalty.
type Kind string

const (
	// KindCurvature penalizes radial curvature of the fitted field (the
	// "Omega" matrix).
	KindCurvature Kind = "curvature"
	// KindZerothOrder penalizes the field amplitude itself (the "Psi"
	// matrix).
	KindZerothOrder Kind = "0thorder"
)

// ParseKind maps configuration spellings onto the closed Kind enumeration.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "curvature":
		return KindCurvature, nil
	case "0thorder", "zeroth-order", "zerothorder":
		return KindZerothOrder, nil
	}
	return "", &UnsupportedKindError{Kind: Kind(s)}
}

// UnsupportedKindError is the fatal configuration error raised when a
// requested regularization kind has no penalty matrix under the active basis
// configuration. It aborts the whole session before any record is fit.
type UnsupportedKindError struct {
	Kind Kind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("regularization kind %q is not supported by the basis model", e.Kind)
}

// Per-record recoverable search failures. The orchestrator converts these to
// NaN parameters, which disqualify the record's fit without aborting the
// session.
var (
	// ErrNoBracket reports that the chi-squared objective never changed
	// sign over the searched decades for any target scale factor.
	ErrNoBracket = errors.New("no root of chi^2 - nu bracketed in (1e-100, 1)")
	// ErrNoConvergence reports that the GCV minimizer failed to converge.
	ErrNoConvergence = errors.New("gcv minimizer did not converge")
)
