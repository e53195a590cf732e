// Package qubo encodes histogram unfolding as a quadratic binary
// optimization problem. The unfolded spectrum t is written as a
// fixed-width binary expansion per truth bin, and the weighted
// least-squares objective
//
//	(R*t - d)^T W (R*t - d) + strength * penalty(t)
//
// is expanded in those digits to produce the coefficient matrix Q.
// W is diagonal inverse measured variance and the penalty is chosen by
// RegSpec. Encoding is a pure function of its inputs.
package qubo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/qunfold/qunfold/internal/histogram"
	"github.com/qunfold/qunfold/internal/response"
)

// varianceFloor bounds the inverse-variance weights. Bins reported
// with zero uncertainty get unit Poisson variance instead of an
// infinite weight.
const varianceFloor = 1.0

// Encode builds the QUBO instance for unfolding `measured` through
// `op`. The measured bin count must equal the response row count and
// the encoding spec must be valid; mismatches fail immediately and are
// never coerced. When enc.Scales is nil the per-bin range is derived
// from the measured magnitude via DeriveScales.
func Encode(op *response.Operator, measured *histogram.Histogram, reg RegSpec, enc EncodingSpec) (*Instance, error) {
	rows, cols := op.Dims()
	if measured.NBins() != rows {
		return nil, ShapeMismatchError{Context: "measured histogram", Got: measured.NBins(), Want: rows}
	}
	if enc.BitsPerBin < 1 {
		return nil, EncodingError{Reason: fmt.Sprintf("bits per bin must be >= 1, got %d", enc.BitsPerBin)}
	}
	if enc.BitsPerBin > 62 {
		return nil, EncodingError{Reason: fmt.Sprintf("bits per bin %d overflows the digit weights", enc.BitsPerBin)}
	}
	if reg.Strength < 0 {
		return nil, EncodingError{Reason: fmt.Sprintf("regularization strength must be >= 0, got %v", reg.Strength)}
	}
	switch reg.Form {
	case RegNone, RegCurvature, RegSmoothness, RegTikhonov:
	case "":
		reg.Form = RegNone
	default:
		return nil, EncodingError{Reason: fmt.Sprintf("unknown regularization form %q", reg.Form)}
	}
	if enc.Scales == nil {
		enc.Scales = DeriveScales(measured, cols)
	}
	if len(enc.Scales) != cols {
		return nil, ShapeMismatchError{Context: "per-bin scales", Got: len(enc.Scales), Want: cols}
	}
	for j, s := range enc.Scales {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, EncodingError{Reason: fmt.Sprintf("scale for bin %d must be a positive real, got %v", j, s)}
		}
	}

	d := measured.Counts()
	errs := measured.Errors()

	// Diagonal inverse-variance weights, floored so that bins with
	// zero stated uncertainty stay finite.
	w := make([]float64, rows)
	for i := range w {
		v := errs[i] * errs[i]
		if v < varianceFloor {
			v = varianceFloor
		}
		w[i] = 1 / v
	}

	r := op.Matrix()

	// A = R^T W R + strength * M, the bin-space quadratic form.
	a := mat.NewDense(cols, cols, nil)
	for j1 := 0; j1 < cols; j1++ {
		for j2 := j1; j2 < cols; j2++ {
			s := 0.0
			for i := 0; i < rows; i++ {
				s += r.At(i, j1) * w[i] * r.At(i, j2)
			}
			a.Set(j1, j2, s)
			a.Set(j2, j1, s)
		}
	}
	if reg.Strength > 0 && reg.Form != RegNone {
		m := PenaltyMatrix(reg.Form, cols)
		a.Add(a, scaled(m, reg.Strength))
	}

	// b = R^T W d, the bin-space linear term.
	b := make([]float64, cols)
	for j := 0; j < cols; j++ {
		s := 0.0
		for i := 0; i < rows; i++ {
			s += r.At(i, j) * w[i] * d[i]
		}
		b[j] = s
	}

	// offset = d^T W d, so the minimum energy equals the weighted
	// residual of the decoded spectrum (plus the penalty term).
	offset := 0.0
	for i := 0; i < rows; i++ {
		offset += d[i] * w[i] * d[i]
	}

	// Expand in binary digits: t = C x with
	// C[j, j*bits+k] = resolution_j * 2^k, giving Q = C^T A C with
	// the linear part -2 C^T b folded into the diagonal. Cross terms
	// between digits of different bins and digit pairs within one bin
	// both come out of the same product.
	nVars := enc.NumVars(cols)
	digit := make([]float64, nVars)
	bin := make([]int, nVars)
	for j := 0; j < cols; j++ {
		unit := enc.Resolution(j)
		for k := 0; k < enc.BitsPerBin; k++ {
			p := j*enc.BitsPerBin + k
			digit[p] = unit * float64(int(1)<<k)
			bin[p] = j
		}
	}

	q := mat.NewSymDense(nVars, nil)
	for p := 0; p < nVars; p++ {
		diag := digit[p]*digit[p]*a.At(bin[p], bin[p]) - 2*digit[p]*b[bin[p]]
		q.SetSym(p, p, diag)
		for pp := p + 1; pp < nVars; pp++ {
			q.SetSym(p, pp, digit[p]*digit[pp]*a.At(bin[p], bin[pp]))
		}
	}

	return &Instance{q: q, offset: offset, nBins: cols, enc: enc}, nil
}

// PenaltyMatrix returns the bin-space quadratic penalty M so that
// penalty(t) = t^T M t.
func PenaltyMatrix(form RegForm, n int) *mat.Dense {
	switch form {
	case RegTikhonov:
		m := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			m.Set(i, i, 1)
		}
		return m
	case RegCurvature:
		// G is the discrete Laplacian (1, -2, 1); the penalty is
		// ||G t||^2 = t^T G^T G t.
		g := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			g.Set(i, i, -2)
			if i > 0 {
				g.Set(i, i-1, 1)
			}
			if i < n-1 {
				g.Set(i, i+1, 1)
			}
		}
		m := mat.NewDense(n, n, nil)
		m.Mul(g.T(), g)
		return m
	case RegSmoothness:
		if n < 2 {
			return mat.NewDense(n, n, nil)
		}
		// D is the (n-1) x n first-difference matrix; the penalty is
		// ||D t||^2, the sum of squared adjacent-bin differences.
		d := mat.NewDense(n-1, n, nil)
		for i := 0; i < n-1; i++ {
			d.Set(i, i, -1)
			d.Set(i, i+1, 1)
		}
		m := mat.NewDense(n, n, nil)
		m.Mul(d.T(), d)
		return m
	default:
		return mat.NewDense(n, n, nil)
	}
}

func scaled(m *mat.Dense, f float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Scale(f, m)
	return out
}
