// Package response models the detector response operator: the matrix
// of migration probabilities from truth bins to measured bins, with the
// normalization and conditioning diagnostics the unfolding pipeline
// relies on.
package response

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// columnSumTolerance absorbs float accumulation when checking the
// efficiency invariant (column sums <= 1).
const columnSumTolerance = 1e-9

// Operator is a (measured x truth) migration matrix. Entry (i, j) is
// the probability that truth bin j contributes to measured bin i.
// Operators are immutable once constructed and safe to share across
// measured spectra from the same detector configuration.
type Operator struct {
	m    *mat.Dense
	rows int // measured bins
	cols int // truth bins
}

// New validates and wraps a migration matrix. All entries must be
// non-negative and each column must sum to at most 1: a truth bin may
// lose entries to inefficiency but never gain them.
func New(data [][]float64) (*Operator, error) {
	rows := len(data)
	if rows == 0 {
		return nil, fmt.Errorf("response matrix is empty")
	}
	cols := len(data[0])
	if cols == 0 {
		return nil, fmt.Errorf("response matrix has no columns")
	}

	flat := make([]float64, 0, rows*cols)
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("response row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("response entry (%d,%d) is invalid: %v (entries must be non-negative reals)", i, j, v)
			}
			flat = append(flat, v)
		}
	}

	op := &Operator{m: mat.NewDense(rows, cols, flat), rows: rows, cols: cols}
	for j := 0; j < cols; j++ {
		if s := op.Efficiency(j); s > 1+columnSumTolerance {
			return nil, fmt.Errorf("response column %d sums to %v, exceeding 1 (efficiency gain is not allowed)", j, s)
		}
	}
	return op, nil
}

// NewFromCounts builds an operator from raw migration counts, as
// produced by a Monte Carlo sample: entry (i, j) is the number of
// events generated in truth bin j and measured in bin i. Each column
// is divided by its total before the probability validation runs, so
// integer counts are accepted directly. Columns with no events stay
// zero.
func NewFromCounts(data [][]float64) (*Operator, error) {
	rows := len(data)
	if rows == 0 {
		return nil, fmt.Errorf("response matrix is empty")
	}
	cols := len(data[0])

	totals := make([]float64, cols)
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("response row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("response entry (%d,%d) is invalid: %v (counts must be non-negative reals)", i, j, v)
			}
			totals[j] += v
		}
	}

	normalized := make([][]float64, rows)
	for i, row := range data {
		normalized[i] = make([]float64, cols)
		for j, v := range row {
			if totals[j] > 0 {
				normalized[i][j] = v / totals[j]
			}
		}
	}
	return New(normalized)
}

// Identity returns an n x n unit-efficiency operator with no
// migration. Useful as a closure test reference.
func Identity(n int) *Operator {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return &Operator{m: m, rows: n, cols: n}
}

// Dims returns (measured bins, truth bins).
func (op *Operator) Dims() (rows, cols int) { return op.rows, op.cols }

// At returns entry (i, j).
func (op *Operator) At(i, j int) float64 { return op.m.At(i, j) }

// Matrix returns a copy of the underlying matrix.
func (op *Operator) Matrix() *mat.Dense {
	out := mat.NewDense(op.rows, op.cols, nil)
	out.Copy(op.m)
	return out
}

// Efficiency returns the detection efficiency of truth bin j, the sum
// of column j. Zero means the bin is invisible to the detector.
func (op *Operator) Efficiency(j int) float64 {
	s := 0.0
	for i := 0; i < op.rows; i++ {
		s += op.m.At(i, j)
	}
	return s
}

// Efficiencies returns the per-truth-bin efficiencies.
func (op *Operator) Efficiencies() []float64 {
	out := make([]float64, op.cols)
	for j := range out {
		out[j] = op.Efficiency(j)
	}
	return out
}

// NormalizeRows returns a copy whose non-zero rows each sum to 1, so
// each measured bin reads as a distribution over the truth bins that
// feed it. Zero rows are left untouched. For raw migration counts use
// NewFromCounts, which normalizes per truth bin instead.
func (op *Operator) NormalizeRows() *Operator {
	out := mat.NewDense(op.rows, op.cols, nil)
	for i := 0; i < op.rows; i++ {
		rowSum := 0.0
		for j := 0; j < op.cols; j++ {
			rowSum += op.m.At(i, j)
		}
		for j := 0; j < op.cols; j++ {
			if rowSum > 0 {
				out.Set(i, j, op.m.At(i, j)/rowSum)
			}
		}
	}
	return &Operator{m: out, rows: op.rows, cols: op.cols}
}

// Apply folds a truth-level count vector through the response,
// producing the expected measured spectrum R*t.
func (op *Operator) Apply(truth []float64) ([]float64, error) {
	if len(truth) != op.cols {
		return nil, fmt.Errorf("truth vector has %d bins, response expects %d", len(truth), op.cols)
	}
	out := make([]float64, op.rows)
	v := mat.NewVecDense(op.cols, truth)
	res := mat.NewVecDense(op.rows, out)
	res.MulVec(op.m, v)
	return out, nil
}

// ConditionNumber returns the 2-norm condition number of the response,
// the ratio of its largest to smallest singular value. Large values
// signal an ill-posed unfolding where regularization matters.
// Returns +Inf for a rank-deficient response.
func (op *Operator) ConditionNumber() (float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(op.m, mat.SVDNone); !ok {
		return 0, fmt.Errorf("SVD of %dx%d response did not converge", op.rows, op.cols)
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return 0, fmt.Errorf("response has no singular values")
	}
	smallest := values[len(values)-1]
	if smallest == 0 {
		return math.Inf(1), nil
	}
	return values[0] / smallest, nil
}
