package unfold

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/qunfold/qunfold/internal/histogram"
	"github.com/qunfold/qunfold/internal/qubo"
	"github.com/qunfold/qunfold/internal/response"
)

// InversionUnfold solves R t = d by least squares, without
// regularization or non-negativity. It is the classical matrix
// inversion baseline: exact on well-conditioned operators, wild on
// ill-conditioned ones, and useful as an oracle when comparing against
// the binary-encoded solve.
func InversionUnfold(op *response.Operator, measured *histogram.Histogram) ([]float64, error) {
	rows, cols := op.Dims()
	if measured.NBins() != rows {
		return nil, qubo.ShapeMismatchError{Context: "inversion unfold", Got: measured.NBins(), Want: rows}
	}

	d := mat.NewVecDense(rows, measured.Counts())
	var t mat.VecDense
	if err := t.SolveVec(op.Matrix(), d); err != nil {
		return nil, fmt.Errorf("response matrix is rank deficient: %w", err)
	}

	out := make([]float64, cols)
	copy(out, t.RawVector().Data)
	return out, nil
}

// RegularizedFit minimizes the continuous relaxation of the unfolding
// objective, ||W^(1/2)(R t - d)||^2 + lambda * ||L t||^2 over t >= 0,
// by penalty-method gradient descent. It shares the objective with the
// binary encoding but not the grid, so it bounds how much of a
// discrepancy is due to discretization rather than the model.
func RegularizedFit(op *response.Operator, measured *histogram.Histogram, reg qubo.RegSpec) ([]float64, error) {
	rows, cols := op.Dims()
	if measured.NBins() != rows {
		return nil, qubo.ShapeMismatchError{Context: "regularized fit", Got: measured.NBins(), Want: rows}
	}
	if reg.Strength < 0 {
		return nil, qubo.EncodingError{Reason: fmt.Sprintf("regularization strength must be >= 0, got %v", reg.Strength)}
	}
	form := reg.Form
	switch form {
	case qubo.RegNone, qubo.RegCurvature, qubo.RegSmoothness, qubo.RegTikhonov:
	case "":
		form = qubo.RegNone
	default:
		return nil, qubo.EncodingError{Reason: fmt.Sprintf("unknown regularization form %q", form)}
	}

	r := op.Matrix()
	d := measured.Counts()
	w := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := measured.Error(i) * measured.Error(i)
		if v < 1 {
			v = 1
		}
		w[i] = 1 / v
	}

	var penalty *mat.Dense
	if form != qubo.RegNone && reg.Strength > 0 {
		penalty = qubo.PenaltyMatrix(form, cols)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectNonNegative(x)

			obj := 0.0
			for i := 0; i < rows; i++ {
				resid := -d[i]
				for j := 0; j < cols; j++ {
					resid += r.At(i, j) * xProj[j]
				}
				obj += w[i] * resid * resid
			}
			if penalty != nil {
				for j := 0; j < cols; j++ {
					for k := 0; k < cols; k++ {
						obj += reg.Strength * xProj[j] * penalty.At(j, k) * xProj[k]
					}
				}
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectNonNegative(x)

			for j := range grad {
				grad[j] = 0
			}
			for i := 0; i < rows; i++ {
				resid := -d[i]
				for j := 0; j < cols; j++ {
					resid += r.At(i, j) * xProj[j]
				}
				for j := 0; j < cols; j++ {
					grad[j] += 2 * w[i] * resid * r.At(i, j)
				}
			}
			if penalty != nil {
				for j := 0; j < cols; j++ {
					for k := 0; k < cols; k++ {
						grad[j] += 2 * reg.Strength * penalty.At(j, k) * xProj[k]
					}
				}
			}
		},
	}

	// Start from the measured totals spread evenly across truth bins.
	initial := make([]float64, cols)
	start := measured.Sum() / float64(cols)
	for j := range initial {
		initial[j] = start
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("regularized fit failed: %w", err)
		}
	}
	if result.Status != optimize.Success && result.Status != optimize.GradientThreshold && result.Status != optimize.FunctionConvergence {
		return nil, fmt.Errorf("regularized fit did not converge: status=%v", result.Status)
	}

	return projectNonNegative(result.X), nil
}

func projectNonNegative(x []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(0, x[i])
	}
	return proj
}
