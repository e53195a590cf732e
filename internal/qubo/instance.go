package qubo

import (
	"gonum.org/v1/gonum/mat"
)

// Instance is one quadratic binary optimization problem: minimize
// x^T Q x + offset over binary vectors x, where Q is symmetric and the
// linear coefficients are folded into the diagonal (x_i^2 = x_i).
// An instance is owned by the Encode call that produced it and carries
// the encoding spec needed to decode its solutions.
type Instance struct {
	q      *mat.SymDense
	offset float64
	nBins  int
	enc    EncodingSpec
}

// NumVars returns the number of binary variables B.
func (in *Instance) NumVars() int { return in.q.SymmetricDim() }

// NumBins returns the number of truth bins this instance encodes.
func (in *Instance) NumBins() int { return in.nBins }

// Encoding returns the binary expansion this instance was built with.
func (in *Instance) Encoding() EncodingSpec { return in.enc }

// Coeff returns the symmetric coefficient Q[i][j].
func (in *Instance) Coeff(i, j int) float64 { return in.q.At(i, j) }

// Offset returns the constant objective term. It makes the energy of
// the encoded optimum comparable with the weighted residual of the
// decoded spectrum.
func (in *Instance) Offset() float64 { return in.offset }

// Matrix returns a copy of Q.
func (in *Instance) Matrix() *mat.SymDense {
	n := in.q.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(in.q)
	return out
}

// Energy evaluates the objective for a binary assignment. The
// assignment length must equal NumVars; Energy panics otherwise, since
// solvers are the only callers and always pass vectors they sized from
// the instance.
func (in *Instance) Energy(x []uint8) float64 {
	n := in.q.SymmetricDim()
	if len(x) != n {
		panic("qubo: assignment length does not match instance size")
	}
	e := in.offset
	for i := 0; i < n; i++ {
		if x[i] == 0 {
			continue
		}
		e += in.q.At(i, i)
		for j := i + 1; j < n; j++ {
			if x[j] != 0 {
				e += 2 * in.q.At(i, j)
			}
		}
	}
	return e
}

// FlipDelta returns the energy change from flipping variable i in
// assignment x, in O(B) time. Simulated annealing proposals use this
// instead of re-evaluating the full quadratic form.
func (in *Instance) FlipDelta(x []uint8, i int) float64 {
	n := in.q.SymmetricDim()
	sign := 1.0
	if x[i] != 0 {
		sign = -1.0
	}
	delta := sign * in.q.At(i, i)
	for j := 0; j < n; j++ {
		if j != i && x[j] != 0 {
			delta += 2 * sign * in.q.At(i, j)
		}
	}
	return delta
}
