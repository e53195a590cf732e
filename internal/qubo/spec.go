package qubo

import (
	"math"

	"github.com/qunfold/qunfold/internal/histogram"
)

// RegForm selects the regularization term added to the least-squares
// objective.
type RegForm string

const (
	// RegNone adds no regularization; the objective is pure weighted
	// least squares.
	RegNone RegForm = "none"
	// RegCurvature penalizes the discrete second derivative of the
	// unfolded spectrum (Laplacian smoothness).
	RegCurvature RegForm = "curvature"
	// RegSmoothness penalizes squared differences between adjacent
	// truth bins.
	RegSmoothness RegForm = "smoothness"
	// RegTikhonov penalizes the squared norm of the unfolded spectrum.
	RegTikhonov RegForm = "tikhonov"
)

// RegSpec is the regularization choice for one encoding. The form and
// strength are explicit parameters so sweeps can compare encodings
// side by side.
type RegSpec struct {
	Form     RegForm
	Strength float64
}

// DefaultBitsPerBin is the digit count used when a request leaves the
// encoding depth unset. Four digits give 16 levels per bin, enough for
// comparison studies while keeping small instances exactly solvable.
const DefaultBitsPerBin = 4

// EncodingSpec fixes the binary expansion used to represent the
// unfolded spectrum: BitsPerBin digits per truth bin with geometric
// weights, scaled so that the all-ones digit pattern reaches Scales[j]
// in bin j. Multiple specs can coexist in one process.
type EncodingSpec struct {
	BitsPerBin int
	Scales     []float64
}

// NumVars returns the total number of binary variables for nBins
// truth bins.
func (s EncodingSpec) NumVars(nBins int) int { return nBins * s.BitsPerBin }

// Resolution returns the smallest representable increment of bin j,
// the value of its least significant digit.
func (s EncodingSpec) Resolution(j int) float64 {
	return s.Scales[j] / float64(int(1)<<s.BitsPerBin-1)
}

// BinValue reconstructs the count of truth bin j from the full binary
// assignment. This is the single definition of the digit weighting;
// the encoder and the decoder both go through it, which is what makes
// encode-then-decode an exact round trip.
func (s EncodingSpec) BinValue(j int, bits []uint8) float64 {
	unit := s.Resolution(j)
	v := 0.0
	for k := 0; k < s.BitsPerBin; k++ {
		if bits[j*s.BitsPerBin+k] != 0 {
			v += unit * float64(int(1)<<k)
		}
	}
	return v
}

// DeriveScales builds a per-bin range estimate from the measured
// histogram's magnitude: the next power of two above twice the largest
// measured count, minus one. The headroom covers spectra where
// inefficiency makes the truth exceed the measurement; the power-of-two
// rounding keeps digit values on an integer grid when counts are
// integral.
func DeriveScales(measured *histogram.Histogram, nTruthBins int) []float64 {
	m := measured.MaxCount()
	scale := 1.0
	if m > 0 {
		scale = math.Pow(2, math.Ceil(math.Log2(2*m))) - 1
	}
	scales := make([]float64, nTruthBins)
	for j := range scales {
		scales[j] = scale
	}
	return scales
}
