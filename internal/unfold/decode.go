// Package unfold turns solver output back into physics: it decodes
// binary assignments into unfolded histograms, scores them against a
// reference truth, estimates uncertainties by bootstrap resampling,
// and carries the classical baseline used for benchmarking.
package unfold

import (
	"fmt"
	"math"

	"github.com/qunfold/qunfold/internal/histogram"
	"github.com/qunfold/qunfold/internal/qubo"
	"github.com/qunfold/qunfold/internal/solver"
)

// DecodingError reports a candidate whose bit count disagrees with
// the declared encoding.
type DecodingError struct {
	Got  int
	Want int
}

func (e DecodingError) Error() string {
	return fmt.Sprintf("candidate has %d bits, encoding declares %d", e.Got, e.Want)
}

// Provenance records how an unfolded histogram was produced, enough to
// reproduce the run.
type Provenance struct {
	RunID       string
	Solver      string
	BitsPerBin  int
	RegForm     string
	RegStrength float64
	Seed        int64
	Energy      float64
}

// UnfoldedHistogram is a decoded truth-level spectrum plus its
// provenance. It holds no references back to the inputs it was
// derived from.
type UnfoldedHistogram struct {
	Hist       *histogram.Histogram
	Provenance Provenance
}

// Decode reconstructs the unfolded histogram from a solution
// candidate. It is the exact inverse of the encoder's digit weighting:
// each bin's count is rebuilt through the same EncodingSpec the
// instance was built with. Counts are non-negative by construction of
// the expansion; no clamping is involved. The uncertainties are set to
// sqrt(count) until a bootstrap estimate replaces them.
func Decode(cand solver.Candidate, enc qubo.EncodingSpec, edges []float64, prov Provenance) (*UnfoldedHistogram, error) {
	nBins := len(enc.Scales)
	want := enc.NumVars(nBins)
	if len(cand.Bits) != want {
		return nil, DecodingError{Got: len(cand.Bits), Want: want}
	}

	counts := make([]float64, nBins)
	errs := make([]float64, nBins)
	for j := 0; j < nBins; j++ {
		counts[j] = enc.BinValue(j, cand.Bits)
		errs[j] = math.Sqrt(counts[j])
	}

	h, err := histogram.New(edges, counts, errs)
	if err != nil {
		return nil, fmt.Errorf("decoded spectrum is not a valid histogram: %w", err)
	}
	prov.Energy = cand.Energy
	return &UnfoldedHistogram{Hist: h, Provenance: prov}, nil
}
