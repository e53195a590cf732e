package unfold

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/qunfold/qunfold/internal/histogram"
)

// FitMetrics summarizes the agreement between an unfolded spectrum and
// a reference truth: a chi-square-like statistic per bin and in
// aggregate, plus the signed residual vector. Scoring never mutates
// its inputs.
type FitMetrics struct {
	ChiSquare float64
	NDF       int
	PValue    float64
	PerBin    []float64
	Residuals []float64
}

// Score compares an unfolded histogram against a reference truth.
// The per-bin statistic is (u - t)^2 / var(t), with the truth variance
// floored at 1 so empty truth bins do not blow up the aggregate.
func Score(unfolded *UnfoldedHistogram, truth *histogram.Histogram) (*FitMetrics, error) {
	u := unfolded.Hist
	if u.NBins() != truth.NBins() {
		return nil, fmt.Errorf("unfolded histogram has %d bins, truth reference has %d", u.NBins(), truth.NBins())
	}

	n := u.NBins()
	m := &FitMetrics{
		NDF:       n,
		PerBin:    make([]float64, n),
		Residuals: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		diff := u.Count(i) - truth.Count(i)
		variance := truth.Error(i) * truth.Error(i)
		if variance < 1 {
			variance = 1
		}
		m.Residuals[i] = diff
		m.PerBin[i] = diff * diff / variance
		m.ChiSquare += m.PerBin[i]
	}
	m.PValue = distuv.ChiSquared{K: float64(m.NDF)}.Survival(m.ChiSquare)
	return m, nil
}
