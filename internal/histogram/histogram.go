// Package histogram provides the binned count model shared by the
// unfolding pipeline: ordered bins with edges, counts, per-bin
// uncertainties and optional covariance bookkeeping.
package histogram

import (
	"fmt"
	"math"
)

// Histogram is an ordered sequence of bins. Edges has one more entry
// than Counts and must be strictly increasing; bins are contiguous by
// construction. Instances are immutable after construction: accessors
// return copies and Rebin produces a new histogram.
type Histogram struct {
	edges  []float64
	counts []float64
	errs   []float64
	cov    [][]float64 // optional, nil unless supplied
}

// New creates a histogram from bin edges, counts and per-bin
// uncertainties. It validates shapes, edge ordering and sign
// constraints up front; invalid inputs are never coerced.
func New(edges, counts, errs []float64) (*Histogram, error) {
	n := len(counts)
	if n == 0 {
		return nil, fmt.Errorf("histogram needs at least one bin")
	}
	if len(edges) != n+1 {
		return nil, fmt.Errorf("edge count %d does not match %d bins (want %d edges)", len(edges), n, n+1)
	}
	if len(errs) != n {
		return nil, fmt.Errorf("uncertainty count %d does not match %d bins", len(errs), n)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return nil, fmt.Errorf("bin edges must be strictly increasing: edge[%d]=%v <= edge[%d]=%v", i, edges[i], i-1, edges[i-1])
		}
	}
	for i, c := range counts {
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("bin %d has invalid count %v (must be a non-negative real)", i, c)
		}
	}
	for i, e := range errs {
		if e < 0 || math.IsNaN(e) || math.IsInf(e, 0) {
			return nil, fmt.Errorf("bin %d has invalid uncertainty %v (must be a non-negative real)", i, e)
		}
	}

	h := &Histogram{
		edges:  make([]float64, len(edges)),
		counts: make([]float64, n),
		errs:   make([]float64, n),
	}
	copy(h.edges, edges)
	copy(h.counts, counts)
	copy(h.errs, errs)
	return h, nil
}

// FromCounts creates a histogram with Poisson uncertainties,
// sqrt(count) per bin.
func FromCounts(edges, counts []float64) (*Histogram, error) {
	errs := make([]float64, len(counts))
	for i, c := range counts {
		if c > 0 {
			errs[i] = math.Sqrt(c)
		}
	}
	return New(edges, counts, errs)
}

// Uniform creates a histogram over [lo, hi) with nBins equal-width bins
// and Poisson uncertainties. Mirrors the linspace binning used by the
// pseudo-data generators that feed this package.
func Uniform(lo, hi float64, counts []float64) (*Histogram, error) {
	n := len(counts)
	if n == 0 {
		return nil, fmt.Errorf("histogram needs at least one bin")
	}
	if hi <= lo {
		return nil, fmt.Errorf("invalid range [%v, %v)", lo, hi)
	}
	edges := make([]float64, n+1)
	width := (hi - lo) / float64(n)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[n] = hi
	return FromCounts(edges, counts)
}

// NBins returns the number of bins.
func (h *Histogram) NBins() int { return len(h.counts) }

// Counts returns a copy of the bin counts.
func (h *Histogram) Counts() []float64 {
	out := make([]float64, len(h.counts))
	copy(out, h.counts)
	return out
}

// Errors returns a copy of the per-bin uncertainties.
func (h *Histogram) Errors() []float64 {
	out := make([]float64, len(h.errs))
	copy(out, h.errs)
	return out
}

// Edges returns a copy of the bin edges (NBins+1 entries).
func (h *Histogram) Edges() []float64 {
	out := make([]float64, len(h.edges))
	copy(out, h.edges)
	return out
}

// Bin returns the edge pair, count and uncertainty of bin i.
func (h *Histogram) Bin(i int) (lo, hi, count, err float64) {
	return h.edges[i], h.edges[i+1], h.counts[i], h.errs[i]
}

// Count returns the count of bin i.
func (h *Histogram) Count(i int) float64 { return h.counts[i] }

// Error returns the uncertainty of bin i.
func (h *Histogram) Error(i int) float64 { return h.errs[i] }

// Sum returns the total number of entries.
func (h *Histogram) Sum() float64 {
	total := 0.0
	for _, c := range h.counts {
		total += c
	}
	return total
}

// MaxCount returns the largest single-bin count.
func (h *Histogram) MaxCount() float64 {
	m := 0.0
	for _, c := range h.counts {
		if c > m {
			m = c
		}
	}
	return m
}

// WithCovariance returns a copy carrying the given bin-to-bin
// covariance matrix. The matrix must be square with NBins rows and its
// diagonal consistent with non-negative variances.
func (h *Histogram) WithCovariance(cov [][]float64) (*Histogram, error) {
	n := h.NBins()
	if len(cov) != n {
		return nil, fmt.Errorf("covariance has %d rows, histogram has %d bins", len(cov), n)
	}
	cp := make([][]float64, n)
	for i, row := range cov {
		if len(row) != n {
			return nil, fmt.Errorf("covariance row %d has %d columns, want %d", i, len(row), n)
		}
		if row[i] < 0 {
			return nil, fmt.Errorf("covariance diagonal entry %d is negative: %v", i, row[i])
		}
		cp[i] = make([]float64, n)
		copy(cp[i], row)
	}
	out := h.Clone()
	out.cov = cp
	return out, nil
}

// Covariance returns a copy of the covariance matrix, or nil if none
// was supplied.
func (h *Histogram) Covariance() [][]float64 {
	if h.cov == nil {
		return nil
	}
	out := make([][]float64, len(h.cov))
	for i, row := range h.cov {
		out[i] = make([]float64, len(row))
		copy(out[i], row)
	}
	return out
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	out := &Histogram{
		edges:  make([]float64, len(h.edges)),
		counts: make([]float64, len(h.counts)),
		errs:   make([]float64, len(h.errs)),
	}
	copy(out.edges, h.edges)
	copy(out.counts, h.counts)
	copy(out.errs, h.errs)
	if h.cov != nil {
		out.cov = make([][]float64, len(h.cov))
		for i, row := range h.cov {
			out.cov[i] = make([]float64, len(row))
			copy(out.cov[i], row)
		}
	}
	return out
}

// Rebin merges groups of `factor` adjacent bins into one, summing
// counts and combining uncertainties in quadrature. The factor must
// divide the bin count exactly; partial groups are never truncated.
// Any covariance attached to the source is dropped.
func (h *Histogram) Rebin(factor int) (*Histogram, error) {
	n := h.NBins()
	if factor < 1 {
		return nil, fmt.Errorf("rebin factor must be >= 1, got %d", factor)
	}
	if n%factor != 0 {
		return nil, fmt.Errorf("rebin factor %d does not divide %d bins", factor, n)
	}
	m := n / factor
	edges := make([]float64, m+1)
	counts := make([]float64, m)
	errs := make([]float64, m)
	for i := 0; i < m; i++ {
		edges[i] = h.edges[i*factor]
		var sumVar float64
		for k := 0; k < factor; k++ {
			counts[i] += h.counts[i*factor+k]
			sumVar += h.errs[i*factor+k] * h.errs[i*factor+k]
		}
		errs[i] = math.Sqrt(sumVar)
	}
	edges[m] = h.edges[n]
	return New(edges, counts, errs)
}
