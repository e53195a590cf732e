package histogram

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		edges  []float64
		counts []float64
		errs   []float64
	}{
		{
			name:   "edge count mismatch",
			edges:  []float64{0, 1, 2},
			counts: []float64{10, 20, 30},
			errs:   []float64{1, 2, 3},
		},
		{
			name:   "uncertainty length mismatch",
			edges:  []float64{0, 1, 2, 3},
			counts: []float64{10, 20, 30},
			errs:   []float64{1, 2},
		},
		{
			name:   "non-increasing edges",
			edges:  []float64{0, 2, 1, 3},
			counts: []float64{10, 20, 30},
			errs:   []float64{1, 2, 3},
		},
		{
			name:   "duplicate edges",
			edges:  []float64{0, 1, 1, 3},
			counts: []float64{10, 20, 30},
			errs:   []float64{1, 2, 3},
		},
		{
			name:   "negative count",
			edges:  []float64{0, 1, 2, 3},
			counts: []float64{10, -5, 30},
			errs:   []float64{1, 2, 3},
		},
		{
			name:   "negative uncertainty",
			edges:  []float64{0, 1, 2, 3},
			counts: []float64{10, 20, 30},
			errs:   []float64{1, -2, 3},
		},
		{
			name:   "NaN count",
			edges:  []float64{0, 1, 2, 3},
			counts: []float64{10, math.NaN(), 30},
			errs:   []float64{1, 2, 3},
		},
		{
			name:   "empty",
			edges:  []float64{},
			counts: []float64{},
			errs:   []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.edges, tt.counts, tt.errs)
			assert.Error(t, err)
		})
	}
}

func TestFromCounts_PoissonErrors(t *testing.T) {
	h, err := FromCounts([]float64{0, 1, 2, 3}, []float64{100, 0, 25})
	require.NoError(t, err)

	errs := h.Errors()
	assert.InDelta(t, 10.0, errs[0], 1e-12)
	assert.Equal(t, 0.0, errs[1])
	assert.InDelta(t, 5.0, errs[2], 1e-12)
}

func TestUniform(t *testing.T) {
	h, err := Uniform(0, 10, []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	edges := h.Edges()
	require.Len(t, edges, 6)
	assert.Equal(t, 0.0, edges[0])
	assert.Equal(t, 10.0, edges[5])
	assert.InDelta(t, 2.0, edges[1], 1e-12)
	assert.InDelta(t, 15.0, h.Sum(), 1e-12)
}

func TestAccessors_ReturnCopies(t *testing.T) {
	h, err := FromCounts([]float64{0, 1, 2}, []float64{10, 20})
	require.NoError(t, err)

	counts := h.Counts()
	counts[0] = 999
	assert.Equal(t, 10.0, h.Count(0), "mutating the returned slice must not affect the histogram")

	edges := h.Edges()
	edges[0] = -5
	assert.Equal(t, 0.0, h.Edges()[0])
}

func TestRebin(t *testing.T) {
	h, err := New(
		[]float64{0, 1, 2, 3, 4},
		[]float64{10, 20, 30, 40},
		[]float64{3, 4, 5, 12},
	)
	require.NoError(t, err)

	r, err := h.Rebin(2)
	require.NoError(t, err)

	assert.Equal(t, 2, r.NBins())
	assert.Equal(t, []float64{0, 2, 4}, r.Edges())
	assert.Equal(t, []float64{30, 70}, r.Counts())
	// Quadrature: sqrt(9+16)=5, sqrt(25+144)=13
	assert.InDelta(t, 5.0, r.Error(0), 1e-12)
	assert.InDelta(t, 13.0, r.Error(1), 1e-12)

	// Source is unchanged (copy-on-rebin).
	assert.Equal(t, 4, h.NBins())
}

func TestRebin_FactorMustDivide(t *testing.T) {
	h, err := FromCounts([]float64{0, 1, 2, 3}, []float64{1, 2, 3})
	require.NoError(t, err)

	_, err = h.Rebin(2)
	assert.Error(t, err)

	_, err = h.Rebin(0)
	assert.Error(t, err)
}

func TestWithCovariance(t *testing.T) {
	h, err := FromCounts([]float64{0, 1, 2}, []float64{10, 20})
	require.NoError(t, err)

	cov := [][]float64{{10, 1}, {1, 20}}
	hc, err := h.WithCovariance(cov)
	require.NoError(t, err)

	// Original carries no covariance; the copy does.
	assert.Nil(t, h.Covariance())
	got := hc.Covariance()
	require.NotNil(t, got)
	assert.Equal(t, 1.0, got[0][1])

	// Returned covariance is a copy.
	got[0][0] = -1
	assert.Equal(t, 10.0, hc.Covariance()[0][0])

	_, err = h.WithCovariance([][]float64{{1}})
	assert.Error(t, err)

	_, err = h.WithCovariance([][]float64{{-1, 0}, {0, 1}})
	assert.Error(t, err, "negative variance on the diagonal is rejected")
}
