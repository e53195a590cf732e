package unfold

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qunfold/qunfold/internal/histogram"
	"github.com/qunfold/qunfold/internal/qubo"
	"github.com/qunfold/qunfold/internal/response"
	"github.com/qunfold/qunfold/internal/solver"
)

func response2x2(t *testing.T) *response.Operator {
	t.Helper()
	op, err := response.New([][]float64{
		{0.9, 0.1},
		{0.1, 0.9},
	})
	require.NoError(t, err)
	return op
}

func TestEstimateUncertainty_DeterministicForSeed(t *testing.T) {
	op := response2x2(t)
	measured, err := histogram.FromCounts([]float64{0, 1, 2}, []float64{110, 90})
	require.NoError(t, err)
	exact := solver.NewExactSolver(0, zerolog.Nop())

	run := func() *histogram.Histogram {
		h, err := EstimateUncertainty(context.Background(), op, measured,
			qubo.RegSpec{Form: qubo.RegNone},
			qubo.EncodingSpec{BitsPerBin: 4},
			exact, solver.Budget{Reads: 1},
			BootstrapConfig{Resamples: 8, Seed: 7, Parallelism: 4})
		require.NoError(t, err)
		return h
	}

	a := run()
	b := run()
	assert.Equal(t, a.Counts(), b.Counts())
	assert.Equal(t, a.Errors(), b.Errors())
}

func TestEstimateUncertainty_SpreadsTrackTheMeasurement(t *testing.T) {
	op := response2x2(t)
	measured, err := histogram.FromCounts([]float64{0, 1, 2}, []float64{110, 90})
	require.NoError(t, err)
	exact := solver.NewExactSolver(0, zerolog.Nop())

	h, err := EstimateUncertainty(context.Background(), op, measured,
		qubo.RegSpec{Form: qubo.RegNone},
		qubo.EncodingSpec{BitsPerBin: 4},
		exact, solver.Budget{Reads: 1},
		BootstrapConfig{Resamples: 32, Seed: 3, Parallelism: 4})
	require.NoError(t, err)

	require.Equal(t, 2, h.NBins())
	// The replica means should stay within a few statistical sigma of
	// the inverted truth (112.5, 87.5), and the spreads must be
	// non-negative.
	assert.InDelta(t, 112.5, h.Count(0), 20)
	assert.InDelta(t, 87.5, h.Count(1), 20)
	for j := 0; j < h.NBins(); j++ {
		assert.GreaterOrEqual(t, h.Error(j), 0.0)
	}
}

func TestEstimateUncertainty_ValidatesResampleCount(t *testing.T) {
	op := response2x2(t)
	measured, err := histogram.FromCounts([]float64{0, 1, 2}, []float64{110, 90})
	require.NoError(t, err)
	exact := solver.NewExactSolver(0, zerolog.Nop())

	_, err = EstimateUncertainty(context.Background(), op, measured,
		qubo.RegSpec{}, qubo.EncodingSpec{BitsPerBin: 4},
		exact, solver.Budget{}, BootstrapConfig{Resamples: 1, Seed: 1})
	assert.Error(t, err)

	_, err = EstimateUncertainty(context.Background(), op, measured,
		qubo.RegSpec{}, qubo.EncodingSpec{BitsPerBin: 4},
		exact, solver.Budget{}, BootstrapConfig{Resamples: MaxResamples + 1, Seed: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap")
}
