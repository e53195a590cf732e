package artifacts

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDistribution() *Distribution {
	return &Distribution{
		Name:          "flat_2bin",
		TruthEdges:    []float64{0, 1, 2},
		Truth:         []float64{100, 100},
		MeasuredEdges: []float64{0, 1, 2},
		Measured:      []float64{110, 90},
		Response: [][]float64{
			{0.9, 0.1},
			{0.1, 0.9},
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.Save(testDistribution()))

	loaded, err := store.Load("flat_2bin")
	require.NoError(t, err)
	assert.Equal(t, testDistribution(), loaded)
}

func TestStore_List(t *testing.T) {
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	d := testDistribution()
	require.NoError(t, store.Save(d))
	d2 := testDistribution()
	d2.Name = "another"
	require.NoError(t, store.Save(d2))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"another", "flat_2bin"}, names)
}

func TestStore_SaveRequiresName(t *testing.T) {
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, store.Save(&Distribution{}))
}

func TestDistribution_BuildsDomainObjects(t *testing.T) {
	d := testDistribution()

	measured, err := d.MeasuredHistogram()
	require.NoError(t, err)
	assert.Equal(t, []float64{110, 90}, measured.Counts())
	// Errors default to Poisson when not stored.
	assert.InDelta(t, 10.488, measured.Error(0), 1e-3)

	truth, err := d.TruthHistogram()
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 100}, truth.Counts())

	op, err := d.ResponseOperator()
	require.NoError(t, err)
	rows, cols := op.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
}

func TestDistribution_TruthOptional(t *testing.T) {
	d := testDistribution()
	d.Truth = nil

	truth, err := d.TruthHistogram()
	require.NoError(t, err)
	assert.Nil(t, truth)
}
