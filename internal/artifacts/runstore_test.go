package artifacts

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qunfold/qunfold/internal/database"
)

// setupRunStore creates a temporary run archive.
func setupRunStore(t *testing.T) (*RunStore, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_runs_*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "runs",
	})
	require.NoError(t, err)

	store, err := NewRunStore(db, zerolog.Nop())
	require.NoError(t, err)

	cleanup := func() {
		_ = db.Close()
		_ = os.Remove(tmpPath)
	}
	return store, cleanup
}

func sampleRun(id string, chiSquare float64) *RunRecord {
	return &RunRecord{
		RunID:        id,
		Distribution: "flat_2bin",
		Solver:       "exact",
		BitsPerBin:   4,
		RegForm:      "smoothness",
		RegStrength:  1,
		Seed:         42,
		Energy:       2.18,
		ChiSquare:    &chiSquare,
		Elapsed:      12 * time.Millisecond,
		Counts:       []float64{102, 102},
		Errors:       []float64{10.1, 10.1},
		Candidates:   [][]uint8{{0, 1, 1, 0, 0, 1, 1, 0}},
	}
}

func TestRunStore_SaveGetRoundTrip(t *testing.T) {
	store, cleanup := setupRunStore(t)
	defer cleanup()
	ctx := context.Background()

	rec := sampleRun("run-1", 2.2)
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Counts, got.Counts)
	assert.Equal(t, rec.Errors, got.Errors)
	assert.Equal(t, rec.Candidates, got.Candidates)
	assert.Equal(t, rec.Solver, got.Solver)
	assert.Equal(t, rec.RegForm, got.RegForm)
	assert.Equal(t, *rec.ChiSquare, *got.ChiSquare)
	assert.Equal(t, rec.Elapsed, got.Elapsed)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRunStore_GetUnknownRun(t *testing.T) {
	store, cleanup := setupRunStore(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRunStore_SaveRequiresRunID(t *testing.T) {
	store, cleanup := setupRunStore(t)
	defer cleanup()

	assert.Error(t, store.Save(context.Background(), &RunRecord{}))
}

func TestRunStore_SaveDuplicateRollsBack(t *testing.T) {
	store, cleanup := setupRunStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRun("run-dup", 2.0)))

	clash := sampleRun("run-dup", 9.0)
	require.Error(t, store.Save(ctx, clash))

	got, err := store.Get(ctx, "run-dup")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *got.ChiSquare, "first insert survives the failed one")
}

func TestRunStore_SaveHonorsContext(t *testing.T) {
	store, cleanup := setupRunStore(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, store.Save(ctx, sampleRun("run-cancelled", 2.0)))

	_, err := store.Get(context.Background(), "run-cancelled")
	assert.Error(t, err, "nothing persisted after rollback")
}

func TestRunStore_ListByDistribution(t *testing.T) {
	store, cleanup := setupRunStore(t)
	defer cleanup()
	ctx := context.Background()

	a := sampleRun("run-a", 3.0)
	a.CreatedAt = time.Now().Add(-time.Hour)
	b := sampleRun("run-b", 2.0)
	b.CreatedAt = time.Now()
	other := sampleRun("run-c", 1.0)
	other.Distribution = "peaked"

	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))
	require.NoError(t, store.Save(ctx, other))

	runs, err := store.ListByDistribution(ctx, "flat_2bin")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID, "newest first")
	assert.Equal(t, "run-a", runs[1].RunID)
}

func TestRunStore_BestByChiSquare(t *testing.T) {
	store, cleanup := setupRunStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRun("run-a", 5.0)))
	require.NoError(t, store.Save(ctx, sampleRun("run-b", 1.5)))
	unscored := sampleRun("run-c", 0)
	unscored.ChiSquare = nil
	require.NoError(t, store.Save(ctx, unscored))

	best, err := store.Best(ctx, "flat_2bin")
	require.NoError(t, err)
	assert.Equal(t, "run-b", best.RunID)

	_, err = store.Best(ctx, "unknown")
	assert.Error(t, err)
}
