package unfold

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/qunfold/qunfold/internal/histogram"
	"github.com/qunfold/qunfold/internal/qubo"
	"github.com/qunfold/qunfold/internal/response"
	"github.com/qunfold/qunfold/internal/solver"
)

// MaxResamples caps the number of bootstrap replicas a single call may
// request. Each replica is a full solve, so runaway values would pin
// the machine for hours.
const MaxResamples = 1000

// BootstrapConfig controls the Poisson-style resampling loop used to
// propagate measurement uncertainty through the unfolding.
type BootstrapConfig struct {
	// Resamples is the number of perturbed replicas to solve.
	Resamples int
	// Seed makes the replica stream reproducible. Replica r always
	// draws from a generator seeded with (Seed, r), regardless of
	// scheduling order.
	Seed uint64
	// Parallelism bounds concurrent solves. Zero means Resamples.
	Parallelism int
}

// EstimateUncertainty re-solves the unfolding on perturbed copies of
// the measured histogram and reports the per-bin spread of the
// solutions. Each replica fluctuates every measured count by a
// Gaussian with sigma equal to the bin's reported error, clamped at
// zero. The encoding scales are derived once from the unperturbed
// measurement so every replica lives on the same grid.
func EstimateUncertainty(ctx context.Context, op *response.Operator, measured *histogram.Histogram, reg qubo.RegSpec, enc qubo.EncodingSpec, s solver.Solver, budget solver.Budget, cfg BootstrapConfig) (*histogram.Histogram, error) {
	if cfg.Resamples < 2 {
		return nil, fmt.Errorf("bootstrap needs at least 2 resamples, got %d", cfg.Resamples)
	}
	if cfg.Resamples > MaxResamples {
		return nil, fmt.Errorf("bootstrap resamples %d exceeds cap %d", cfg.Resamples, MaxResamples)
	}

	_, cols := op.Dims()
	if enc.Scales == nil {
		enc.Scales = qubo.DeriveScales(measured, cols)
	}

	nBins := cols
	samples := make([][]float64, cfg.Resamples)

	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.Parallelism
	if limit <= 0 {
		limit = cfg.Resamples
	}
	g.SetLimit(limit)

	baseCounts := measured.Counts()
	baseErrs := measured.Errors()
	edges := measured.Edges()

	for r := 0; r < cfg.Resamples; r++ {
		g.Go(func() error {
			src := rand.NewPCG(cfg.Seed, uint64(r))
			perturbed := make([]float64, len(baseCounts))
			for i, c := range baseCounts {
				sigma := baseErrs[i]
				if sigma == 0 {
					perturbed[i] = c
					continue
				}
				draw := distuv.Normal{Mu: c, Sigma: sigma, Src: src}.Rand()
				if draw < 0 {
					draw = 0
				}
				perturbed[i] = draw
			}
			replica, err := histogram.New(edges, perturbed, baseErrs)
			if err != nil {
				return fmt.Errorf("building replica %d: %w", r, err)
			}
			inst, err := qubo.Encode(op, replica, reg, enc)
			if err != nil {
				return fmt.Errorf("encoding replica %d: %w", r, err)
			}
			cands, err := s.Solve(gctx, inst, budget)
			if err != nil {
				return fmt.Errorf("solving replica %d: %w", r, err)
			}
			if len(cands) == 0 {
				return fmt.Errorf("solving replica %d: solver returned no candidates", r)
			}
			counts := make([]float64, nBins)
			for j := 0; j < nBins; j++ {
				counts[j] = enc.BinValue(j, cands[0].Bits)
			}
			samples[r] = counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Truth-binned edges: reuse the measured edges when the operator is
	// square, otherwise fall back to unit bins.
	truthEdges := edges
	if len(edges) != nBins+1 {
		truthEdges = unitEdges(nBins)
	}

	means := make([]float64, nBins)
	spreads := make([]float64, nBins)
	column := make([]float64, cfg.Resamples)
	for j := 0; j < nBins; j++ {
		for r := 0; r < cfg.Resamples; r++ {
			column[r] = samples[r][j]
		}
		means[j] = stat.Mean(column, nil)
		spreads[j] = stat.StdDev(column, nil)
	}
	return histogram.New(truthEdges, means, spreads)
}

func unitEdges(n int) []float64 {
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = float64(i)
	}
	return edges
}
