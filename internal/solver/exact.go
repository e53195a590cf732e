package solver

import (
	"context"
	"math/bits"
	"sort"

	"github.com/rs/zerolog"

	"github.com/qunfold/qunfold/internal/qubo"
)

// DefaultExactMaxVars caps exhaustive enumeration. 2^20 assignments is
// around a second of work; beyond that the exact backend refuses
// rather than degrade.
const DefaultExactMaxVars = 20

// maxEnumerableVars is the hard ceiling on the configurable capacity.
// The Gray-code walk counts steps in a uint64, so 1<<n must fit.
const maxEnumerableVars = 63

// ExactSolver enumerates every binary assignment and returns the true
// global optimum. It is the correctness oracle for the stochastic
// backends and only valid for small instances.
type ExactSolver struct {
	maxVars int
	log     zerolog.Logger
}

// NewExactSolver creates the backend. maxVars <= 0 selects
// DefaultExactMaxVars; values above maxEnumerableVars are clamped.
func NewExactSolver(maxVars int, log zerolog.Logger) *ExactSolver {
	if maxVars <= 0 {
		maxVars = DefaultExactMaxVars
	}
	if maxVars > maxEnumerableVars {
		maxVars = maxEnumerableVars
	}
	return &ExactSolver{
		maxVars: maxVars,
		log:     log.With().Str("component", "solver_exact").Logger(),
	}
}

// Name implements Solver.
func (s *ExactSolver) Name() string { return "exact" }

// Solve walks all 2^B assignments in Gray-code order, so each step is
// a single bit flip evaluated in O(B). The capacity check runs before
// anything proportional to 2^B is allocated.
func (s *ExactSolver) Solve(ctx context.Context, inst *qubo.Instance, budget Budget) ([]Candidate, error) {
	n := inst.NumVars()
	if n > s.maxVars {
		return nil, CapacityError{Vars: n, Max: s.maxVars}
	}
	keep := budget.Reads
	if keep <= 0 {
		keep = 1
	}

	x := make([]uint8, n)
	energy := inst.Energy(x)
	best := make([]Candidate, 0, keep+1)
	record := func() {
		if len(best) == keep && energy >= best[len(best)-1].Energy {
			return
		}
		snapshot := make([]uint8, n)
		copy(snapshot, x)
		best = append(best, Candidate{Bits: snapshot, Energy: energy})
		sort.SliceStable(best, func(i, j int) bool { return best[i].Energy < best[j].Energy })
		if len(best) > keep {
			best = best[:keep]
		}
	}
	record()

	total := uint64(1) << n
	for step := uint64(1); step < total; step++ {
		if step%8192 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		flip := bits.TrailingZeros64(step)
		energy += inst.FlipDelta(x, flip)
		x[flip] ^= 1
		record()
	}

	// Accumulated deltas carry float error over millions of steps;
	// recompute the kept candidates from their assignments.
	for i := range best {
		best[i].Energy = inst.Energy(best[i].Bits)
	}
	sort.SliceStable(best, func(i, j int) bool { return best[i].Energy < best[j].Energy })

	s.log.Debug().
		Int("vars", n).
		Float64("optimum_energy", best[0].Energy).
		Msg("Exhaustive enumeration finished")
	return best, nil
}
