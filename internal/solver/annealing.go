package solver

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/qunfold/qunfold/internal/qubo"
)

const (
	defaultChains = 8
	defaultSweeps = 1000
)

// SAConfig configures the simulated annealing backend. The seed makes
// runs reproducible: each chain derives its own generator from
// (Seed, chain index), so results are identical for a given seed
// regardless of scheduling.
type SAConfig struct {
	Seed   int64
	Chains int
	// TStart and TEnd bound the geometric temperature schedule.
	// When zero they are derived from the instance's coefficient
	// magnitude.
	TStart float64
	TEnd   float64
}

// SimulatedAnnealer is the classical stochastic backend: independent
// Metropolis chains with single-bit-flip proposals and a monotonically
// decreasing temperature schedule, merged by lowest energy.
type SimulatedAnnealer struct {
	cfg SAConfig
	log zerolog.Logger
}

// NewSimulatedAnnealer creates the backend with the given config.
func NewSimulatedAnnealer(cfg SAConfig, log zerolog.Logger) *SimulatedAnnealer {
	if cfg.Chains <= 0 {
		cfg.Chains = defaultChains
	}
	return &SimulatedAnnealer{
		cfg: cfg,
		log: log.With().Str("component", "solver_sa").Logger(),
	}
}

// Name implements Solver.
func (s *SimulatedAnnealer) Name() string { return "simulated_annealing" }

// Solve runs the configured number of independent chains in parallel
// and returns their best assignments ranked by energy. Chains share no
// mutable state; results are merged only at the end.
func (s *SimulatedAnnealer) Solve(ctx context.Context, inst *qubo.Instance, budget Budget) ([]Candidate, error) {
	n := inst.NumVars()
	sweeps := budget.Sweeps
	if sweeps <= 0 {
		sweeps = defaultSweeps
	}
	tStart, tEnd := s.schedule(inst)

	best := make([]Candidate, s.cfg.Chains)
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < s.cfg.Chains; c++ {
		g.Go(func() error {
			cand, err := s.runChain(gctx, inst, n, sweeps, tStart, tEnd, c)
			if err != nil {
				return err
			}
			best[c] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := rank(best, budget.Reads)
	s.log.Debug().
		Int("vars", n).
		Int("chains", s.cfg.Chains).
		Int("sweeps", sweeps).
		Float64("best_energy", ranked[0].Energy).
		Msg("Annealing finished")
	return ranked, nil
}

// schedule derives the temperature bounds from the instance when the
// config leaves them unset: start hot enough to accept flips across
// the largest coefficient, end cold enough to freeze.
func (s *SimulatedAnnealer) schedule(inst *qubo.Instance) (tStart, tEnd float64) {
	tStart, tEnd = s.cfg.TStart, s.cfg.TEnd
	if tStart <= 0 {
		maxAbs := 0.0
		for i := 0; i < inst.NumVars(); i++ {
			if v := math.Abs(inst.Coeff(i, i)); v > maxAbs {
				maxAbs = v
			}
		}
		if maxAbs == 0 {
			maxAbs = 1
		}
		tStart = maxAbs
	}
	if tEnd <= 0 || tEnd >= tStart {
		tEnd = tStart * 1e-4
	}
	return tStart, tEnd
}

func (s *SimulatedAnnealer) runChain(ctx context.Context, inst *qubo.Instance, n, sweeps int, tStart, tEnd float64, chain int) (Candidate, error) {
	rng := rand.New(rand.NewPCG(uint64(s.cfg.Seed), uint64(chain)))

	x := make([]uint8, n)
	for i := range x {
		x[i] = uint8(rng.IntN(2))
	}
	energy := inst.Energy(x)

	bestBits := make([]uint8, n)
	copy(bestBits, x)
	bestEnergy := energy

	cooling := 1.0
	if sweeps > 1 {
		cooling = math.Pow(tEnd/tStart, 1/float64(sweeps-1))
	}
	temp := tStart

	for sweep := 0; sweep < sweeps; sweep++ {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		for step := 0; step < n; step++ {
			i := rng.IntN(n)
			delta := inst.FlipDelta(x, i)
			if delta <= 0 || rng.Float64() < math.Exp(-delta/temp) {
				x[i] ^= 1
				energy += delta
				if energy < bestEnergy {
					bestEnergy = energy
					copy(bestBits, x)
				}
			}
		}
		temp *= cooling
	}

	// Recompute from the assignment so accumulated flip deltas cannot
	// drift the reported energy.
	return Candidate{Bits: bestBits, Energy: inst.Energy(bestBits)}, nil
}
