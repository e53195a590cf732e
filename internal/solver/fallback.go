package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/qunfold/qunfold/internal/qubo"
)

// FallbackSolver runs a primary backend and, only when it fails with
// SolverUnavailableError, retries on the fallback with a logged
// hand-off. Every other failure (capacity overflow included)
// propagates unchanged: downgrades are explicit policy, never silent.
type FallbackSolver struct {
	primary  Solver
	fallback Solver
	log      zerolog.Logger
}

// NewFallbackSolver wires the policy around two backends.
func NewFallbackSolver(primary, fallback Solver, log zerolog.Logger) *FallbackSolver {
	return &FallbackSolver{
		primary:  primary,
		fallback: fallback,
		log:      log.With().Str("component", "solver_fallback").Logger(),
	}
}

// Name implements Solver.
func (f *FallbackSolver) Name() string {
	return fmt.Sprintf("%s+%s", f.primary.Name(), f.fallback.Name())
}

// Solve implements Solver.
func (f *FallbackSolver) Solve(ctx context.Context, inst *qubo.Instance, budget Budget) ([]Candidate, error) {
	cands, err := f.primary.Solve(ctx, inst, budget)
	if err == nil {
		return cands, nil
	}

	var unavailable SolverUnavailableError
	if !errors.As(err, &unavailable) {
		return nil, err
	}

	f.log.Warn().
		Err(err).
		Str("primary", f.primary.Name()).
		Str("fallback", f.fallback.Name()).
		Msg("Primary solver unavailable, falling back")
	return f.fallback.Solve(ctx, inst, budget)
}
