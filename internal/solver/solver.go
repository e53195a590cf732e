// Package solver provides the optimization backends that consume QUBO
// instances: seeded simulated annealing, exact enumeration for small
// problems, an adapter for an external annealing service, and the
// explicit fallback policy between them. All backends implement a
// single capability interface so callers can swap the external service
// for a classical stand-in without touching encoding or decoding.
package solver

import (
	"context"
	"sort"
	"time"

	"github.com/qunfold/qunfold/internal/qubo"
)

// Candidate is one binary assignment with its objective energy.
type Candidate struct {
	Bits   []uint8
	Energy float64
}

// Budget bounds a single solve call. Zero fields take backend
// defaults.
type Budget struct {
	// Reads is the maximum number of ranked candidates to return.
	Reads int
	// Sweeps is the annealing schedule length (ignored by the exact
	// backend).
	Sweeps int
	// Timeout bounds external service calls.
	Timeout time.Duration
}

// Solver is the annealing capability: consume an instance, return a
// non-empty list of candidates ranked by non-decreasing energy.
type Solver interface {
	Name() string
	Solve(ctx context.Context, inst *qubo.Instance, budget Budget) ([]Candidate, error)
}

// rank sorts candidates by energy ascending, drops duplicate
// assignments, and truncates to limit (when limit > 0).
func rank(cands []Candidate, limit int) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Energy < cands[j].Energy })
	out := make([]Candidate, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		key := string(c.Bits)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
