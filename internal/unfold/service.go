package unfold

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qunfold/qunfold/internal/histogram"
	"github.com/qunfold/qunfold/internal/qubo"
	"github.com/qunfold/qunfold/internal/response"
	"github.com/qunfold/qunfold/internal/solver"
)

// Service runs the full unfolding pipeline: encode the measurement
// into a binary quadratic instance, hand it to a solver, decode the
// best candidate back into a truth-level histogram together with its
// provenance.
type Service struct {
	log zerolog.Logger
}

// NewService creates an unfolding service.
func NewService(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("component", "unfold").Logger()}
}

// Request describes one unfolding run. Response and Measured are
// required; everything else has a usable zero value.
type Request struct {
	Response *response.Operator
	Measured *histogram.Histogram
	// TruthEdges are the bin edges of the unfolded histogram. When nil
	// and the operator is square, the measured edges are reused.
	TruthEdges []float64
	Reg        qubo.RegSpec
	Encoding   qubo.EncodingSpec
	Budget     solver.Budget
	Seed       int64
}

// Result is one completed unfolding: the decoded best solution, the
// full ranked candidate list, and the instance it was solved on.
type Result struct {
	Unfolded   *UnfoldedHistogram
	Candidates []solver.Candidate
	Instance   *qubo.Instance
	Elapsed    time.Duration
}

// Unfold executes the pipeline with the given solver. The returned
// result holds a fresh run identifier; two calls with identical
// requests differ only in RunID and timing.
func (s *Service) Unfold(ctx context.Context, req Request, sol solver.Solver) (*Result, error) {
	if req.Response == nil || req.Measured == nil {
		return nil, fmt.Errorf("unfold request needs both a response operator and a measured histogram")
	}
	if req.Encoding.BitsPerBin == 0 {
		req.Encoding.BitsPerBin = qubo.DefaultBitsPerBin
	}

	_, cols := req.Response.Dims()
	edges := req.TruthEdges
	if edges == nil {
		if len(req.Measured.Edges()) != cols+1 {
			return nil, fmt.Errorf("truth edges required: operator has %d truth bins, measured histogram has %d", cols, req.Measured.NBins())
		}
		edges = req.Measured.Edges()
	}
	if len(edges) != cols+1 {
		return nil, qubo.ShapeMismatchError{Context: "truth edges", Got: len(edges) - 1, Want: cols}
	}

	start := time.Now()
	runID := uuid.NewString()

	inst, err := qubo.Encode(req.Response, req.Measured, req.Reg, req.Encoding)
	if err != nil {
		return nil, fmt.Errorf("encoding instance: %w", err)
	}
	s.log.Debug().
		Str("run_id", runID).
		Str("solver", sol.Name()).
		Int("num_vars", inst.NumVars()).
		Int("num_bins", inst.NumBins()).
		Msg("instance encoded")

	cands, err := sol.Solve(ctx, inst, req.Budget)
	if err != nil {
		return nil, fmt.Errorf("solving instance: %w", err)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("solver %s returned no candidates", sol.Name())
	}

	regForm := req.Reg.Form
	if regForm == "" {
		regForm = qubo.RegNone
	}
	unfolded, err := Decode(cands[0], inst.Encoding(), edges, Provenance{
		RunID:       runID,
		Solver:      sol.Name(),
		BitsPerBin:  inst.Encoding().BitsPerBin,
		RegForm:     string(regForm),
		RegStrength: req.Reg.Strength,
		Seed:        req.Seed,
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.log.Info().
		Str("run_id", runID).
		Str("solver", sol.Name()).
		Float64("energy", cands[0].Energy).
		Dur("elapsed", elapsed).
		Msg("unfolding complete")

	return &Result{
		Unfolded:   unfolded,
		Candidates: cands,
		Instance:   inst,
		Elapsed:    elapsed,
	}, nil
}
