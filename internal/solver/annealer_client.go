package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/qunfold/qunfold/internal/qubo"
)

const defaultAnnealerTimeout = 30 * time.Second

// AnnealerClient delegates solving to an external quantum or
// quantum-inspired annealing service. The service is an opaque
// sampler: it returns low-energy bitstrings, not necessarily the
// global optimum. Any transport failure, timeout or malformed reply
// surfaces as SolverUnavailableError so the caller's fallback policy
// can take over.
type AnnealerClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewAnnealerClient creates a client for the sampling service at
// baseURL. token may be empty for unauthenticated deployments.
func NewAnnealerClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *AnnealerClient {
	if timeout <= 0 {
		timeout = defaultAnnealerTimeout
	}
	return &AnnealerClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "solver_annealer").Logger(),
	}
}

// Name implements Solver.
func (c *AnnealerClient) Name() string { return "annealer" }

// submitRequest is the single call contract with the sampling
// service: the QUBO in sparse upper-triangular form plus a read
// budget.
type submitRequest struct {
	NumVars   int        `json:"num_vars"`
	Linear    []float64  `json:"linear"`
	Quadratic []coupling `json:"quadratic"`
	NumReads  int        `json:"num_reads"`
}

type coupling struct {
	I int     `json:"i"`
	J int     `json:"j"`
	Q float64 `json:"q"`
}

type submitResponse struct {
	Solutions []struct {
		Bits   []uint8 `json:"bits"`
		Energy float64 `json:"energy"`
	} `json:"solutions"`
}

// Solve submits the instance and returns the sampled assignments
// ranked by locally recomputed energy. The call honors both the
// context and the budget timeout; a cancelled call returns promptly
// as SolverUnavailableError.
func (c *AnnealerClient) Solve(ctx context.Context, inst *qubo.Instance, budget Budget) ([]Candidate, error) {
	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}

	n := inst.NumVars()
	req := submitRequest{NumVars: n, NumReads: budget.Reads}
	if req.NumReads <= 0 {
		req.NumReads = 100
	}
	req.Linear = make([]float64, n)
	for i := 0; i < n; i++ {
		req.Linear[i] = inst.Coeff(i, i)
		for j := i + 1; j < n; j++ {
			if v := inst.Coeff(i, j); v != 0 {
				req.Quadratic = append(req.Quadratic, coupling{I: i, J: j, Q: v})
			}
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, SolverUnavailableError{Backend: c.Name(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/anneal", bytes.NewReader(body))
	if err != nil {
		return nil, SolverUnavailableError{Backend: c.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Debug().
		Int("vars", n).
		Int("num_reads", req.NumReads).
		Msg("Submitting problem to annealing service")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, SolverUnavailableError{Backend: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, SolverUnavailableError{
			Backend: c.Name(),
			Err:     fmt.Errorf("service returned status %d: %s", resp.StatusCode, payload),
		}
	}

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, SolverUnavailableError{Backend: c.Name(), Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(decoded.Solutions) == 0 {
		return nil, SolverUnavailableError{Backend: c.Name(), Err: fmt.Errorf("service returned no solutions")}
	}

	cands := make([]Candidate, 0, len(decoded.Solutions))
	for i, sol := range decoded.Solutions {
		if len(sol.Bits) != n {
			return nil, SolverUnavailableError{
				Backend: c.Name(),
				Err:     fmt.Errorf("solution %d has %d bits, expected %d", i, len(sol.Bits), n),
			}
		}
		// Rank by locally recomputed energy; the service's numbers
		// may not include the constant offset.
		cands = append(cands, Candidate{Bits: sol.Bits, Energy: inst.Energy(sol.Bits)})
	}
	return rank(cands, budget.Reads), nil
}
