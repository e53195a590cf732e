package solver

import "fmt"

// CapacityError reports a problem too large for the chosen backend.
// It is raised before any enumeration state is allocated and is fatal
// to that solver choice: callers must pick a different backend, never
// auto-downgrade.
type CapacityError struct {
	Vars int
	Max  int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("problem has %d binary variables, backend supports at most %d", e.Vars, e.Max)
}

// SolverUnavailableError reports an external backend that failed,
// timed out or returned a malformed response. It is the trigger for
// the explicit fallback policy.
type SolverUnavailableError struct {
	Backend string
	Err     error
}

func (e SolverUnavailableError) Error() string {
	return fmt.Sprintf("solver %q unavailable: %v", e.Backend, e.Err)
}

func (e SolverUnavailableError) Unwrap() error { return e.Err }
