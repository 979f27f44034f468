package solver

import "errors"

var (
	// ErrInvalidInput rejects empty stop/vehicle sets and malformed matrices.
	ErrInvalidInput = errors.New("solver: invalid input")
	// ErrCancelled is returned when the caller cancels before an initial
	// solution exists. After construction, cancellation degrades instead.
	ErrCancelled = errors.New("solver: cancelled")
	// ErrTimeout is returned when the budget expires before an initial
	// solution exists.
	ErrTimeout = errors.New("solver: timeout")
)

// Reason explains why a stop was left unassigned. Per-stop infeasibility is
// data, not an error: the solve continues and reports it.
type Reason string

const (
	ReasonCapacityExceeded   Reason = "CapacityExceeded"
	ReasonTimeWindowViolated Reason = "TimeWindowViolated"
)
