package solver

import (
	"context"
	"errors"
	"fmt"
)

// State is the controller phase. A solve walks Idle → ConstructingInitial →
// Improving → Done, or Failed on invalid input.
type State string

const (
	StateIdle         State = "idle"
	StateConstructing State = "constructing_initial"
	StateImproving    State = "improving"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Progress is a point-in-time snapshot emitted while solving.
type Progress struct {
	State     State   `json:"state"`
	BestDistM float64 `json:"bestDistM"`
	Scans     int     `json:"scans"`
}

type ProgressFunc func(Progress)

// Result is the completed output of a solve.
type Result struct {
	Solution Solution
	Stats    SearchStats
	Metrics  SolutionMetrics
	State    State
}

// Controller orchestrates construction → improvement → termination for one
// solve at a time. Controllers hold no cross-request state; concurrent solves
// each get their own Controller and Problem.
type Controller struct {
	// OnProgress, when set, receives phase transitions and improvement
	// snapshots. Called synchronously on the solving goroutine.
	OnProgress ProgressFunc
}

// Solve runs the full pipeline. It either returns a complete solution
// (possibly with unassigned stops, possibly degraded by the budget) or an
// error, never a partial result. Cancellation after construction returns
// the best solution found so far; before construction it returns
// ErrCancelled or ErrTimeout.
func (c *Controller) Solve(ctx context.Context, p *Problem, b Budget) (*Result, error) {
	if err := validateProblem(p); err != nil {
		c.emit(Progress{State: StateFailed})
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, interruptErr(err)
	}

	c.emit(Progress{State: StateConstructing})
	initial := Construct(p)

	c.emit(Progress{State: StateImproving, BestDistM: Evaluate(p, &initial).TotalDistM})
	improved, stats, _ := Improve(ctx, p, initial, b)

	m := Evaluate(p, &improved)
	improved.TotalDistM = m.TotalDistM
	improved.TotalDurSec = m.TotalDurSec

	c.emit(Progress{State: StateDone, BestDistM: m.TotalDistM, Scans: stats.Scans})
	return &Result{Solution: improved, Stats: stats, Metrics: m, State: StateDone}, nil
}

func (c *Controller) emit(pr Progress) {
	if c.OnProgress != nil {
		c.OnProgress(pr)
	}
}

// Solve runs a one-shot solve without progress reporting.
func Solve(ctx context.Context, p *Problem, b Budget) (*Result, error) {
	var c Controller
	return c.Solve(ctx, p, b)
}

func validateProblem(p *Problem) error {
	if p == nil || len(p.Stops) == 0 {
		return fmt.Errorf("%w: no stops", ErrInvalidInput)
	}
	if len(p.Vehicles) == 0 {
		return fmt.Errorf("%w: no vehicles", ErrInvalidInput)
	}
	if err := p.Matrix.Validate(); err != nil {
		return err
	}
	n := p.Matrix.Size()
	for _, st := range p.Stops {
		if st.Node < 0 || st.Node >= n {
			return fmt.Errorf("%w: stop %d node %d outside %dx%d matrix", ErrInvalidInput, st.ID, st.Node, n, n)
		}
		if st.Demand < 0 {
			return fmt.Errorf("%w: stop %d has negative demand", ErrInvalidInput, st.ID)
		}
		if st.Window != nil && st.Window.LatestSec < st.Window.EarliestSec {
			return fmt.Errorf("%w: stop %d window ends before it starts", ErrInvalidInput, st.ID)
		}
	}
	for _, v := range p.Vehicles {
		if v.StartNode >= n || v.EndNode >= n {
			return fmt.Errorf("%w: vehicle %d depot outside matrix", ErrInvalidInput, v.ID)
		}
	}
	return nil
}

func interruptErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCancelled
}
