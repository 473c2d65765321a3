package threshold

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// ErrInvalidTransition is returned when the evaluator is asked to move
// between states in an order it does not allow.
var ErrInvalidTransition = errors.New("invalid evaluator state transition")

// State is the evaluator lifecycle state.
type State int

const (
	StateRunning State = iota
	StateEvaluating
	StatePassed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateEvaluating:
		return "evaluating"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailed
}

var transitions = map[State][]State{
	StateRunning:    {StateEvaluating},
	StateEvaluating: {StatePassed, StateFailed},
}

// Summary is the final verdict of a run.
type Summary struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`

	// AbortedBy is set when an abortOnFail threshold stopped the run early.
	AbortedBy *Result `json:"abortedBy,omitempty"`
}

// Failed returns the results that did not pass.
func (s *Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Evaluator tracks a set of thresholds over the life of a run.
type Evaluator struct {
	thresholds []*Threshold
	logger     *zap.Logger

	mu        sync.Mutex
	state     State
	abortedBy *Result
	warned    map[string]bool
}

// NewEvaluator creates an evaluator in the Running state.
func NewEvaluator(thresholds []*Threshold, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		thresholds: thresholds,
		logger:     logger.Named("threshold"),
		state:      StateRunning,
		warned:     make(map[string]bool),
	}
}

// Thresholds returns the thresholds being tracked.
func (e *Evaluator) Thresholds() []*Threshold {
	return e.thresholds
}

// State returns the current state.
func (e *Evaluator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Evaluator) transition(to State) error {
	for _, allowed := range transitions[e.state] {
		if allowed == to {
			e.logger.Debug("state change", zap.Stringer("from", e.state), zap.Stringer("to", to))
			e.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.state, to)
}

// Check evaluates abortOnFail thresholds whose delay has elapsed. It returns
// true once one of them fails. Metrics without data never abort.
func (e *Evaluator) Check(snap *metrics.Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return false
	}
	if e.abortedBy != nil {
		return true
	}

	for _, t := range e.thresholds {
		if !t.AbortOnFail || snap.Elapsed < t.DelayAbortEval {
			continue
		}
		r := t.Evaluate(snap)
		if !r.Passed {
			e.abortedBy = &r
			e.logger.Warn("threshold crossed, aborting run",
				zap.String("metric", r.Metric),
				zap.String("threshold", r.Expression),
				zap.String("value", r.Value),
				zap.Duration("elapsed", snap.Elapsed),
			)
			return true
		}
	}
	return false
}

// Finish evaluates every threshold against the final snapshot and moves to
// Passed or Failed. It may be called once.
func (e *Evaluator) Finish(snap *metrics.Snapshot) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.transition(StateEvaluating); err != nil {
		return nil, err
	}

	summary := &Summary{Passed: true, AbortedBy: e.abortedBy}
	for _, t := range e.thresholds {
		r := t.Evaluate(snap)
		if r.NoData && !e.warned[t.Metric] {
			e.warned[t.Metric] = true
			e.logger.Warn("metric has no samples, threshold passes vacuously",
				zap.String("metric", t.Metric),
				zap.String("threshold", t.Expression),
			)
		}
		if !r.Passed {
			summary.Passed = false
		}
		summary.Results = append(summary.Results, r)
	}
	if e.abortedBy != nil {
		summary.Passed = false
	}

	next := StatePassed
	if !summary.Passed {
		next = StateFailed
	}
	if err := e.transition(next); err != nil {
		return nil, err
	}
	return summary, nil
}
