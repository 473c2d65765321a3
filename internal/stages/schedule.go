// Package stages converts a list of ramping stages into a time-varying
// virtual user target.
//
// Stage i moves the target linearly from the previous stage's target (or the
// configured start value for the first stage) to its own target over its
// duration. A zero-length stage jumps instantly.
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
package stages

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNegativeDuration is returned when a stage has a duration below zero.
	ErrNegativeDuration = errors.New("stage duration cannot be negative")

	// ErrNegativeTarget is returned when a stage has a target below zero.
	ErrNegativeTarget = errors.New("stage target cannot be negative")

	// ErrNegativeStart is returned when the starting VU count is below zero.
	ErrNegativeStart = errors.New("start VUs cannot be negative")
)

// Stage defines a single ramping step.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for logging)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Phase describes what the target is doing during a stage.
type Phase string

const (
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// Schedule is an immutable piecewise-linear VU target over elapsed time.
type Schedule struct {
	start  int
	stages []Stage

	// ends[i] is the elapsed time at which stage i finishes
	ends  []time.Duration
	total time.Duration
	max   int
}

// New builds a schedule from a starting VU count and an ordered list of stages.
func New(start int, stages []Stage) (*Schedule, error) {
	if start < 0 {
		return nil, ErrNegativeStart
	}

	s := &Schedule{
		start:  start,
		stages: make([]Stage, len(stages)),
		ends:   make([]time.Duration, len(stages)),
		max:    start,
	}
	copy(s.stages, stages)

	for i, stage := range stages {
		if stage.Duration < 0 {
			return nil, fmt.Errorf("stage %d: %w", i+1, ErrNegativeDuration)
		}
		if stage.Target < 0 {
			return nil, fmt.Errorf("stage %d: %w", i+1, ErrNegativeTarget)
		}
		s.total += stage.Duration
		s.ends[i] = s.total
		if stage.Target > s.max {
			s.max = stage.Target
		}
	}

	return s, nil
}

// Start returns the VU count at elapsed time zero.
func (s *Schedule) Start() int {
	return s.start
}

// Stages returns a copy of the configured stages.
func (s *Schedule) Stages() []Stage {
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// TotalDuration is the sum of all stage durations. The run ends there.
func (s *Schedule) TotalDuration() time.Duration {
	return s.total
}

// MaxTarget is the highest VU count the schedule ever asks for.
func (s *Schedule) MaxTarget() int {
	return s.max
}

// Done reports whether elapsed is at or past the end of the last stage.
func (s *Schedule) Done(elapsed time.Duration) bool {
	return elapsed >= s.total
}

// TargetAt returns the exact (unrounded) VU target at the given elapsed time.
func (s *Schedule) TargetAt(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return float64(s.start)
	}

	prev := s.start
	var stageStart time.Duration
	for i, stage := range s.stages {
		if elapsed < s.ends[i] {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			return float64(prev) + float64(stage.Target-prev)*progress
		}
		prev = stage.Target
		stageStart = s.ends[i]
	}

	return float64(prev)
}

// VUsAt returns TargetAt rounded to the nearest whole VU.
func (s *Schedule) VUsAt(elapsed time.Duration) int {
	return int(math.Round(s.TargetAt(elapsed)))
}

// StageAt returns the index of the stage active at elapsed. ok is false once
// the schedule is done or when there are no stages.
func (s *Schedule) StageAt(elapsed time.Duration) (int, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	for i := range s.stages {
		if elapsed < s.ends[i] {
			return i, true
		}
	}
	return len(s.stages), false
}

// PhaseAt classifies the stage active at elapsed.
func (s *Schedule) PhaseAt(elapsed time.Duration) Phase {
	idx, ok := s.StageAt(elapsed)
	if !ok {
		return PhaseDone
	}

	prev := s.start
	if idx > 0 {
		prev = s.stages[idx-1].Target
	}

	switch target := s.stages[idx].Target; {
	case target > prev:
		return PhaseRampUp
	case target < prev:
		return PhaseRampDown
	default:
		return PhaseSteady
	}
}
