package engine

import (
	"time"

	"github.com/wesleyorama2/stampede/internal/check"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

// Process exit codes. The non-zero values are the ones k6 uses.
const (
	ExitOK               = 0
	ExitThresholdsFailed = 99
	ExitInvalidConfig    = 104
	ExitInterrupted      = 105
	ExitAbortedByFail    = 108
)

// Result is the outcome of a run.
type Result struct {
	RunID     string    `json:"runId"`
	Name      string    `json:"name"`
	TargetURL string    `json:"targetUrl"`
	StartTime time.Time `json:"startTime"`

	Duration time.Duration `json:"duration"`

	// Passed is true when every threshold passed and none aborted the run
	Passed bool `json:"passed"`

	// Aborted is true when an abortOnFail threshold stopped the run early
	Aborted   bool              `json:"aborted"`
	AbortedBy *threshold.Result `json:"abortedBy,omitempty"`

	// Interrupted is true when the caller cancelled the run
	Interrupted bool `json:"interrupted"`

	Thresholds []threshold.Result `json:"thresholds"`
	Checks     []check.Result     `json:"checks"`

	Metrics    *metrics.Snapshot     `json:"metrics"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange `json:"phases,omitempty"`
	SteadyRPS  float64               `json:"steadyRps"`

	ExecutorStats executor.Stats `json:"executorStats"`
}

// ExitCode maps the result to a process exit code.
func (r *Result) ExitCode() int {
	switch {
	case r.Aborted:
		return ExitAbortedByFail
	case r.Interrupted:
		return ExitInterrupted
	case !r.Passed:
		return ExitThresholdsFailed
	default:
		return ExitOK
	}
}

// Check returns the tally for one check name.
func (r *Result) Check(name string) (check.Result, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return check.Result{}, false
}

// Threshold returns the result for metric and expression.
func (r *Result) Threshold(metric, expression string) (threshold.Result, bool) {
	for _, t := range r.Thresholds {
		if t.Metric == metric && t.Expression == expression {
			return t, true
		}
	}
	return threshold.Result{}, false
}
