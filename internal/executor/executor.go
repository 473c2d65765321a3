// Package executor drives virtual users through a stage schedule.
package executor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/stages"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTickInterval     = 100 * time.Millisecond
	DefaultGracefulStop     = 30 * time.Second
	DefaultGracefulRampDown = 30 * time.Second
)

// ErrNoIteration is returned when Config has no iteration callback.
var ErrNoIteration = errors.New("executor: iteration function is required")

// IterationFunc is one iteration of a VU. ctx is cancelled when the VU's
// grace runs out; errors are counted and never stop the run.
type IterationFunc func(ctx context.Context, vu *VU) error

// Executor defines the interface for load generation strategies.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Run blocks until the schedule is done and every VU has exited.
	// Cancelling ctx interrupts in-flight iterations immediately.
	Run(ctx context.Context) error

	// Stop ends the schedule early. Running iterations get the usual
	// graceful stop.
	Stop()

	// Stats returns a point-in-time view of the executor.
	Stats() Stats

	// LiveVUs returns active plus draining VUs.
	LiveVUs() int
}

// Recorder receives executor-level measurements. *metrics.Engine satisfies it.
type Recorder interface {
	RecordIteration(vu int, d time.Duration)
	RecordDroppedIteration()
	SetVUs(active, max int)
	SetPhase(phase string)
}

type nopRecorder struct{}

func (nopRecorder) RecordIteration(int, time.Duration) {}
func (nopRecorder) RecordDroppedIteration()            {}
func (nopRecorder) SetVUs(int, int)                    {}
func (nopRecorder) SetPhase(string)                    {}

// StageChange describes entering a new stage.
type StageChange struct {
	Index   int
	Name    string
	Target  int
	Phase   stages.Phase
	Elapsed time.Duration
}

// Config contains configuration for an executor.
type Config struct {
	// Iteration is run repeatedly by every active VU
	Iteration IterationFunc

	// TickInterval is how often the VU count is adjusted
	TickInterval time.Duration

	// GracefulStop bounds in-flight iterations after the last stage.
	// nil uses DefaultGracefulStop; zero interrupts them at once.
	GracefulStop *time.Duration

	// GracefulRampDown bounds the last iteration of a VU removed by a
	// ramp-down. nil uses DefaultGracefulRampDown.
	GracefulRampDown *time.Duration

	// Metrics receives iteration and VU measurements (optional)
	Metrics Recorder

	// Logger (optional)
	Logger *zap.Logger

	// OnStage is called from the control loop on every stage change (optional)
	OnStage func(StageChange)

	// Seed for per-VU random sources; zero uses the current time
	Seed int64
}

// Grace returns a pointer to d, for Config.GracefulStop and GracefulRampDown.
func Grace(d time.Duration) *time.Duration {
	return &d
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.GracefulStop == nil {
		c.GracefulStop = Grace(DefaultGracefulStop)
	}
	if c.GracefulRampDown == nil {
		c.GracefulRampDown = Grace(DefaultGracefulRampDown)
	}
	if c.Metrics == nil {
		c.Metrics = nopRecorder{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs   int `json:"activeVUs"`
	DrainingVUs int `json:"drainingVUs"`
	TargetVUs   int `json:"targetVUs"`
	MaxVUs      int `json:"maxVUs"`
	PeakVUs     int `json:"peakVUs"`
	CreatedVUs  int `json:"createdVUs"`

	// Iteration stats
	Iterations        int64 `json:"iterations"`
	DroppedIterations int64 `json:"droppedIterations"`
	IterationErrors   int64 `json:"iterationErrors"`

	// Stage info
	CurrentStage     int          `json:"currentStage"`
	CurrentStageName string       `json:"currentStageName,omitempty"`
	TotalStages      int          `json:"totalStages"`
	Phase            stages.Phase `json:"phase"`
}

// Progress returns elapsed over total, clamped to [0, 1].
func (s Stats) Progress() float64 {
	if s.TotalDuration <= 0 {
		return 1
	}
	p := float64(s.Elapsed) / float64(s.TotalDuration)
	if p > 1 {
		p = 1
	}
	return p
}
