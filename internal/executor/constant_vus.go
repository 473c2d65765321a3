package executor

import (
	"errors"
	"time"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/stages"
)

// ConstantVUs runs a fixed number of VUs for a duration.
//
// It is a single flat stage that starts at full load, so it shares the
// ramping executor's control loop and drain behaviour.
type ConstantVUs struct {
	*RampingVUs
	vus      int
	duration time.Duration
}

// NewConstantVUs creates a constant-VUs executor.
func NewConstantVUs(vus int, duration time.Duration, config Config) (*ConstantVUs, error) {
	if vus <= 0 {
		return nil, errors.New("executor: vus must be > 0")
	}
	if duration <= 0 {
		return nil, errors.New("executor: duration must be > 0")
	}

	schedule, err := stages.New(vus, []stages.Stage{{Duration: duration, Target: vus, Name: "constant"}})
	if err != nil {
		return nil, err
	}
	ramping, err := NewRampingVUs(schedule, config)
	if err != nil {
		return nil, err
	}
	ramping.kind = TypeConstantVUs
	return &ConstantVUs{RampingVUs: ramping, vus: vus, duration: duration}, nil
}

// VUs returns the configured VU count.
func (e *ConstantVUs) VUs() int {
	return e.vus
}

// New picks the executor for a run configuration: constant-vus when it uses
// the vus/duration shortcut, ramping-vus otherwise. Graceful periods set in rc
// override the ones in c.
func New(rc *config.RunConfig, c Config) (Executor, error) {
	if rc.GracefulStop != nil {
		c.GracefulStop = Grace(time.Duration(*rc.GracefulStop))
	}
	if rc.GracefulRampDown != nil {
		c.GracefulRampDown = Grace(time.Duration(*rc.GracefulRampDown))
	}

	if len(rc.Stages) == 0 && rc.VUs > 0 {
		return NewConstantVUs(rc.VUs, time.Duration(rc.Duration), c)
	}

	start, st := rc.Profile()
	schedule, err := stages.New(start, st)
	if err != nil {
		return nil, err
	}
	return NewRampingVUs(schedule, c)
}

// Ensure ConstantVUs implements Executor
var _ Executor = (*ConstantVUs)(nil)
