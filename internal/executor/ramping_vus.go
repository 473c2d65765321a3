package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/stages"
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("executor: already run")

// RampingVUs ramps VU count up and down according to stages.
//
// A control loop recomputes the target every TickInterval and scales the VU
// pool toward it. VUs removed by a ramp-down finish their current iteration
// (request and sleep included) before exiting, bounded by GracefulRampDown.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	kind     Type
	schedule *stages.Schedule
	config   Config
	pool     *VUPool
	logger   *zap.Logger

	// Set by Run before the first Scale.
	hardCtx context.Context
	softCtx context.Context

	// State
	startTime    atomic.Int64
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	phase        atomic.Value
	running      atomic.Bool
	ran          atomic.Bool

	iterations atomic.Int64
	dropped    atomic.Int64
	iterErrors atomic.Int64

	wg sync.WaitGroup

	mu            sync.Mutex
	softCancel    context.CancelFunc
	stopRequested bool
}

// NewRampingVUs creates a ramping executor for schedule.
func NewRampingVUs(schedule *stages.Schedule, config Config) (*RampingVUs, error) {
	if schedule == nil {
		return nil, errors.New("executor: schedule is required")
	}
	if config.Iteration == nil {
		return nil, ErrNoIteration
	}
	config = config.withDefaults()

	e := &RampingVUs{
		kind:     TypeRampingVUs,
		schedule: schedule,
		config:   config,
		logger:   config.Logger.Named("executor"),
	}
	e.pool = NewVUPool(schedule.MaxTarget(), config.Seed, e.startVU)
	e.phase.Store(stages.Phase(""))
	return e, nil
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return e.kind
}

// Schedule returns the schedule being executed.
func (e *RampingVUs) Schedule() *stages.Schedule {
	return e.schedule
}

// Run starts the executor and blocks until completion.
func (e *RampingVUs) Run(ctx context.Context) error {
	if !e.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	start := time.Now()
	e.startTime.Store(start.UnixNano())
	e.running.Store(true)
	defer e.running.Store(false)

	total := e.schedule.TotalDuration()

	hardCtx, hardCancel := context.WithCancel(ctx)
	defer hardCancel()
	softCtx, softCancel := context.WithDeadline(hardCtx, start.Add(total))
	defer softCancel()

	e.hardCtx, e.softCtx = hardCtx, softCtx

	e.mu.Lock()
	e.softCancel = softCancel
	if e.stopRequested {
		softCancel()
	}
	e.mu.Unlock()

	e.logger.Info("executor started",
		zap.String("type", string(e.Type())),
		zap.Int("stages", len(e.schedule.Stages())),
		zap.Int("maxVUs", e.pool.Max()),
		zap.Duration("duration", total),
	)

	e.control(softCtx, start)

	// Past the deadline VUs leave on their own after the current iteration.
	e.logger.Debug("schedule finished, waiting for VUs", zap.Int("live", e.pool.Live()))

	e.gracefulShutdown(hardCtx, hardCancel)

	e.currentStage.Store(int32(len(e.schedule.Stages())))
	e.setPhase(stages.PhaseDone)
	e.config.Metrics.SetVUs(0, e.pool.Max())

	e.logger.Info("executor finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("iterations", e.iterations.Load()),
		zap.Int64("dropped", e.dropped.Load()),
		zap.Int("peakVUs", e.pool.Peak()),
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// control adjusts VU count according to stages until ctx is done.
func (e *RampingVUs) control(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	lastStage := -1
	for {
		lastStage = e.tick(time.Since(start), lastStage)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *RampingVUs) tick(elapsed time.Duration, lastStage int) int {
	target := e.schedule.VUsAt(elapsed)
	e.targetVUs.Store(int32(target))

	started, stopped := e.pool.Scale(target)
	e.config.Metrics.SetVUs(e.pool.Active(), e.pool.Max())
	if started > 0 || stopped > 0 {
		e.logger.Debug("scaled VUs",
			zap.Int("target", target),
			zap.Int("started", started),
			zap.Int("stopped", stopped),
			zap.Int("live", e.pool.Live()),
		)
	}

	idx, ok := e.schedule.StageAt(elapsed)
	if !ok || idx == lastStage {
		return lastStage
	}
	e.currentStage.Store(int32(idx))

	stage := e.schedule.Stages()[idx]
	phase := e.schedule.PhaseAt(elapsed)
	e.setPhase(phase)

	change := StageChange{
		Index:   idx,
		Name:    stage.Name,
		Target:  stage.Target,
		Phase:   phase,
		Elapsed: elapsed,
	}
	e.logger.Info("stage started",
		zap.Int("stage", idx+1),
		zap.String("name", stage.Name),
		zap.Int("target", stage.Target),
		zap.Duration("duration", stage.Duration),
		zap.String("phase", string(phase)),
	)
	if e.config.OnStage != nil {
		e.config.OnStage(change)
	}
	return idx
}

func (e *RampingVUs) setPhase(p stages.Phase) {
	e.phase.Store(p)
	e.config.Metrics.SetPhase(string(p))
}

// startVU is the pool's start hook. It runs with the pool locked.
func (e *RampingVUs) startVU(vu *VU) {
	vu.activate(e.hardCtx, e.softCtx, *e.config.GracefulRampDown)
	e.wg.Add(1)
	go e.runVU(e.softCtx, vu)
}

// runVU runs iterations until the deadline passes or the VU is stopped.
func (e *RampingVUs) runVU(deadline context.Context, vu *VU) {
	defer e.wg.Done()
	defer e.pool.Release(vu)
	defer vu.markStopped()

	ctx := vu.Context()
	for {
		if deadline.Err() != nil || vu.stopping() {
			return
		}

		vu.iteration.Add(1)
		start := time.Now()
		err := e.runIteration(ctx, vu)

		if ctx.Err() != nil {
			// Grace ran out (or the run was cancelled) mid-iteration.
			e.dropped.Add(1)
			e.config.Metrics.RecordDroppedIteration()
			return
		}

		e.iterations.Add(1)
		e.config.Metrics.RecordIteration(vu.ID, time.Since(start))
		if err != nil {
			e.iterErrors.Add(1)
			e.logger.Debug("iteration failed", zap.Int("vu", vu.ID), zap.Error(err))
		}
	}
}

func (e *RampingVUs) runIteration(ctx context.Context, vu *VU) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panicked: %v", r)
		}
	}()
	return e.config.Iteration(ctx, vu)
}

// gracefulShutdown waits for all VUs to finish their current iteration,
// interrupting them once GracefulStop has passed.
func (e *RampingVUs) gracefulShutdown(hardCtx context.Context, hardCancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(*e.config.GracefulStop)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-hardCtx.Done():
	case <-timer.C:
		e.logger.Warn("graceful stop expired, interrupting iterations",
			zap.Duration("gracefulStop", *e.config.GracefulStop),
			zap.Int("live", e.pool.Live()),
		)
	}
	hardCancel()
	<-done
}

// Stop ends the schedule now. Iterations in flight get GracefulStop.
func (e *RampingVUs) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopRequested = true
	if e.softCancel != nil {
		e.softCancel()
	}
}

// LiveVUs returns active plus draining VUs.
func (e *RampingVUs) LiveVUs() int {
	return e.pool.Live()
}

// ActiveVUs returns the VUs that are running and not draining.
func (e *RampingVUs) ActiveVUs() int {
	return e.pool.Active()
}

// Stats returns executor statistics.
func (e *RampingVUs) Stats() Stats {
	var (
		start   time.Time
		elapsed time.Duration
	)
	if ns := e.startTime.Load(); ns != 0 {
		start = time.Unix(0, ns)
		elapsed = time.Since(start)
	}

	stageIdx := int(e.currentStage.Load())
	stageName := ""
	if all := e.schedule.Stages(); stageIdx < len(all) {
		stageName = all[stageIdx].Name
	}

	return Stats{
		StartTime:         start,
		Elapsed:           elapsed,
		TotalDuration:     e.schedule.TotalDuration(),
		ActiveVUs:         e.pool.Active(),
		DrainingVUs:       e.pool.Draining(),
		TargetVUs:         int(e.targetVUs.Load()),
		MaxVUs:            e.pool.Max(),
		PeakVUs:           e.pool.Peak(),
		CreatedVUs:        e.pool.Created(),
		Iterations:        e.iterations.Load(),
		DroppedIterations: e.dropped.Load(),
		IterationErrors:   e.iterErrors.Load(),
		CurrentStage:      stageIdx,
		CurrentStageName:  stageName,
		TotalStages:       len(e.schedule.Stages()),
		Phase:             e.phase.Load().(stages.Phase),
	}
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
