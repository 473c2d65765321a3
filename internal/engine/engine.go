// Package engine wires a run configuration into a load run: it builds the
// schedule, the HTTP client, checks and thresholds, drives the executor and
// returns the verdict.
package engine

import (
	"context"
	"errors"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/stampede/internal/check"
	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/stages"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

// DefaultEvalInterval is how often abortOnFail thresholds are checked.
const DefaultEvalInterval = time.Second

// ErrAlreadyRun is returned when Run is called twice on one Engine.
var ErrAlreadyRun = errors.New("engine: already run")

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIteration replaces the default iteration (GET, checks, sleep).
func WithIteration(fn IterationFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.iteration = fn
		}
	}
}

// WithClock sets how often the executor re-reads the schedule.
func WithClock(tick time.Duration) Option {
	return func(e *Engine) {
		e.tick = tick
	}
}

// WithEvalInterval sets how often abortOnFail thresholds are checked.
func WithEvalInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.evalInterval = d
		}
	}
}

// WithBucketInterval sets the progress bucket width.
func WithBucketInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.bucketInterval = d
	}
}

// WithSeed fixes the per-VU random sources.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.seed = seed
	}
}

// WithStageHook is called on every stage change.
func WithStageHook(fn func(executor.StageChange)) Option {
	return func(e *Engine) {
		e.onStage = fn
	}
}

// WithProgress is called with every closed progress bucket.
func WithProgress(fn func(*metrics.TimeBucket)) Option {
	return func(e *Engine) {
		e.onBucket = fn
	}
}

// WithTransport sets the round tripper of the HTTP client.
func WithTransport(rt nethttp.RoundTripper) Option {
	return func(e *Engine) {
		e.clientOpts = append(e.clientOpts, http.WithTransport(rt))
	}
}

// Engine runs one load test. Create it with New and call Run once.
type Engine struct {
	cfg        *config.RunConfig
	schedule   *stages.Schedule
	checks     []check.Check
	thresholds []*threshold.Threshold
	client     *http.Client
	clientOpts []http.ClientOption

	logger         *zap.Logger
	iteration      IterationFunc
	tick           time.Duration
	evalInterval   time.Duration
	bucketInterval time.Duration
	seed           int64
	onStage        func(executor.StageChange)
	onBucket       func(*metrics.TimeBucket)

	ran atomic.Bool
}

// New validates cfg and prepares everything a run needs. Any problem with the
// configuration is returned as a *config.ConfigError. cfg is not modified.
func New(cfg *config.RunConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, &config.ConfigError{Err: errors.New("configuration is required")}
	}
	rc := cfg.Clone()
	config.ApplyDefaults(rc)
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          rc,
		logger:       zap.NewNop(),
		iteration:    DefaultIteration,
		evalInterval: DefaultEvalInterval,
	}
	for _, opt := range opts {
		opt(e)
	}

	start, st := rc.Profile()
	schedule, err := stages.New(start, st)
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}
	e.schedule = schedule

	if e.checks, err = check.Compile(rc.Checks); err != nil {
		return nil, &config.ConfigError{Err: err}
	}
	if e.thresholds, err = threshold.Compile(rc.Thresholds, metrics.BuiltinKind); err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	e.client = http.NewClient(ClientConfig(rc.HTTP), append([]http.ClientOption{http.WithHeaders(rc.HTTP.Headers)}, e.clientOpts...)...)
	return e, nil
}

// ClientConfig maps the run file's HTTP settings onto the client.
func ClientConfig(s config.HTTPSettings) http.Config {
	c := http.DefaultConfig()
	if s.Timeout > 0 {
		c.Timeout = time.Duration(s.Timeout)
	}
	if s.MaxIdleConnsPerHost > 0 {
		c.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	c.MaxConnsPerHost = s.MaxConnectionsPerHost
	c.DisableKeepAlives = s.DisableKeepAlives
	c.InsecureSkipVerify = s.InsecureSkipVerify
	if s.UserAgent != "" {
		c.UserAgent = s.UserAgent
	}
	return c
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() *config.RunConfig {
	return e.cfg
}

// Schedule returns the stage schedule.
func (e *Engine) Schedule() *stages.Schedule {
	return e.schedule
}

// Run executes the schedule and evaluates thresholds. Cancelling ctx
// interrupts the run; the returned Result is still filled in and the error is
// the context's.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run", runID))

	mcfg := metrics.DefaultEngineConfig()
	if e.bucketInterval > 0 {
		mcfg.BucketInterval = e.bucketInterval
	}
	mcfg.OnBucket = func(b *metrics.TimeBucket) {
		logger.Debug("progress",
			zap.Duration("elapsed", b.Elapsed),
			zap.Int("vus", b.VUs),
			zap.String("phase", b.Phase),
			zap.Int64("requests", b.Requests),
			zap.Float64("rps", b.IntervalRPS),
			zap.Float64("errorRate", b.IntervalErrorRate),
			zap.Float64("p95", b.P95),
		)
		if e.onBucket != nil {
			e.onBucket(b)
		}
	}
	m := metrics.NewEngineWithConfig(mcfg)
	defer m.Stop()

	env := &Env{
		client:   e.client,
		metrics:  m,
		checks:   e.checks,
		recorder: check.NewRecorder(m),
		target:   e.cfg.TargetURL,
		sleep:    time.Duration(*e.cfg.Sleep),
	}
	defer e.client.CloseIdleConnections()

	exec, err := executor.New(e.cfg, executor.Config{
		Iteration: func(ctx context.Context, vu *executor.VU) error {
			return e.iteration(ctx, vu, env)
		},
		TickInterval: e.tick,
		Metrics:      m,
		Logger:       logger,
		OnStage:      e.onStage,
		Seed:         e.seed,
	})
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	evaluator := threshold.NewEvaluator(e.thresholds, logger)

	logger.Info("run started",
		zap.String("name", e.cfg.Name),
		zap.String("target", e.cfg.TargetURL),
		zap.String("executor", string(exec.Type())),
		zap.Int("maxVUs", e.schedule.MaxTarget()),
		zap.Duration("duration", e.schedule.TotalDuration()),
		zap.Int("thresholds", len(e.thresholds)),
		zap.Int("checks", len(e.checks)),
	)
	start := time.Now()

	var aborted atomic.Bool
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		return exec.Run(gctx)
	})
	g.Go(func() error {
		if e.watch(gctx, done, evaluator, m) {
			aborted.Store(true)
			exec.Stop()
		}
		return nil
	})
	runErr := g.Wait()

	m.Stop()
	snap := m.Snapshot()
	summary, err := evaluator.Finish(snap)
	if err != nil {
		return nil, err
	}

	rps, _ := m.SteadyStateRPS()
	res := &Result{
		RunID:         runID,
		Name:          e.cfg.Name,
		TargetURL:     e.cfg.TargetURL,
		StartTime:     start,
		Duration:      time.Since(start),
		Passed:        summary.Passed,
		Aborted:       aborted.Load(),
		AbortedBy:     summary.AbortedBy,
		Interrupted:   runErr != nil,
		Thresholds:    summary.Results,
		Checks:        env.recorder.Results(),
		Metrics:       snap,
		TimeSeries:    m.TimeSeries(),
		Phases:        m.PhaseHistory(),
		SteadyRPS:     rps,
		ExecutorStats: exec.Stats(),
	}

	logger.Info("run finished",
		zap.Bool("passed", res.Passed),
		zap.Bool("aborted", res.Aborted),
		zap.Bool("interrupted", res.Interrupted),
		zap.Duration("elapsed", res.Duration),
		zap.Int64("iterations", res.ExecutorStats.Iterations),
		zap.Int("exitCode", res.ExitCode()),
	)
	return res, runErr
}

// watch checks abortOnFail thresholds until the executor finishes. It reports
// whether one of them tripped.
func (e *Engine) watch(ctx context.Context, done <-chan struct{}, ev *threshold.Evaluator, m *metrics.Engine) bool {
	abortable := false
	for _, t := range e.thresholds {
		if t.AbortOnFail {
			abortable = true
			break
		}
	}
	if !abortable {
		return false
	}

	ticker := time.NewTicker(e.evalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-done:
			return false
		case <-ticker.C:
			if ev.Check(m.Snapshot()) {
				return true
			}
		}
	}
}
