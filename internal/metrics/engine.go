package metrics

import (
	"context"
	"sync"
	"time"
)

// Built-in metric names. They match k6 so existing threshold definitions
// can be reused unchanged.
const (
	HTTPReqs              = "http_reqs"
	HTTPReqFailed         = "http_req_failed"
	HTTPReqDuration       = "http_req_duration"
	HTTPReqBlocked        = "http_req_blocked"
	HTTPReqConnecting     = "http_req_connecting"
	HTTPReqTLSHandshaking = "http_req_tls_handshaking"
	HTTPReqSending        = "http_req_sending"
	HTTPReqWaiting        = "http_req_waiting"
	HTTPReqReceiving      = "http_req_receiving"
	Checks                = "checks"
	Iterations            = "iterations"
	IterationDuration     = "iteration_duration"
	DroppedIterations     = "dropped_iterations"
	DataReceived          = "data_received"
	VUs                   = "vus"
	VUsMax                = "vus_max"
)

var builtinKinds = map[string]Kind{
	HTTPReqs:              KindCounter,
	HTTPReqFailed:         KindRate,
	HTTPReqDuration:       KindTrend,
	HTTPReqBlocked:        KindTrend,
	HTTPReqConnecting:     KindTrend,
	HTTPReqTLSHandshaking: KindTrend,
	HTTPReqSending:        KindTrend,
	HTTPReqWaiting:        KindTrend,
	HTTPReqReceiving:      KindTrend,
	Checks:                KindRate,
	Iterations:            KindCounter,
	IterationDuration:     KindTrend,
	DroppedIterations:     KindCounter,
	DataReceived:          KindCounter,
	VUs:                   KindGauge,
	VUsMax:                KindGauge,
}

// BuiltinKind returns the kind of a built-in metric. It lets thresholds be
// checked before an Engine exists.
func BuiltinKind(name string) (Kind, bool) {
	k, ok := builtinKinds[name]
	return k, ok
}

// Request is one completed HTTP request as seen by the metrics engine.
type Request struct {
	Duration       time.Duration
	Blocked        time.Duration
	Connecting     time.Duration
	TLSHandshaking time.Duration
	Sending        time.Duration
	Waiting        time.Duration
	Receiving      time.Duration
	Bytes          int64
	Success        bool
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// Histogram bounds for every trend
	Histogram HistogramConfig

	// OnBucket is called from the emitter goroutine after each bucket closes.
	OnBucket func(*TimeBucket)
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval: time.Second,
		MaxBuckets:     3600,
		Histogram:      DefaultHistogramConfig(),
	}
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     string
	Elapsed   time.Duration
	Timestamp time.Time
	Requests  int64
}

// Engine owns the built-in metrics of a run and emits a progress bucket every
// BucketInterval.
//
// Engine is safe for concurrent use. Counters and rates are atomic, trends
// are sharded by VU id, and the emitter runs in its own goroutine.
type Engine struct {
	registry *Registry
	buckets  *TimeBucketStore

	reqs          *Counter
	reqFailed     *Rate
	reqDuration   *Trend
	reqBlocked    *Trend
	reqConnecting *Trend
	reqTLS        *Trend
	reqSending    *Trend
	reqWaiting    *Trend
	reqReceiving  *Trend
	checks        *Rate
	iterations    *Counter
	iterDuration  *Trend
	dropped       *Counter
	dataReceived  *Counter
	vus           *Gauge
	vusMax        *Gauge

	phaseMu      sync.RWMutex
	phase        string
	phaseHistory []PhaseChange

	startTime time.Time

	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

// NewEngine creates a metrics engine with default configuration and starts
// its emitter.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a metrics engine and starts its emitter.
// Call Stop when the run is over.
func NewEngineWithConfig(config EngineConfig) *Engine {
	if config.BucketInterval <= 0 {
		config.BucketInterval = time.Second
	}
	if config.Histogram.Max == 0 {
		config.Histogram = DefaultHistogramConfig()
	}

	reg := NewRegistry(config.Histogram)
	e := &Engine{
		registry: reg,
		buckets:  NewTimeBucketStore(config.MaxBuckets),

		reqs:          reg.Counter(HTTPReqs),
		reqFailed:     reg.Rate(HTTPReqFailed),
		reqDuration:   reg.Trend(HTTPReqDuration),
		reqBlocked:    reg.Trend(HTTPReqBlocked),
		reqConnecting: reg.Trend(HTTPReqConnecting),
		reqTLS:        reg.Trend(HTTPReqTLSHandshaking),
		reqSending:    reg.Trend(HTTPReqSending),
		reqWaiting:    reg.Trend(HTTPReqWaiting),
		reqReceiving:  reg.Trend(HTTPReqReceiving),
		checks:        reg.Rate(Checks),
		iterations:    reg.Counter(Iterations),
		iterDuration:  reg.Trend(IterationDuration),
		dropped:       reg.Counter(DroppedIterations),
		dataReceived:  reg.Counter(DataReceived),
		vus:           reg.Gauge(VUs),
		vusMax:        reg.Gauge(VUsMax),

		startTime: time.Now(),
		config:    config,
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.emitterCancel = cancel
	e.emitterWg.Add(1)
	go e.runEmitter(ctx)

	return e
}

// Registry exposes the underlying registry for custom metrics and snapshots.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// RecordRequest records one completed request. vu selects the trend shard.
func (e *Engine) RecordRequest(vu int, r Request) {
	e.reqs.Add(1)
	// http_req_failed is a rate of failures, so a failed request is a "true"
	// observation.
	e.reqFailed.Add(!r.Success)
	e.reqDuration.Add(vu, r.Duration)
	e.reqBlocked.Add(vu, r.Blocked)
	e.reqConnecting.Add(vu, r.Connecting)
	e.reqTLS.Add(vu, r.TLSHandshaking)
	e.reqSending.Add(vu, r.Sending)
	e.reqWaiting.Add(vu, r.Waiting)
	e.reqReceiving.Add(vu, r.Receiving)
	if r.Bytes > 0 {
		e.dataReceived.Add(r.Bytes)
	}

	e.buckets.RecordRequest(r.Success, r.Bytes)
}

// RecordCheck feeds one check outcome into the checks rate.
func (e *Engine) RecordCheck(ok bool) {
	e.checks.Add(ok)
}

// RecordIteration records a completed iteration.
func (e *Engine) RecordIteration(vu int, d time.Duration) {
	e.iterations.Add(1)
	e.iterDuration.Add(vu, d)
}

// RecordDroppedIteration counts an iteration cut short by cancellation.
func (e *Engine) RecordDroppedIteration() {
	e.dropped.Add(1)
}

// SetVUs updates the vus and vus_max gauges.
func (e *Engine) SetVUs(active, max int) {
	e.vus.Set(int64(active))
	e.vusMax.Set(int64(max))
}

// SetPhase records a phase transition. Repeating the current phase is a no-op.
func (e *Engine) SetPhase(phase string) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.phase == phase {
		return
	}
	e.phase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Elapsed:   time.Since(e.startTime),
		Timestamp: time.Now(),
		Requests:  e.reqs.Value(),
	})
}

// Phase returns the current phase label.
func (e *Engine) Phase() string {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.phase
}

// PhaseHistory returns a copy of the recorded phase transitions.
func (e *Engine) PhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	out := make([]PhaseChange, len(e.phaseHistory))
	copy(out, e.phaseHistory)
	return out
}

// Snapshot returns a point-in-time copy of every metric.
func (e *Engine) Snapshot() *Snapshot {
	return e.registry.Snapshot()
}

// TimeSeries returns the retained progress buckets oldest first.
func (e *Engine) TimeSeries() []*TimeBucket {
	return e.buckets.Buckets()
}

// SteadyStateRPS averages the request rate over buckets emitted while the
// phase label was "steady".
func (e *Engine) SteadyStateRPS() (float64, int) {
	return e.buckets.PhaseRPS("steady")
}

func (e *Engine) runEmitter(ctx context.Context) {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() *TimeBucket {
	duration := e.reqDuration.sample(0)
	failed := e.reqFailed.sample(0)

	b := e.buckets.Close(&TimeBucket{
		Elapsed:    time.Since(e.startTime),
		Requests:   e.reqs.Value(),
		Failures:   failed.Passes,
		Iterations: e.iterations.Value(),
		P50:        duration.Med,
		P95:        duration.Percentile(95),
		VUs:        int(e.vus.Value()),
		Phase:      e.Phase(),
	})

	if e.config.OnBucket != nil {
		e.config.OnBucket(b)
	}
	return b
}

// Stop stops the emitter and closes a final bucket. It is safe to call more
// than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()
	})
}
