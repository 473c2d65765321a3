package engine

import (
	"context"
	"time"

	"github.com/wesleyorama2/stampede/internal/check"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/metrics"
)

// IterationFunc is one VU iteration. env gives it the run's HTTP client,
// checks and pacing.
type IterationFunc func(ctx context.Context, vu *executor.VU, env *Env) error

// Env is shared by every VU of a run.
type Env struct {
	client   *http.Client
	metrics  *metrics.Engine
	checks   []check.Check
	recorder *check.Recorder
	target   string
	sleep    time.Duration
}

// TargetURL is the configured endpoint.
func (env *Env) TargetURL() string {
	return env.target
}

// Get requests url and records the request metrics. A request cut short by
// ctx is not recorded; the executor counts the iteration as dropped instead.
func (env *Env) Get(ctx context.Context, vu *executor.VU, url string) *http.Result {
	r := env.client.Get(ctx, url)
	if r.Err != nil && r.Err.Kind == http.ErrorKindCanceled && ctx.Err() != nil {
		return r
	}
	env.metrics.RecordRequest(vu.ID, metrics.Request{
		Duration:       r.Duration,
		Blocked:        r.Timings.Blocked,
		Connecting:     r.Timings.Connecting,
		TLSHandshaking: r.Timings.TLSHandshaking,
		Sending:        r.Timings.Sending,
		Waiting:        r.Timings.Waiting,
		Receiving:      r.Timings.Receiving,
		Bytes:          r.Bytes,
		Success:        r.Success,
	})
	return r
}

// Check runs the configured checks against r.
func (env *Env) Check(r *http.Result) bool {
	return check.Evaluate(env.checks, r, env.recorder)
}

// Record adds one named check outcome, for iterations with their own checks.
func (env *Env) Record(name string, ok bool) bool {
	return env.recorder.Record(name, ok)
}

// Sleep pauses for the configured pacing. It returns false when the VU should
// stop instead.
func (env *Env) Sleep(vu *executor.VU) bool {
	return vu.Sleep(env.sleep)
}

// DefaultIteration requests the target URL, runs the checks, then sleeps.
// Failed checks and failed requests do not end the iteration early.
func DefaultIteration(ctx context.Context, vu *executor.VU, env *Env) error {
	r := env.Get(ctx, vu, env.target)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	env.Check(r)
	env.Sleep(vu)

	if r.Err != nil {
		return r.Err
	}
	return nil
}
