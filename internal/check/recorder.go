// Package check records named pass/fail assertions made during a run and
// evaluates the declarative checks a run file can define.
//
// A failed check never stops an iteration or the run; it is only counted.
package check

import (
	"sync"
	"sync/atomic"
)

// Observer receives every recorded outcome. The metrics engine implements it
// to keep the "checks" rate.
type Observer interface {
	RecordCheck(ok bool)
}

type tally struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// Recorder keeps per-name pass/fail counts. It is safe for concurrent use by
// any number of VUs.
type Recorder struct {
	tallies sync.Map // name -> *tally

	orderMu sync.Mutex
	order   []string

	observer Observer
}

// NewRecorder creates a recorder. observer may be nil.
func NewRecorder(observer Observer) *Recorder {
	return &Recorder{observer: observer}
}

// Record adds one outcome for name and reports ok back to the caller so it can
// be used inline.
func (r *Recorder) Record(name string, ok bool) bool {
	v, found := r.tallies.Load(name)
	if !found {
		// Store and append together so order is first-seen order.
		r.orderMu.Lock()
		var loaded bool
		v, loaded = r.tallies.LoadOrStore(name, &tally{})
		if !loaded {
			r.order = append(r.order, name)
		}
		r.orderMu.Unlock()
	}

	t := v.(*tally)
	if ok {
		t.passes.Add(1)
	} else {
		t.fails.Add(1)
	}

	if r.observer != nil {
		r.observer.RecordCheck(ok)
	}
	return ok
}

// Result is the tally for one check name.
type Result struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Total is Passes + Fails.
func (r Result) Total() int64 {
	return r.Passes + r.Fails
}

// PassRate is the fraction of passing outcomes, or 0 when nothing was recorded.
func (r Result) PassRate() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(r.Passes) / float64(total)
}

// Results returns the tallies in the order names were first recorded.
func (r *Recorder) Results() []Result {
	r.orderMu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.orderMu.Unlock()

	out := make([]Result, 0, len(names))
	for _, name := range names {
		v, _ := r.tallies.Load(name)
		t := v.(*tally)
		out = append(out, Result{
			Name:   name,
			Passes: t.passes.Load(),
			Fails:  t.fails.Load(),
		})
	}
	return out
}

// Get returns the tally for name.
func (r *Recorder) Get(name string) (Result, bool) {
	v, ok := r.tallies.Load(name)
	if !ok {
		return Result{}, false
	}
	t := v.(*tally)
	return Result{Name: name, Passes: t.passes.Load(), Fails: t.fails.Load()}, true
}
