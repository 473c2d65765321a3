package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Registry holds named metrics. Lookups create the metric on first use.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
	hist    HistogramConfig
	start   time.Time
}

// NewRegistry creates an empty registry whose rate window starts now.
func NewRegistry(hist HistogramConfig) *Registry {
	return &Registry{
		metrics: make(map[string]Metric),
		hist:    hist,
		start:   time.Now(),
	}
}

// Counter returns the counter with the given name, creating it if needed.
// It panics if name is already registered with a different kind.
func (r *Registry) Counter(name string) *Counter {
	return r.getOrCreate(name, KindCounter, func() Metric { return newCounter(name) }).(*Counter)
}

// Gauge returns the gauge with the given name, creating it if needed.
func (r *Registry) Gauge(name string) *Gauge {
	return r.getOrCreate(name, KindGauge, func() Metric { return newGauge(name) }).(*Gauge)
}

// Rate returns the rate with the given name, creating it if needed.
func (r *Registry) Rate(name string) *Rate {
	return r.getOrCreate(name, KindRate, func() Metric { return newRate(name) }).(*Rate)
}

// Trend returns the trend with the given name, creating it if needed.
func (r *Registry) Trend(name string) *Trend {
	return r.getOrCreate(name, KindTrend, func() Metric { return newTrend(name, r.hist) }).(*Trend)
}

func (r *Registry) getOrCreate(name string, kind Kind, create func() Metric) Metric {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if m, ok = r.metrics[name]; !ok {
			m = create()
			r.metrics[name] = m
			r.order = append(r.order, name)
		}
		r.mu.Unlock()
	}

	if m.Kind() != kind {
		panic(fmt.Sprintf("metric %q registered as %s, requested as %s", name, m.Kind(), kind))
	}
	return m
}

// Lookup returns the kind of a registered metric.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	if !ok {
		return 0, false
	}
	return m.Kind(), true
}

// Names returns metric names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot reads every metric once. Trend shards are merged here.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	metrics := make([]Metric, 0, len(r.order))
	for _, name := range r.order {
		metrics = append(metrics, r.metrics[name])
	}
	r.mu.RUnlock()

	now := time.Now()
	elapsed := now.Sub(r.start)

	snap := &Snapshot{
		Samples:   make(map[string]Sample, len(metrics)),
		Order:     make([]string, 0, len(metrics)),
		Elapsed:   elapsed,
		Timestamp: now,
	}
	for _, m := range metrics {
		snap.Samples[m.Name()] = m.sample(elapsed)
		snap.Order = append(snap.Order, m.Name())
	}
	return snap
}

// Snapshot is a point-in-time copy of every registered metric.
type Snapshot struct {
	Samples   map[string]Sample `json:"samples"`
	Order     []string          `json:"-"`
	Elapsed   time.Duration     `json:"elapsed"`
	Timestamp time.Time         `json:"timestamp"`
}

// Get returns the sample for name.
func (s *Snapshot) Get(name string) (Sample, bool) {
	if s == nil {
		return Sample{}, false
	}
	sample, ok := s.Samples[name]
	return sample, ok
}
