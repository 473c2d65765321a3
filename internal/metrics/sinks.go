package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Kind identifies how a metric aggregates its observations.
type Kind int

const (
	// KindCounter sums values and derives a per-second rate.
	KindCounter Kind = iota
	// KindGauge keeps the last value and the maximum seen.
	KindGauge
	// KindRate keeps the fraction of non-zero observations.
	KindRate
	// KindTrend keeps a latency distribution.
	KindTrend
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindRate:
		return "rate"
	case KindTrend:
		return "trend"
	default:
		return "unknown"
	}
}

// Metric is a named, concurrency-safe accumulator.
type Metric interface {
	Name() string
	Kind() Kind
	sample(elapsed time.Duration) Sample
}

// Counter is a monotonically increasing sum.
type Counter struct {
	name  string
	value atomic.Int64
	count atomic.Int64
}

func newCounter(name string) *Counter { return &Counter{name: name} }

func (c *Counter) Name() string { return c.name }
func (c *Counter) Kind() Kind   { return KindCounter }

// Add adds n to the counter.
func (c *Counter) Add(n int64) {
	c.value.Add(n)
	c.count.Add(1)
}

// Value returns the current sum.
func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) sample(elapsed time.Duration) Sample {
	v := c.value.Load()
	s := Sample{
		Name:  c.name,
		Kind:  KindCounter,
		Count: c.count.Load(),
		Value: float64(v),
	}
	if elapsed > 0 {
		s.Rate = float64(v) / elapsed.Seconds()
	}
	return s
}

// Gauge holds the most recent value and the maximum value seen.
type Gauge struct {
	name  string
	value atomic.Int64
	max   atomic.Int64
	set   atomic.Bool
}

func newGauge(name string) *Gauge { return &Gauge{name: name} }

func (g *Gauge) Name() string { return g.name }
func (g *Gauge) Kind() Kind   { return KindGauge }

// Set stores v as the current value.
func (g *Gauge) Set(v int64) {
	g.value.Store(v)
	g.set.Store(true)
	for {
		cur := g.max.Load()
		if v <= cur || g.max.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Value returns the current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) sample(time.Duration) Sample {
	s := Sample{
		Name:  g.name,
		Kind:  KindGauge,
		Value: float64(g.value.Load()),
		Max:   float64(g.max.Load()),
	}
	if g.set.Load() {
		s.Count = 1
	}
	return s
}

// Rate tracks the fraction of observations that were true.
type Rate struct {
	name   string
	passes atomic.Int64
	total  atomic.Int64
}

func newRate(name string) *Rate { return &Rate{name: name} }

func (r *Rate) Name() string { return r.name }
func (r *Rate) Kind() Kind   { return KindRate }

// Add records one observation.
func (r *Rate) Add(ok bool) {
	if ok {
		r.passes.Add(1)
	}
	r.total.Add(1)
}

func (r *Rate) sample(time.Duration) Sample {
	// total is read first so passes can never exceed it in the snapshot.
	total := r.total.Load()
	passes := r.passes.Load()
	if passes > total {
		passes = total
	}
	s := Sample{
		Name:   r.name,
		Kind:   KindRate,
		Count:  total,
		Passes: passes,
	}
	if total > 0 {
		s.Rate = float64(passes) / float64(total)
		s.Value = s.Rate
	}
	return s
}

// HistogramConfig bounds the values a Trend can record, in microseconds.
type HistogramConfig struct {
	Min     int64
	Max     int64
	SigFigs int
	Shards  int
}

// DefaultHistogramConfig covers 1µs to 1 hour at 3 significant figures.
func DefaultHistogramConfig() HistogramConfig {
	return HistogramConfig{
		Min:     1,
		Max:     3600000000, // 1 hour in microseconds
		SigFigs: 3,
		Shards:  16,
	}
}

type trendShard struct {
	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	sum      float64
	min, max float64
}

// Trend records a duration distribution in sharded HDR histograms.
//
// HDR histogram RecordValue is NOT thread-safe, so each shard has its own
// lock. Writers pick a shard by key (usually the VU id) and the shards are
// merged into a fresh histogram when a sample is taken.
//
// Min, max and avg are exact. The histogram only covers [cfg.Min, cfg.Max]
// microseconds, so med and percentiles saturate at those bounds.
type Trend struct {
	name   string
	cfg    HistogramConfig
	shards []*trendShard
}

func newTrend(name string, cfg HistogramConfig) *Trend {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	t := &Trend{name: name, cfg: cfg, shards: make([]*trendShard, cfg.Shards)}
	for i := range t.shards {
		t.shards[i] = &trendShard{hist: hdrhistogram.New(cfg.Min, cfg.Max, cfg.SigFigs)}
	}
	return t
}

func (t *Trend) Name() string { return t.name }
func (t *Trend) Kind() Kind   { return KindTrend }

// Add records d in the shard selected by key.
func (t *Trend) Add(key int, d time.Duration) {
	micros := d.Microseconds()
	if micros < t.cfg.Min {
		micros = t.cfg.Min
	}
	if micros > t.cfg.Max {
		micros = t.cfg.Max
	}

	if key < 0 {
		key = -key
	}
	shard := t.shards[key%len(t.shards)]

	ms := float64(d) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}

	shard.mu.Lock()
	if shard.hist.TotalCount() == 0 || ms < shard.min {
		shard.min = ms
	}
	if ms > shard.max {
		shard.max = ms
	}
	_ = shard.hist.RecordValue(micros)
	shard.sum += ms
	shard.mu.Unlock()
}

// trendTotals are the exact aggregates kept beside the histogram.
type trendTotals struct {
	sum, min, max float64
}

func (t *Trend) merged() (*hdrhistogram.Histogram, trendTotals) {
	out := hdrhistogram.New(t.cfg.Min, t.cfg.Max, t.cfg.SigFigs)
	var tot trendTotals
	seen := false
	for _, shard := range t.shards {
		shard.mu.Lock()
		if shard.hist.TotalCount() > 0 {
			out.Merge(shard.hist)
			tot.sum += shard.sum
			if !seen || shard.min < tot.min {
				tot.min = shard.min
			}
			if shard.max > tot.max {
				tot.max = shard.max
			}
			seen = true
		}
		shard.mu.Unlock()
	}
	return out, tot
}

func (t *Trend) sample(time.Duration) Sample {
	hist, tot := t.merged()
	s := Sample{
		Name:  t.name,
		Kind:  KindTrend,
		Count: hist.TotalCount(),
		hist:  hist,
	}
	if s.Count == 0 {
		return s
	}
	s.Sum = tot.sum
	s.Avg = tot.sum / float64(s.Count)
	s.Min = tot.min
	s.Max = tot.max
	s.Med = microsToMillis(hist.ValueAtQuantile(50))
	s.Value = s.Avg
	return s
}

func microsToMillis(v int64) float64 {
	return float64(v) / 1000.0
}

// Sample is a read-only view of one metric at snapshot time.
//
// Trend values are in milliseconds.
type Sample struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Count is the number of observations (counter adds, rate observations,
	// trend samples). Gauges report 1 once set.
	Count int64 `json:"count"`

	// Value is the counter sum, gauge value, rate fraction or trend mean.
	Value float64 `json:"value"`

	// Rate is the counter per-second rate or the rate fraction.
	Rate   float64 `json:"rate"`
	Passes int64   `json:"passes,omitempty"`

	Sum float64 `json:"sum,omitempty"`
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
	Avg float64 `json:"avg,omitempty"`
	Med float64 `json:"med,omitempty"`

	hist *hdrhistogram.Histogram
}

// Percentile returns the p-th percentile (0-100) of a trend in milliseconds.
// It returns 0 for other kinds and for empty trends.
func (s Sample) Percentile(p float64) float64 {
	if s.hist == nil || s.Count == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))
	return microsToMillis(s.hist.ValueAtQuantile(p))
}

// Empty reports whether the metric has no observations.
func (s Sample) Empty() bool {
	return s.Count == 0
}
