package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucket is one point of the per-interval progress series.
type TimeBucket struct {
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`

	// Cumulative since run start
	Requests   int64 `json:"requests"`
	Failures   int64 `json:"failures"`
	Iterations int64 `json:"iterations"`

	// This interval only
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRps"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`
	IntervalBytes     int64   `json:"intervalBytes"`

	// Cumulative http_req_duration percentiles, in milliseconds
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`

	VUs   int    `json:"vus"`
	Phase string `json:"phase"`
}

// TimeBucketStore keeps the most recent buckets in a ring buffer and
// accumulates the current interval with atomics.
type TimeBucketStore struct {
	mu       sync.RWMutex
	buckets  []*TimeBucket
	head     int
	count    int
	capacity int

	lastBucketTime time.Time

	intervalRequests atomic.Int64
	intervalFailures atomic.Int64
	intervalBytes    atomic.Int64
}

// NewTimeBucketStore creates a store that retains up to capacity buckets.
// For a one hour run with one second buckets use 3600.
func NewTimeBucketStore(capacity int) *TimeBucketStore {
	if capacity <= 0 {
		capacity = 3600
	}
	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, capacity),
		capacity:       capacity,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds one request to the open interval.
func (s *TimeBucketStore) RecordRequest(success bool, bytes int64) {
	s.intervalRequests.Add(1)
	s.intervalBytes.Add(bytes)
	if !success {
		s.intervalFailures.Add(1)
	}
}

// Close closes the open interval into b and appends it. The interval fields of
// b are filled in here; the caller supplies the cumulative fields.
func (s *TimeBucketStore) Close(b *TimeBucket) *TimeBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now()
	}

	requests := s.intervalRequests.Swap(0)
	failures := s.intervalFailures.Swap(0)
	b.IntervalBytes = s.intervalBytes.Swap(0)
	b.IntervalRequests = requests

	secs := b.Timestamp.Sub(s.lastBucketTime).Seconds()
	if secs <= 0 {
		secs = 1.0
	}
	b.IntervalRPS = float64(requests) / secs
	if requests > 0 {
		b.IntervalErrorRate = float64(failures) / float64(requests)
	}

	s.buckets[s.head] = b
	s.head = (s.head + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
	s.lastBucketTime = b.Timestamp

	return b
}

// Buckets returns the retained buckets oldest first.
func (s *TimeBucketStore) Buckets() []*TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	out := make([]*TimeBucket, s.count)
	first := 0
	if s.count == s.capacity {
		first = s.head
	}
	for i := 0; i < s.count; i++ {
		out[i] = s.buckets[(first+i)%s.capacity]
	}
	return out
}

// Latest returns the newest bucket, or nil.
func (s *TimeBucketStore) Latest() *TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}
	return s.buckets[(s.head-1+s.capacity)%s.capacity]
}

// Len returns the number of retained buckets.
func (s *TimeBucketStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// PhaseRPS averages IntervalRPS over the buckets tagged with phase. It returns
// the number of buckets used; zero means no bucket matched.
func (s *TimeBucketStore) PhaseRPS(phase string) (float64, int) {
	var sum float64
	n := 0
	for _, b := range s.Buckets() {
		if b.Phase == phase {
			sum += b.IntervalRPS
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
