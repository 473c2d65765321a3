package executor

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is pooled and not running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is actively running iterations.
	VUStateRunning
	// VUStateStopping indicates the VU will exit after its current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VU is a single simulated user. One goroutine drives it at a time; the pool
// hands stopped VUs back out when the target rises again.
type VU struct {
	// ID is unique within a run and stable across reuse
	ID int

	state     atomic.Int32
	iteration atomic.Int64

	// Per-activation fields, reset by activate while the VU is not running.
	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	deadline context.Context
	grace    time.Duration
	timer    *time.Timer

	rng *rand.Rand
}

func newVU(id int, seed int64) *VU {
	return &VU{
		ID:  id,
		rng: rand.New(rand.NewSource(seed + int64(id))),
	}
}

// activate prepares the VU for a new goroutine. parent is the hard context
// that bounds in-flight requests; deadline ends when no new iteration may
// start.
func (vu *VU) activate(parent, deadline context.Context, grace time.Duration) {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	vu.ctx, vu.cancel = context.WithCancel(parent)
	vu.deadline = deadline
	vu.grace = grace
	vu.stopCh = make(chan struct{})
	vu.doneCh = make(chan struct{})
	vu.timer = nil
	vu.state.Store(int32(VUStateRunning))
}

// State returns the current VU state.
func (vu *VU) State() VUState {
	return VUState(vu.state.Load())
}

// Iteration returns how many iterations this VU has started.
func (vu *VU) Iteration() int64 {
	return vu.iteration.Load()
}

// Rand returns the VU's private random source. It must only be used from the
// iteration callback.
func (vu *VU) Rand() *rand.Rand {
	return vu.rng
}

// Context returns the context bounding the VU's in-flight work.
func (vu *VU) Context() context.Context {
	vu.mu.Lock()
	defer vu.mu.Unlock()
	return vu.ctx
}

// Sleep pauses the calling iteration for d. It returns false when it was cut
// short, which happens only when the run deadline passes or the VU's context
// is cancelled. A ramp-down stop request does not wake it.
func (vu *VU) Sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}

	vu.mu.Lock()
	ctx, deadline := vu.ctx, vu.deadline
	vu.mu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-deadline.Done():
		return false
	}
}

// RequestStop asks the VU to exit once its current iteration finishes. If
// the iteration is still running after the ramp-down grace, its context is
// cancelled.
func (vu *VU) RequestStop() {
	if !vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) {
		return
	}

	vu.mu.Lock()
	defer vu.mu.Unlock()
	close(vu.stopCh)
	vu.timer = time.AfterFunc(vu.grace, vu.cancel)
}

// stopping reports whether RequestStop has been called for this activation.
func (vu *VU) stopping() bool {
	select {
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// WaitForStop waits for the VU goroutine to exit.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VU) WaitForStop(timeout time.Duration) bool {
	vu.mu.Lock()
	done := vu.doneCh
	vu.mu.Unlock()
	if done == nil {
		return true
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// markStopped is called by the goroutine driving the VU as it exits.
func (vu *VU) markStopped() {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	if vu.timer != nil {
		vu.timer.Stop()
	}
	vu.cancel()
	vu.state.Store(int32(VUStateStopped))
	close(vu.doneCh)
}
