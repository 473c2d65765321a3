package executor

import (
	"sync"
)

// VUPool owns every VU of a run and keeps the number of live VUs (active
// plus draining) at or below max.
type VUPool struct {
	max   int
	seed  int64
	start func(*VU)

	mu       sync.Mutex
	active   []*VU
	draining map[int]*VU
	idle     []*VU
	created  int
	peak     int
}

// NewVUPool creates a pool capped at max live VUs. start is called with the
// pool locked for each VU that must begin running. It must not block, and
// the goroutine it launches must call Release on exit.
func NewVUPool(max int, seed int64, start func(*VU)) *VUPool {
	return &VUPool{
		max:      max,
		seed:     seed,
		start:    start,
		draining: make(map[int]*VU),
	}
}

// Scale moves the number of active VUs toward target. Excess VUs are asked to
// stop from the most recently started. New VUs are only started while live
// VUs stay within the cap, so draining VUs can hold back a rise in target.
func (p *VUPool) Scale(target int) (started, stopped int) {
	if target < 0 {
		target = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch n := len(p.active); {
	case target > n:
		spawn := target - n
		if room := p.max - p.liveLocked(); spawn > room {
			spawn = room
		}
		for i := 0; i < spawn; i++ {
			vu := p.takeLocked()
			p.active = append(p.active, vu)
			p.start(vu)
			started++
		}
	case target < n:
		for i := n - 1; i >= target; i-- {
			vu := p.active[i]
			vu.RequestStop()
			p.draining[vu.ID] = vu
			stopped++
		}
		p.active = p.active[:target]
	}
	if live := p.liveLocked(); live > p.peak {
		p.peak = live
	}
	return started, stopped
}

// Release returns vu to the idle list once its goroutine has exited.
func (p *VUPool) Release(vu *VU) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.draining[vu.ID]; ok {
		delete(p.draining, vu.ID)
	} else {
		// Exited on its own (deadline or cancellation) while still active.
		for i, a := range p.active {
			if a == vu {
				p.active = append(p.active[:i], p.active[i+1:]...)
				break
			}
		}
	}
	vu.state.Store(int32(VUStateIdle))
	p.idle = append(p.idle, vu)
}

func (p *VUPool) takeLocked() *VU {
	if n := len(p.idle); n > 0 {
		vu := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return vu
	}
	p.created++
	return newVU(p.created, p.seed)
}

func (p *VUPool) liveLocked() int {
	return len(p.active) + len(p.draining)
}

// Active returns the number of VUs that are running and not draining.
func (p *VUPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Draining returns the number of VUs finishing their last iteration.
func (p *VUPool) Draining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.draining)
}

// Live returns active plus draining VUs.
func (p *VUPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveLocked()
}

// Peak returns the highest live count seen.
func (p *VUPool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Created returns how many distinct VUs were ever allocated.
func (p *VUPool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Max returns the live VU cap.
func (p *VUPool) Max() int {
	return p.max
}
