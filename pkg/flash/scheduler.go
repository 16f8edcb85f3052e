package flash

import (
	"sync"
	"time"
)

// Scheduler runs tick, then waits a random delay drawn from the current
// bounds, and repeats until stopped. Bounds are read again on every
// iteration so edits made while running take effect on the next delay.
type Scheduler struct {
	clock  Clock
	random func() float64
	bounds func() (min, max time.Duration)
	tick   func()

	mu      sync.Mutex
	playing bool
	run     uint64
	timer   Timer
}

// NewScheduler builds a stopped scheduler. random must return values in
// [0, 1).
func NewScheduler(clock Clock, random func() float64, bounds func() (time.Duration, time.Duration), tick func()) *Scheduler {
	return &Scheduler{
		clock:  clock,
		random: random,
		bounds: bounds,
		tick:   tick,
	}
}

// Start begins the loop with an immediate first tick. It reports false if
// the loop was already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return false
	}
	s.playing = true
	s.run++
	run := s.run
	s.mu.Unlock()

	s.iterate(run)
	return true
}

// Stop cancels the pending delay. It reports false if nothing was running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return false
	}
	s.playing = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return true
}

func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Pending reports how many delayed iterations are scheduled (0 or 1).
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return 1
	}
	return 0
}

func (s *Scheduler) iterate(run uint64) {
	if !s.current(run) {
		return
	}

	s.tick()
	min, max := s.bounds()
	delay := NextDelay(min, max, s.random())

	s.mu.Lock()
	defer s.mu.Unlock()
	// Stopped, or stopped and restarted, while tick ran.
	if !s.playing || s.run != run {
		return
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.iterate(run) })
}

func (s *Scheduler) current(run uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.run != run {
		return false
	}
	s.timer = nil
	return true
}

// NextDelay maps u in [0, 1) onto [min, max).
func NextDelay(min, max time.Duration, u float64) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(u*float64(max-min))
}
