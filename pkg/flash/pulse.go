package flash

import (
	"sync"
	"time"
)

// Pulse turns the local flash on for a fixed duration. Triggering while on
// restarts the duration.
type Pulse struct {
	clock    Clock
	onChange func(on bool)

	mu     sync.Mutex
	on     bool
	seq    uint64
	timer  Timer
	closed bool
}

func NewPulse(clock Clock, onChange func(on bool)) *Pulse {
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &Pulse{clock: clock, onChange: onChange}
}

// Trigger turns the flash on and schedules it off after d.
func (p *Pulse) Trigger(d time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.seq++
	seq := p.seq
	p.on = true
	p.timer = p.clock.AfterFunc(d, func() { p.release(seq) })
	p.mu.Unlock()

	p.onChange(true)
}

func (p *Pulse) release(seq uint64) {
	p.mu.Lock()
	if p.seq != seq || !p.on {
		p.mu.Unlock()
		return
	}
	p.on = false
	p.timer = nil
	p.mu.Unlock()

	p.onChange(false)
}

func (p *Pulse) On() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

// Pending reports whether an off timer is scheduled.
func (p *Pulse) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		return 1
	}
	return 0
}

// Cancel turns the flash off now.
func (p *Pulse) Cancel() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	wasOn := p.on
	p.on = false
	p.seq++
	p.mu.Unlock()

	if wasOn {
		p.onChange(false)
	}
}

// Close cancels the flash and ignores later triggers.
func (p *Pulse) Close() {
	p.Cancel()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
