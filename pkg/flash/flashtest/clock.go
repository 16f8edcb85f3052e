// Package flashtest provides a manual clock for driving flash timers in
// tests.
package flashtest

import (
	"sort"
	"sync"
	"time"

	"github.com/rescp17/reactionTrainer/pkg/flash"
)

// Clock is a flash.Clock whose time only moves on Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	nextID uint64
	timers map[uint64]*timer
	delays []time.Duration
}

type timer struct {
	clock *Clock
	id    uint64
	at    time.Duration
	fn    func()
}

func NewClock() *Clock {
	return &Clock{timers: make(map[uint64]*timer)}
}

func (c *Clock) AfterFunc(d time.Duration, f func()) flash.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &timer{clock: c, id: c.nextID, at: c.now + d, fn: f}
	c.timers[t.id] = t
	c.delays = append(c.delays, d)
	return t
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

// Advance moves time forward by d, firing due timers in deadline order.
// Timers scheduled by a callback fire too if they fall within the window.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.earliestLocked()
		if next == nil || next.at > target {
			c.now = target
			c.mu.Unlock()
			return
		}
		delete(c.timers, next.id)
		c.now = next.at
		c.mu.Unlock()

		next.fn()
	}
}

func (c *Clock) earliestLocked() *timer {
	var best *timer
	for _, t := range c.timers {
		if best == nil || t.at < best.at || (t.at == best.at && t.id < best.id) {
			best = t
		}
	}
	return best
}

// Active reports how many timers are still pending.
func (c *Clock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Now is the elapsed manual time.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Delays returns every delay handed to AfterFunc so far, in call order.
func (c *Clock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// PendingDeadlines lists the pending deadlines in ascending order.
func (c *Clock) PendingDeadlines() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Link records what a flash.Controller sends.
type Link struct {
	mu     sync.Mutex
	sent   []string
	err    error
	closed bool
}

func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

// SetOpen controls what IsOpen reports. A new Link is open.
func (l *Link) SetOpen(open bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = !open
}

func (l *Link) SendText(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, text)
	return nil
}

// FailWith makes later sends fail.
func (l *Link) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *Link) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

// Configs returns the sent messages that are not flash signals.
func (l *Link) Configs() []string {
	var out []string
	for _, s := range l.Sent() {
		if s != flash.SignalFlash {
			out = append(out, s)
		}
	}
	return out
}

// Flashes counts the flash signals sent.
func (l *Link) Flashes() int {
	n := 0
	for _, s := range l.Sent() {
		if s == flash.SignalFlash {
			n++
		}
	}
	return n
}
