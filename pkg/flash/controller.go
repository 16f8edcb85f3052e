package flash

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

var (
	ErrNotLeader    = errors.New("only the leader can change flash settings")
	ErrNotConnected = errors.New("no connected peer")
	ErrClosed       = errors.New("flash controller closed")
)

// Role decides who drives the session.
type Role int

const (
	RoleLeader Role = iota
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Link sends text to the peer.
type Link interface {
	SendText(text string) error
}

// opener is implemented by links that can exist before they deliver, like a
// data channel between "connected" and SCTP open.
type opener interface {
	IsOpen() bool
}

func linkReady(l Link) bool {
	if l == nil {
		return false
	}
	if o, ok := l.(opener); ok {
		return o.IsOpen()
	}
	return true
}

// State is a read-only view of the controller.
type State struct {
	Role     Role
	Config   Config
	FlashOn  bool
	Attached bool
}

type Options struct {
	Clock Clock
	// Random returns values in [0, 1) for the delay jitter.
	Random func() float64
	// Coin picks the side of each flash: true flashes locally.
	Coin func() bool
	// OnChange is called outside of any lock after every state change.
	OnChange func(State)
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	if o.Random == nil {
		o.Random = rand.Float64
	}
	if o.Coin == nil {
		o.Coin = func() bool { return rand.IntN(2) == 0 }
	}
	if o.OnChange == nil {
		o.OnChange = func(State) {}
	}
	return o
}

// Controller runs the flash protocol for one side of a paired session.
// The leader owns the config and the scheduling loop; every change it makes
// is pushed to the follower in full. The follower only mirrors what it
// receives and flashes when told to.
type Controller struct {
	role     Role
	coin     func() bool
	onChange func(State)

	// ops serializes user operations so Start and Stop cannot interleave.
	ops sync.Mutex

	mu     sync.Mutex
	cfg    Config
	link   Link
	closed bool

	sched *Scheduler
	pulse *Pulse
}

func NewController(role Role, cfg Config, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		role:     role,
		coin:     opts.Coin,
		onChange: opts.OnChange,
		cfg:      cfg,
	}
	c.cfg.Playing = false
	c.pulse = NewPulse(opts.Clock, func(bool) { c.notify() })
	c.sched = NewScheduler(opts.Clock, opts.Random, c.bounds, c.tick)
	return c
}

// Attach sets the link used to talk to the peer.
func (c *Controller) Attach(link Link) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.link = link
	c.mu.Unlock()
	c.notify()
}

// Start marks the session playing, pushes the config and begins flashing.
// Starting a running session is a no-op.
func (c *Controller) Start() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if err := c.checkLeaderLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.cfg.Playing {
		c.mu.Unlock()
		return nil
	}
	if !linkReady(c.link) {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.cfg.Playing = true
	link, cfg := c.link, c.cfg
	c.mu.Unlock()

	c.push(link, cfg)
	c.notify()
	c.sched.Start()
	slog.Info("Flash session started", "minInterval", cfg.MinInterval(), "maxInterval", cfg.MaxInterval(), "pulse", cfg.Pulse())
	return nil
}

// Stop halts the loop and tells the follower it stopped.
func (c *Controller) Stop() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if err := c.checkLeaderLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.cfg.Playing {
		c.mu.Unlock()
		return nil
	}
	c.cfg.Playing = false
	link, cfg := c.link, c.cfg
	c.mu.Unlock()

	c.sched.Stop()
	c.push(link, cfg)
	c.notify()
	slog.Info("Flash session stopped")
	return nil
}

func (c *Controller) SetMinInterval(secs float64) error {
	return c.edit(func(cfg Config) (Config, error) { return cfg.WithMinInterval(secs) })
}

func (c *Controller) SetMaxInterval(secs float64) error {
	return c.edit(func(cfg Config) (Config, error) { return cfg.WithMaxInterval(secs) })
}

func (c *Controller) SetPulse(secs float64) error {
	return c.edit(func(cfg Config) (Config, error) { return cfg.WithPulse(secs) })
}

func (c *Controller) SetIcon(icon Icon) error {
	return c.edit(func(cfg Config) (Config, error) { return cfg.WithIcon(icon) })
}

func (c *Controller) edit(apply func(Config) (Config, error)) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if err := c.checkLeaderLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	next, err := apply(c.cfg)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.cfg = next
	link := c.link
	c.mu.Unlock()

	c.push(link, next)
	c.notify()
	return nil
}

// HandleMessage applies one message received from the peer. Only the
// follower reacts; the leader ignores inbound traffic.
func (c *Controller) HandleMessage(data []byte) error {
	if c.role != RoleFollower {
		slog.Debug("Leader ignoring inbound message", "bytes", len(data))
		return nil
	}

	msg, err := ParseMessage(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch msg.Kind {
	case MessageFlash:
		c.cfg.Playing = true
		pulse := c.cfg.Pulse()
		c.mu.Unlock()
		c.pulse.Trigger(pulse)
	case MessageConfig:
		c.cfg = msg.Config
		playing := c.cfg.Playing
		c.mu.Unlock()
		if !playing {
			c.pulse.Cancel()
		}
		c.notify()
	default:
		c.mu.Unlock()
	}
	return nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Pending counts the timers the controller still owns.
func (c *Controller) Pending() int {
	return c.sched.Pending() + c.pulse.Pending()
}

// Close stops everything and drops the link. It is safe to call twice.
func (c *Controller) Close() {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cfg.Playing = false
	c.link = nil
	c.mu.Unlock()

	c.sched.Stop()
	c.pulse.Close()
}

func (c *Controller) checkLeaderLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.role != RoleLeader {
		return ErrNotLeader
	}
	return nil
}

func (c *Controller) snapshotLocked() State {
	return State{
		Role:     c.role,
		Config:   c.cfg,
		FlashOn:  c.pulse.On(),
		Attached: c.link != nil,
	}
}

func (c *Controller) notify() {
	c.onChange(c.Snapshot())
}

func (c *Controller) bounds() (min, max time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.MinInterval(), c.cfg.MaxInterval()
}

// tick flashes one side at random: locally, or by signalling the follower.
func (c *Controller) tick() {
	c.mu.Lock()
	if c.closed || !c.cfg.Playing {
		c.mu.Unlock()
		return
	}
	pulse, link := c.cfg.Pulse(), c.link
	c.mu.Unlock()

	if c.coin() {
		c.pulse.Trigger(pulse)
		return
	}
	if link == nil {
		slog.Warn("Flash signal dropped, no peer attached")
		return
	}
	if err := link.SendText(SignalFlash); err != nil {
		slog.Warn("Failed to send flash signal", "error", err)
	}
}

func (c *Controller) push(link Link, cfg Config) {
	if link == nil {
		return
	}
	text, err := EncodeConfig(cfg)
	if err != nil {
		slog.Error("Failed to encode flash config", "error", err)
		return
	}
	if err := link.SendText(text); err != nil {
		slog.Warn("Failed to push flash config", "error", err)
	}
}
