// Package trainer is the single-device reaction trainer: the flash loop
// without a peer, where every flash points left or right.
package trainer

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rescp17/reactionTrainer/pkg/flash"
)

type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// Speaker announces the direction of a flash.
type Speaker interface {
	Speak(word string) error
}

// BellSpeaker rings the terminal bell and logs the word.
type BellSpeaker struct {
	W io.Writer
}

func (b BellSpeaker) Speak(word string) error {
	slog.Info("Speech cue", "word", word)
	if b.W == nil {
		return nil
	}
	_, err := io.WriteString(b.W, "\a")
	return err
}

type Config struct {
	Flash  flash.Config
	Speech bool
}

func DefaultConfig() Config {
	return Config{Flash: flash.DefaultConfig()}
}

func (c Config) Validate() error {
	if err := c.Flash.Validate(); err != nil {
		return fmt.Errorf("invalid trainer config: %w", err)
	}
	return nil
}

// State is a read-only view of a Trainer.
type State struct {
	Config    Config
	Playing   bool
	FlashOn   bool
	Direction Direction
	Flashes   int
}

type Options struct {
	Clock flash.Clock
	// Random returns values in [0, 1) for the delay jitter.
	Random func() float64
	// Coin picks the direction: true points left.
	Coin     func() bool
	Speaker  Speaker
	OnChange func(State)
}

// Trainer runs the flash loop locally.
type Trainer struct {
	coin     func() bool
	speaker  Speaker
	onChange func(State)

	mu        sync.Mutex
	cfg       Config
	direction Direction
	flashes   int
	closed    bool

	sched *flash.Scheduler
	pulse *flash.Pulse
}

func New(cfg Config, opts Options) *Trainer {
	if opts.Clock == nil {
		opts.Clock = flash.RealClock()
	}
	if opts.Random == nil {
		opts.Random = rand.Float64
	}
	if opts.Coin == nil {
		opts.Coin = func() bool { return rand.IntN(2) == 0 }
	}
	if opts.Speaker == nil {
		opts.Speaker = BellSpeaker{}
	}
	if opts.OnChange == nil {
		opts.OnChange = func(State) {}
	}

	t := &Trainer{
		coin:     opts.Coin,
		speaker:  opts.Speaker,
		onChange: opts.OnChange,
		cfg:      cfg,
	}
	t.cfg.Flash.Playing = false
	t.pulse = flash.NewPulse(opts.Clock, func(bool) { t.notify() })
	t.sched = flash.NewScheduler(opts.Clock, opts.Random, t.bounds, t.tick)
	return t
}

// Start begins flashing. Starting a running trainer is a no-op.
func (t *Trainer) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return flash.ErrClosed
	}
	if t.cfg.Flash.Playing {
		t.mu.Unlock()
		return nil
	}
	t.cfg.Flash.Playing = true
	t.mu.Unlock()

	t.notify()
	t.sched.Start()
	return nil
}

func (t *Trainer) Stop() {
	t.mu.Lock()
	if !t.cfg.Flash.Playing {
		t.mu.Unlock()
		return
	}
	t.cfg.Flash.Playing = false
	t.mu.Unlock()

	t.sched.Stop()
	t.notify()
}

func (t *Trainer) SetMinInterval(secs float64) error {
	return t.edit(func(c flash.Config) (flash.Config, error) { return c.WithMinInterval(secs) })
}

func (t *Trainer) SetMaxInterval(secs float64) error {
	return t.edit(func(c flash.Config) (flash.Config, error) { return c.WithMaxInterval(secs) })
}

func (t *Trainer) SetPulse(secs float64) error {
	return t.edit(func(c flash.Config) (flash.Config, error) { return c.WithPulse(secs) })
}

func (t *Trainer) SetIcon(icon flash.Icon) error {
	return t.edit(func(c flash.Config) (flash.Config, error) { return c.WithIcon(icon) })
}

// ToggleSpeech flips the spoken cue and returns the new setting.
func (t *Trainer) ToggleSpeech() bool {
	t.mu.Lock()
	t.cfg.Speech = !t.cfg.Speech
	on := t.cfg.Speech
	t.mu.Unlock()
	t.notify()
	return on
}

func (t *Trainer) edit(apply func(flash.Config) (flash.Config, error)) error {
	t.mu.Lock()
	next, err := apply(t.cfg.Flash)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.cfg.Flash = next
	t.mu.Unlock()
	t.notify()
	return nil
}

func (t *Trainer) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Config:    t.cfg,
		Playing:   t.cfg.Flash.Playing,
		FlashOn:   t.pulse.On(),
		Direction: t.direction,
		Flashes:   t.flashes,
	}
}

// Pending counts the timers the trainer still owns.
func (t *Trainer) Pending() int {
	return t.sched.Pending() + t.pulse.Pending()
}

// Close stops the loop and the flash. It is safe to call twice.
func (t *Trainer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cfg.Flash.Playing = false
	t.mu.Unlock()

	t.sched.Stop()
	t.pulse.Close()
}

func (t *Trainer) bounds() (time.Duration, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Flash.MinInterval(), t.cfg.Flash.MaxInterval()
}

func (t *Trainer) tick() {
	dir := Right
	if t.coin() {
		dir = Left
	}

	t.mu.Lock()
	if t.closed || !t.cfg.Flash.Playing {
		t.mu.Unlock()
		return
	}
	t.direction = dir
	t.flashes++
	pulse, speech := t.cfg.Flash.Pulse(), t.cfg.Speech
	t.mu.Unlock()

	t.pulse.Trigger(pulse)
	if speech {
		if err := t.speaker.Speak(string(dir)); err != nil {
			slog.Warn("Failed to speak cue", "error", err)
		}
	}
}

func (t *Trainer) notify() {
	t.onChange(t.Snapshot())
}
