package flash

import (
	"errors"
	"fmt"
	"time"
)

// Icon is the picture shown while a flash is on.
type Icon string

const (
	IconBall   Icon = "ball"
	IconPlayer Icon = "player"
)

// Interval bounds, in whole seconds, accepted from the settings controls.
const (
	MinIntervalLimit = 1
	MaxIntervalLimit = 25
)

var (
	ErrInvalidEdit   = errors.New("invalid flash setting")
	ErrInvalidConfig = errors.New("invalid flash config")
)

// Config is the shared flash configuration. The JSON names match the
// browser trainer so that either implementation can lead the other.
type Config struct {
	Playing            bool    `json:"isFlashPlaying"`
	Icon               Icon    `json:"iconName"`
	MinIntervalSeconds float64 `json:"minIntervalSecs"`
	MaxIntervalSeconds float64 `json:"maxIntervalSecs"`
	PulseSeconds       float64 `json:"timeoutSecs"`
}

// DefaultConfig returns the settings a new session starts with.
func DefaultConfig() Config {
	return Config{
		Icon:               IconBall,
		MinIntervalSeconds: 3,
		MaxIntervalSeconds: 3,
		PulseSeconds:       1,
	}
}

// Validate checks a config received from a peer or built from flags.
func (c Config) Validate() error {
	if _, err := ParseIcon(string(c.Icon)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MinIntervalSeconds <= 0 {
		return fmt.Errorf("%w: minIntervalSecs must be positive", ErrInvalidConfig)
	}
	if c.MaxIntervalSeconds < c.MinIntervalSeconds {
		return fmt.Errorf("%w: maxIntervalSecs cannot be less than minIntervalSecs", ErrInvalidConfig)
	}
	if c.PulseSeconds <= 0 {
		return fmt.Errorf("%w: timeoutSecs must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithMinInterval returns a copy with a new lower bound. Values outside the
// control range or above the current upper bound are rejected, not clamped.
func (c Config) WithMinInterval(secs float64) (Config, error) {
	if err := checkIntervalRange(secs); err != nil {
		return c, err
	}
	if secs > c.MaxIntervalSeconds {
		return c, fmt.Errorf("%w: min interval %gs is above max interval %gs", ErrInvalidEdit, secs, c.MaxIntervalSeconds)
	}
	c.MinIntervalSeconds = secs
	return c, nil
}

// WithMaxInterval is the upper-bound counterpart of WithMinInterval.
func (c Config) WithMaxInterval(secs float64) (Config, error) {
	if err := checkIntervalRange(secs); err != nil {
		return c, err
	}
	if secs < c.MinIntervalSeconds {
		return c, fmt.Errorf("%w: max interval %gs is below min interval %gs", ErrInvalidEdit, secs, c.MinIntervalSeconds)
	}
	c.MaxIntervalSeconds = secs
	return c, nil
}

// WithPulse returns a copy with a new flash duration.
func (c Config) WithPulse(secs float64) (Config, error) {
	if secs <= 0 || secs > MaxIntervalLimit {
		return c, fmt.Errorf("%w: flash duration must be in (0, %d]s, got %gs", ErrInvalidEdit, MaxIntervalLimit, secs)
	}
	c.PulseSeconds = secs
	return c, nil
}

// WithIcon returns a copy showing a different icon.
func (c Config) WithIcon(icon Icon) (Config, error) {
	if _, err := ParseIcon(string(icon)); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	c.Icon = icon
	return c, nil
}

func checkIntervalRange(secs float64) error {
	if secs < MinIntervalLimit || secs > MaxIntervalLimit || secs != float64(int(secs)) {
		return fmt.Errorf("%w: interval must be a whole number of seconds in [%d, %d], got %g",
			ErrInvalidEdit, MinIntervalLimit, MaxIntervalLimit, secs)
	}
	return nil
}

// MinInterval and MaxInterval bound the delay between two flashes.
func (c Config) MinInterval() time.Duration { return seconds(c.MinIntervalSeconds) }
func (c Config) MaxInterval() time.Duration { return seconds(c.MaxIntervalSeconds) }

// Pulse is how long a flash stays on.
func (c Config) Pulse() time.Duration { return seconds(c.PulseSeconds) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseIcon maps a name to an Icon.
func ParseIcon(name string) (Icon, error) {
	switch Icon(name) {
	case IconBall, IconPlayer:
		return Icon(name), nil
	default:
		return "", fmt.Errorf("unknown icon %q (want %q or %q)", name, IconBall, IconPlayer)
	}
}

// Toggle returns the other icon.
func (i Icon) Toggle() Icon {
	if i == IconPlayer {
		return IconBall
	}
	return IconPlayer
}
