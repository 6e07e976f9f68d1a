package alarm

import (
	"fmt"
	"log/slog"
	"time"
)

// State is the controller's lifecycle position.
type State int

const (
	Idle State = iota
	Arming
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Arming:
		return "arming"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Episode summarizes one completed alarm, from activation to recovery.
type Episode struct {
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
	Playbacks int
	Reason    string
}

// Event reports what a tick did: Activated is true on the Arming→Active
// transition, Episode is non-nil on recovery.
type Event struct {
	Activated bool
	Episode   *Episode
}

// Controller layers a second debounce on top of the per-condition monitors:
// the aggregated condition must hold for warnThreshold consecutive ticks
// before the sound engages. The aggregate flips true the instant any one
// monitor's own hysteresis fires, so this guard band keeps a single
// borderline condition from going audible immediately.
//
// Single-threaded by contract; only the engine goroutine calls Tick.
type Controller struct {
	sound         Sound
	warnThreshold int
	logger        *slog.Logger

	state      State
	warnCount  int
	alarmStart time.Time
	playbacks  int
	reason     string
}

func NewController(sound Sound, warnThreshold int, logger *slog.Logger) (*Controller, error) {
	if sound == nil {
		return nil, fmt.Errorf("sound must not be nil")
	}
	if warnThreshold < 1 {
		return nil, fmt.Errorf("warn threshold must be >= 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sound:         sound,
		warnThreshold: warnThreshold,
		logger:        logger.With("component", "alarm_controller"),
	}, nil
}

// State returns the current lifecycle position.
func (c *Controller) State() State {
	return c.state
}

// Tick advances the state machine by one evaluated sample.
func (c *Controller) Tick(conditionMet bool, reason string, now time.Time) Event {
	if !conditionMet {
		return c.tickClear(now)
	}
	return c.tickMet(reason, now)
}

func (c *Controller) tickMet(reason string, now time.Time) Event {
	switch c.state {
	case Idle:
		c.state = Arming
		c.warnCount = 1
		c.reason = reason
		c.logger.Info("condition met, arming", "warn_count", c.warnCount, "threshold", c.warnThreshold, "reason", reason)
	case Arming:
		c.warnCount++
		c.reason = reason
		c.logger.Info("condition persists", "warn_count", c.warnCount, "threshold", c.warnThreshold)
	case Active:
		// Keep the alarm audibly continuous while the condition holds.
		if !c.sound.Active() {
			c.sound.Play()
			c.playbacks++
			c.logger.Info("alarm clip finished, replaying", "playbacks", c.playbacks)
		}
		return Event{}
	}

	if c.warnCount >= c.warnThreshold {
		c.state = Active
		c.warnCount = 0
		c.alarmStart = now
		c.playbacks = 1
		c.sound.Play()
		c.logger.Warn("alarm activated", "reason", c.reason)
		return Event{Activated: true}
	}
	return Event{}
}

func (c *Controller) tickClear(now time.Time) Event {
	switch c.state {
	case Idle:
		return Event{}
	case Arming:
		c.logger.Info("condition cleared while arming", "warn_count", c.warnCount)
		c.state = Idle
		c.warnCount = 0
		c.reason = ""
		return Event{}
	}

	// Active → Idle. Stop is unconditional and idempotent.
	c.sound.Stop()
	episode := &Episode{
		StartedAt: c.alarmStart,
		EndedAt:   now,
		Duration:  now.Sub(c.alarmStart),
		Playbacks: c.playbacks,
		Reason:    c.reason,
	}
	c.logger.Info("alarm recovered",
		"duration", episode.Duration, "playbacks", episode.Playbacks, "reason", episode.Reason)

	c.state = Idle
	c.warnCount = 0
	c.alarmStart = time.Time{}
	c.playbacks = 0
	c.reason = ""
	return Event{Episode: episode}
}

// Shutdown silences the sound regardless of state. Called synchronously on
// engine stop so the process never exits with the clip still playing.
func (c *Controller) Shutdown() {
	c.sound.Stop()
	if err := c.sound.Close(); err != nil {
		c.logger.Debug("failed to close alarm sound", "err", err)
	}
}
