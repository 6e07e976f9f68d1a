package monitor

import (
	"fmt"
	"time"
)

// stallTolerance forgives tick jitter on window boundary comparisons, so a
// check that runs a few hundred milliseconds early still closes the window.
const stallTolerance = time.Second

// StallDetector watches a counter that is expected to grow (files produced
// by a long-running job) and raises an alert when it has not increased for
// warnCycles consecutive windows of interval length. Between window
// boundaries the previously computed status is returned unchanged.
type StallDetector struct {
	interval   time.Duration
	warnCycles int

	initialized bool
	windowStart time.Time
	lastCount   int
	streak      int
	active      bool
	status      string
}

func NewStallDetector(interval time.Duration, warnCycles int) (*StallDetector, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("stall interval must be > 0")
	}
	if warnCycles < 1 {
		return nil, fmt.Errorf("stall warn cycles must be >= 1")
	}
	return &StallDetector{interval: interval, warnCycles: warnCycles}, nil
}

// Evaluate records the count and advances the window state. The first call
// only stores the baseline. A missing counter source is reported as count 0
// by the caller; a job with no output yet and a job stalled at zero look the
// same from here.
func (d *StallDetector) Evaluate(count int, now time.Time) Condition {
	if !d.initialized {
		d.initialized = true
		d.windowStart = now
		d.lastCount = count
		d.status = fmt.Sprintf("stall check initializing, %d files", count)
		return Condition{Status: d.status}
	}

	if now.Sub(d.windowStart) < d.interval-stallTolerance {
		return Condition{Active: d.active, Status: d.status}
	}

	if count > d.lastCount {
		d.streak = 0
		d.active = false
		d.status = fmt.Sprintf("progress: %d files (+%d)", count, count-d.lastCount)
	} else {
		d.streak++
		if d.streak >= d.warnCycles {
			d.active = true
			d.status = fmt.Sprintf("stalled: %d files unchanged for %d windows", count, d.streak)
		} else {
			d.status = fmt.Sprintf("no progress: %d files, window %d/%d", count, d.streak, d.warnCycles)
		}
	}

	d.lastCount = count
	d.windowStart = now
	return Condition{Active: d.active, Status: d.status}
}
