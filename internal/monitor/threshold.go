package monitor

import (
	"fmt"

	"github.com/stallwatch/stallwatch/internal/metrics"
)

// Comparison selects which side of the threshold counts as "condition met".
type Comparison int

const (
	Below Comparison = iota
	Above
)

// ThresholdConfig describes one monitored threshold. Read-only after
// construction.
type ThresholdConfig struct {
	Name         string
	Metric       func(metrics.Sample) float64
	Comparison   Comparison
	Threshold    float64
	TriggerCount int

	// Describe formats the current value for status lines. Optional.
	Describe func(value float64) string
}

// ThresholdMonitor turns a noisy instantaneous threshold crossing into a
// stable signal. Activation requires TriggerCount consecutive met ticks;
// deactivation happens on the first tick the condition clears. The
// asymmetry suppresses brief dips during normal operation while reporting
// recovery immediately.
type ThresholdMonitor struct {
	cfg    ThresholdConfig
	count  int
	active bool
}

func NewThresholdMonitor(cfg ThresholdConfig) (*ThresholdMonitor, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("threshold monitor needs a name")
	}
	if cfg.Metric == nil {
		return nil, fmt.Errorf("threshold monitor %q needs a metric selector", cfg.Name)
	}
	if cfg.TriggerCount < 1 {
		return nil, fmt.Errorf("threshold monitor %q: trigger count must be >= 1", cfg.Name)
	}
	if cfg.Describe == nil {
		cfg.Describe = func(value float64) string { return fmt.Sprintf("%.1f", value) }
	}
	return &ThresholdMonitor{cfg: cfg}, nil
}

// Evaluate advances the debounce state by one tick. Pure given state and
// sample; the only side effect is the monitor's own counters.
func (m *ThresholdMonitor) Evaluate(sample metrics.Sample) Condition {
	value := m.cfg.Metric(sample)
	met := value < m.cfg.Threshold
	if m.cfg.Comparison == Above {
		met = value > m.cfg.Threshold
	}

	if !met {
		m.active = false
		m.count = 0
		return Condition{Status: fmt.Sprintf("%s ok: %s", m.cfg.Name, m.cfg.Describe(value))}
	}

	if m.active {
		return Condition{
			Active: true,
			Status: fmt.Sprintf("%s alert: %s", m.cfg.Name, m.cfg.Describe(value)),
		}
	}

	m.count++
	if m.count >= m.cfg.TriggerCount {
		m.active = true
		m.count = 0
		return Condition{
			Active: true,
			Status: fmt.Sprintf("%s alert: %s", m.cfg.Name, m.cfg.Describe(value)),
		}
	}

	return Condition{
		Status: fmt.Sprintf("%s warning %d/%d: %s",
			m.cfg.Name, m.count, m.cfg.TriggerCount, m.cfg.Describe(value)),
	}
}

// Reset clears debounce state, used when the underlying metric source
// disappears so stale counts cannot carry into its return.
func (m *ThresholdMonitor) Reset() {
	m.count = 0
	m.active = false
}
