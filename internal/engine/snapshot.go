package engine

import (
	"github.com/stallwatch/stallwatch/internal/metrics"
	"github.com/stallwatch/stallwatch/internal/monitor"
)

// Totals are lifetime counters since engine start.
type Totals struct {
	Ticks     uint64 `json:"ticks"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
}

// Snapshot is the engine's published view after one applied tick. Immutable
// once published; the presentation layer only ever reads it.
type Snapshot struct {
	Sample     metrics.Sample  `json:"sample"`
	Conditions monitor.Results `json:"conditions"`
	AlarmState string          `json:"alarm_state"`
	Totals     Totals          `json:"totals"`
	Error      string          `json:"error,omitempty"`
}
