package monitor

import (
	"fmt"
	"time"

	"github.com/stallwatch/stallwatch/internal/config"
	"github.com/stallwatch/stallwatch/internal/metrics"
)

// Results bundles the per-condition outcomes of one tick. Aggregate is the
// OR of the alarm-feeding conditions; the committed-memory condition is
// display-only and never contributes to it.
type Results struct {
	VRAM      Condition `json:"vram"`
	Stall     Condition `json:"stall"`
	Committed Condition `json:"committed"`
	Aggregate bool      `json:"aggregate"`
}

// Evaluator composes the threshold monitors and the stall detector. It is
// single-threaded by contract; the engine calls Evaluate once per applied
// sample.
type Evaluator struct {
	vram               *ThresholdMonitor
	stall              *StallDetector
	committedThreshold uint64
}

func NewEvaluator(cfg config.Config) (*Evaluator, error) {
	vram, err := NewThresholdMonitor(ThresholdConfig{
		Name:         "vram",
		Metric:       func(s metrics.Sample) float64 { return float64(s.VRAMUsedBytes) },
		Comparison:   Below,
		Threshold:    float64(cfg.Alarm.VRAMWarnThresholdBytes),
		TriggerCount: cfg.Alarm.VRAMTriggerCount,
		Describe:     func(v float64) string { return formatGiB(uint64(v)) },
	})
	if err != nil {
		return nil, fmt.Errorf("build vram monitor: %w", err)
	}

	stall, err := NewStallDetector(cfg.Watch.CheckInterval, cfg.Watch.WarnCycles)
	if err != nil {
		return nil, fmt.Errorf("build stall detector: %w", err)
	}

	return &Evaluator{
		vram:               vram,
		stall:              stall,
		committedThreshold: cfg.Alarm.CommittedWarnThresholdBytes,
	}, nil
}

// Evaluate runs all conditions against one sample.
func (e *Evaluator) Evaluate(sample metrics.Sample, now time.Time) Results {
	var results Results

	if sample.VRAMTotalBytes == 0 {
		// No GPU reading this tick. A zero VRAM value would read as
		// "below the floor" and falsely alarm, so the monitor resets.
		e.vram.Reset()
		results.VRAM = Condition{Status: "vram unavailable"}
	} else {
		results.VRAM = e.vram.Evaluate(sample)
	}

	results.Stall = e.stall.Evaluate(sample.WatchedFileCount, now)
	results.Committed = e.committedCondition(sample)
	results.Aggregate = results.VRAM.Active || results.Stall.Active
	return results
}

func (e *Evaluator) committedCondition(sample metrics.Sample) Condition {
	if sample.CommittedBytes > e.committedThreshold {
		return Condition{
			Active: true,
			Status: fmt.Sprintf("committed memory high: %s of %s limit",
				formatGiB(sample.CommittedBytes), formatGiB(sample.CommitLimitBytes)),
		}
	}
	return Condition{
		Status: fmt.Sprintf("committed memory: %s of %s limit",
			formatGiB(sample.CommittedBytes), formatGiB(sample.CommitLimitBytes)),
	}
}

func formatGiB(bytes uint64) string {
	return fmt.Sprintf("%.1f GiB", float64(bytes)/(1<<30))
}
