package httpserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stallwatch/stallwatch/internal/engine"
)

type engineCollector struct {
	engine  *engine.Engine
	metrics []engineMetric
}

type engineMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	extract   func(snapshot engine.Snapshot) (float64, bool)
}

func newEngineCollector(eng *engine.Engine) prometheus.Collector {
	if eng == nil {
		return nil
	}

	collector := &engineCollector{engine: eng}

	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("stallwatch", subsystem, name),
			help,
			nil,
			nil,
		)
	}

	collector.metrics = []engineMetric{
		{
			desc:      desc("engine", "ticks_total", "Total sampler results applied by the engine."),
			valueType: prometheus.CounterValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				return float64(s.Totals.Ticks), true
			},
		},
		{
			desc:      desc("engine", "failures_total", "Total fetch failures plus alarm activations."),
			valueType: prometheus.CounterValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				return float64(s.Totals.Failures), true
			},
		},
		{
			desc:      desc("alarm", "active", "Whether the alarm is currently active (1) or not (0)."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				if s.AlarmState == "active" {
					return 1, true
				}
				return 0, true
			},
		},
		{
			desc:      desc("gpu", "util_percent", "Current GPU utilization percentage."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				return s.Sample.GPUUtilPct, true
			},
		},
		{
			desc:      desc("gpu", "vram_used_bytes", "Current VRAM usage in bytes."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				if s.Sample.VRAMTotalBytes == 0 {
					return 0, false
				}
				return float64(s.Sample.VRAMUsedBytes), true
			},
		},
		{
			desc:      desc("gpu", "vram_total_bytes", "Total VRAM capacity in bytes."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				if s.Sample.VRAMTotalBytes == 0 {
					return 0, false
				}
				return float64(s.Sample.VRAMTotalBytes), true
			},
		},
		{
			desc:      desc("mem", "committed_bytes", "Committed memory in bytes."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				return float64(s.Sample.CommittedBytes), true
			},
		},
		{
			desc:      desc("net", "recv_bytes_per_second", "Receive throughput in bytes per second."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				return s.Sample.NetRecvBps, true
			},
		},
		{
			desc:      desc("net", "sent_bytes_per_second", "Send throughput in bytes per second."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				return s.Sample.NetSentBps, true
			},
		},
		{
			desc:      desc("watch", "file_count", "Current watched-directory file count."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				return float64(s.Sample.WatchedFileCount), true
			},
		},
		{
			desc:      desc("engine", "sample_age_seconds", "Seconds elapsed since the latest sample was collected."),
			valueType: prometheus.GaugeValue,
			extract: func(s engine.Snapshot) (float64, bool) {
				if s.Sample.Timestamp.IsZero() {
					return 0, false
				}
				age := time.Since(s.Sample.Timestamp).Seconds()
				if age < 0 {
					age = 0
				}
				return age, true
			},
		},
	}

	return collector
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot, ok := c.engine.Latest()
	if !ok {
		return
	}
	for _, metric := range c.metrics {
		value, ok := metric.extract(snapshot)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(metric.desc, metric.valueType, value)
	}
}
