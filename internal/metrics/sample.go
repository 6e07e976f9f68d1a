package metrics

import (
	"context"
	"time"
)

// Sample is a single timestamped bundle of the readings the alarm pipeline
// consumes. It is immutable once constructed; unavailable sub-metrics are
// zero, never a sentinel, so threshold comparisons stay total.
type Sample struct {
	Timestamp        time.Time `json:"ts"`
	GPUUtilPct       float64   `json:"gpu_util_pct"`
	VRAMUsedBytes    uint64    `json:"vram_used_bytes"`
	VRAMTotalBytes   uint64    `json:"vram_total_bytes"`
	CommittedBytes   uint64    `json:"committed_bytes"`
	CommitLimitBytes uint64    `json:"commit_limit_bytes"`
	NetRecvBps       float64   `json:"net_recv_bps"`
	NetSentBps       float64   `json:"net_sent_bps"`
	WatchedFileCount int       `json:"watched_file_count"`
}

// Source produces samples on demand. Implementations may block on slow
// reads; callers are expected to run Collect off the tick loop.
type Source interface {
	Collect(ctx context.Context) (Sample, error)
}
