package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stallwatch/stallwatch/internal/config"
)

// SystemSource assembles samples from amdgpu sysfs, procfs, and the watched
// output directory. It keeps the previous network counters between calls to
// derive byte rates, so Collect must not be invoked concurrently; the
// sampler's single in-flight guard provides that.
type SystemSource struct {
	gpu     *gpuReader
	proc    *procReader
	net     *netRateTracker
	watch   config.WatchConfig
	nowFunc func() time.Time
	logger  *slog.Logger
}

// NewSystemSource builds a source for the given card (may be empty when no
// GPU was discovered; VRAM fields then stay zero).
func NewSystemSource(cardID string, cfg config.Config, logger *slog.Logger) (*SystemSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(cfg.ProcRoot); err != nil {
		return nil, fmt.Errorf("stat proc root: %w", err)
	}

	var gpu *gpuReader
	if cardID != "" {
		reader, err := newGPUReader(cardID, cfg.SysfsRoot, logger.With("card", cardID))
		if err != nil {
			logger.Warn("gpu reader unavailable", "card", cardID, "err", err)
		} else {
			gpu = reader
		}
	}

	return &SystemSource{
		gpu:     gpu,
		proc:    &procReader{root: cfg.ProcRoot},
		net:     newNetRateTracker(cfg.ProcRoot),
		watch:   cfg.Watch,
		nowFunc: time.Now,
		logger:  logger,
	}, nil
}

// Collect gathers one sample. Individual sub-metric failures degrade to zero
// values; only a cancelled context aborts the whole fetch.
func (s *SystemSource) Collect(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	now := s.nowFunc()
	sample := Sample{Timestamp: now.UTC()}

	if s.gpu != nil {
		util, used, total := s.gpu.read()
		sample.GPUUtilPct = util
		sample.VRAMUsedBytes = used
		sample.VRAMTotalBytes = total
	}

	committed, limit, err := s.proc.commitCharge()
	if err != nil {
		s.logger.Debug("commit charge unavailable", "err", err)
	} else {
		sample.CommittedBytes = committed
		sample.CommitLimitBytes = limit
	}

	recv, sent := s.net.rates(now)
	sample.NetRecvBps = recv
	sample.NetSentBps = sent

	sample.WatchedFileCount = countWatchedFiles(s.watch, now)

	return sample, nil
}

// countWatchedFiles counts regular files in the watched directory. A missing
// or unreadable directory counts as 0: a job that has produced nothing is
// indistinguishable from one stalled at zero output.
func countWatchedFiles(watch config.WatchConfig, now time.Time) int {
	if watch.Dir == "" {
		return 0
	}
	dir := watch.Dir
	if watch.DailySubdir {
		dir = filepath.Join(dir, now.Format("2006-01-02"))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count
}
