package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stallwatch/stallwatch/internal/metrics"
)

// Result is one fetch outcome. Seq increases monotonically in fetch-start
// order so consumers can discard results that arrive out of date.
type Result struct {
	Seq    uint64
	Sample metrics.Sample
	Err    error
}

// Sampler drives a metrics source on a fixed tick. At most one fetch is in
// flight at a time; ticks that fire while a fetch is still running are
// skipped and counted, never queued, so a slow source cannot build a backlog
// of stale work.
type Sampler struct {
	source   metrics.Source
	interval time.Duration
	logger   *slog.Logger

	results  chan Result
	inFlight atomic.Bool
	seq      atomic.Uint64
	skipped  atomic.Uint64
}

// New builds a sampler. The interval must be positive.
func New(source metrics.Source, interval time.Duration, logger *slog.Logger) (*Sampler, error) {
	if source == nil {
		return nil, fmt.Errorf("source must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		source:   source,
		interval: interval,
		logger:   logger.With("component", "sampler"),
		results:  make(chan Result, 4),
	}, nil
}

// Results returns the channel fetch outcomes are delivered on. It is closed
// after Run returns.
func (s *Sampler) Results() <-chan Result {
	return s.results
}

// Skipped reports how many ticks were dropped because a fetch was running.
func (s *Sampler) Skipped() uint64 {
	return s.skipped.Load()
}

// Run samples until the context is canceled. The first fetch starts
// immediately so consumers do not wait a full interval for data.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("sampler started", "interval", s.interval)

	var wg sync.WaitGroup
	s.tryFetch(ctx, &wg)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopping", "reason", ctx.Err())
			wg.Wait()
			close(s.results)
			return nil
		case <-ticker.C:
			s.tryFetch(ctx, &wg)
		}
	}
}

func (s *Sampler) tryFetch(ctx context.Context, wg *sync.WaitGroup) {
	if !s.inFlight.CompareAndSwap(false, true) {
		skipped := s.skipped.Add(1)
		s.logger.Debug("tick skipped, fetch still in flight", "skipped_total", skipped)
		return
	}

	seq := s.seq.Add(1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.inFlight.Store(false)

		sample, err := s.source.Collect(ctx)
		select {
		case s.results <- Result{Seq: seq, Sample: sample, Err: err}:
		case <-ctx.Done():
		}
	}()
}
