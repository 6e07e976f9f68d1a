package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stallwatch/stallwatch/internal/alarm"
	"github.com/stallwatch/stallwatch/internal/monitor"
	"github.com/stallwatch/stallwatch/internal/notifier"
	"github.com/stallwatch/stallwatch/internal/sampler"
)

// Journal receives the engine's persistent records. A nil Journal disables
// persistence.
type Journal interface {
	InsertVMRecord(ctx context.Context, record monitor.VMRecord) error
	InsertEpisode(ctx context.Context, episode alarm.Episode) error
}

// Engine is the single consumer of sampler results. All monitor, logger,
// and controller state is owned by its Run goroutine; the rest of the
// process only sees published snapshots.
type Engine struct {
	results    <-chan sampler.Result
	evaluator  *monitor.Evaluator
	controller *alarm.Controller
	vmLogger   *monitor.VMLogger
	journal    Journal
	webhook    *notifier.Webhook
	logger     *slog.Logger
	nowFunc    func() time.Time

	lastSeq uint64
	totals  Totals

	mu          sync.RWMutex
	latest      Snapshot
	hasLatest   bool
	subscribers map[*subscriber]struct{}
}

// Options carries the engine's collaborators. Journal and Webhook are
// optional.
type Options struct {
	Results    <-chan sampler.Result
	Evaluator  *monitor.Evaluator
	Controller *alarm.Controller
	VMLogger   *monitor.VMLogger
	Journal    Journal
	Webhook    *notifier.Webhook
	Logger     *slog.Logger
}

func New(opts Options) (*Engine, error) {
	if opts.Results == nil {
		return nil, fmt.Errorf("results channel must not be nil")
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("evaluator must not be nil")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller must not be nil")
	}
	if opts.VMLogger == nil {
		return nil, fmt.Errorf("vm logger must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		results:     opts.Results,
		evaluator:   opts.Evaluator,
		controller:  opts.Controller,
		vmLogger:    opts.VMLogger,
		journal:     opts.Journal,
		webhook:     opts.Webhook,
		logger:      logger.With("component", "engine"),
		nowFunc:     time.Now,
		subscribers: make(map[*subscriber]struct{}),
	}, nil
}

// Run consumes results until the context is canceled or the channel closes.
// The alarm sound is silenced synchronously before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started")
	defer e.controller.Shutdown()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "reason", ctx.Err())
			return nil
		case result, ok := <-e.results:
			if !ok {
				e.logger.Info("engine stopping, results channel closed")
				return nil
			}
			e.apply(ctx, result)
		}
	}
}

// Latest returns the most recent snapshot.
func (e *Engine) Latest() (Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest, e.hasLatest
}

// Ready reports whether at least one snapshot has been published.
func (e *Engine) Ready() bool {
	_, ok := e.Latest()
	return ok
}

func (e *Engine) apply(ctx context.Context, result sampler.Result) {
	if result.Seq <= e.lastSeq {
		e.logger.Debug("dropping stale result", "seq", result.Seq, "last_seq", e.lastSeq)
		return
	}
	e.lastSeq = result.Seq
	e.totals.Ticks++

	if result.Err != nil {
		// No new information: debounce and stall state stay untouched.
		e.totals.Failures++
		e.logger.Warn("fetch failed", "seq", result.Seq, "err", result.Err)
		e.publishError(result.Err)
		return
	}

	snapshot, err := e.evaluate(ctx, result)
	if err != nil {
		e.totals.Failures++
		e.logger.Error("evaluation failed", "seq", result.Seq, "err", err)
		e.publishError(err)
		return
	}

	e.totals.Successes++
	snapshot.Totals = e.totals
	e.publish(snapshot)
}

// evaluate runs one tick of the condition and alarm pipeline. A panic while
// evaluating is converted to an error so one bad sample cannot stop the
// loop.
func (e *Engine) evaluate(ctx context.Context, result sampler.Result) (snapshot Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()

	sample := result.Sample
	now := sample.Timestamp
	if now.IsZero() {
		now = e.nowFunc()
	}

	conditions := e.evaluator.Evaluate(sample, now)
	event := e.controller.Tick(conditions.Aggregate, activeReason(conditions), now)

	if event.Activated {
		// Activations count toward the lifetime failure counter even
		// though the tick itself evaluated cleanly.
		e.totals.Failures++
		if e.webhook != nil {
			go e.webhook.NotifyActivated(context.WithoutCancel(ctx), activeReason(conditions), now)
		}
	}
	if event.Episode != nil {
		e.recordEpisode(ctx, *event.Episode)
	}

	if record, due := e.vmLogger.Record(now, sample.CommittedBytes); due {
		e.recordVM(ctx, record)
	}

	return Snapshot{
		Sample:     sample,
		Conditions: conditions,
		AlarmState: e.controller.State().String(),
	}, nil
}

func (e *Engine) recordEpisode(ctx context.Context, episode alarm.Episode) {
	if e.journal != nil {
		if err := e.journal.InsertEpisode(ctx, episode); err != nil {
			e.logger.Error("failed to persist alarm episode", "err", err)
		}
	}
	if e.webhook != nil {
		go e.webhook.NotifyRecovered(context.WithoutCancel(ctx), episode)
	}
}

func (e *Engine) recordVM(ctx context.Context, record monitor.VMRecord) {
	e.logger.Info("committed memory",
		"bytes", record.Value, "delta", record.Delta, "init", record.Init)
	if e.journal != nil {
		if err := e.journal.InsertVMRecord(ctx, record); err != nil {
			e.logger.Error("failed to persist vm record", "err", err)
		}
	}
}

// publishError republishes the previous snapshot with the error attached,
// so the presentation layer keeps showing the last good readings.
func (e *Engine) publishError(err error) {
	e.mu.RLock()
	snapshot := e.latest
	e.mu.RUnlock()

	snapshot.Error = err.Error()
	snapshot.Totals = e.totals
	e.publish(snapshot)
}

func (e *Engine) publish(snapshot Snapshot) {
	e.mu.Lock()
	e.latest = snapshot
	e.hasLatest = true
	targets := make([]*subscriber, 0, len(e.subscribers))
	for sub := range e.subscribers {
		targets = append(targets, sub)
	}
	e.mu.Unlock()

	for _, sub := range targets {
		sub.send(snapshot)
	}
}

// activeReason picks the status line of the condition driving the alarm.
func activeReason(results monitor.Results) string {
	switch {
	case results.VRAM.Active:
		return results.VRAM.Status
	case results.Stall.Active:
		return results.Stall.Status
	default:
		return ""
	}
}
