// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stallwatch/stallwatch/internal/alarm"
	"github.com/stallwatch/stallwatch/internal/config"
	"github.com/stallwatch/stallwatch/internal/engine"
	"github.com/stallwatch/stallwatch/internal/gpu"
	"github.com/stallwatch/stallwatch/internal/httpserver"
	"github.com/stallwatch/stallwatch/internal/journal"
	"github.com/stallwatch/stallwatch/internal/metrics"
	"github.com/stallwatch/stallwatch/internal/monitor"
	"github.com/stallwatch/stallwatch/internal/notifier"
	"github.com/stallwatch/stallwatch/internal/sampler"
	"github.com/stallwatch/stallwatch/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")
	appLogger.Info("starting stallwatch", "version", version.Current())

	gpus, err := gpu.Discover(cfg.SysfsRoot, baseLogger.With("component", "gpu_discovery"))
	if err != nil {
		return fmt.Errorf("discover gpus: %w", err)
	}
	appLogger.Info("discovered GPUs", "count", len(gpus))

	selected, err := gpu.Select(gpus, cfg.GPU)
	if err != nil {
		return fmt.Errorf("select gpu: %w", err)
	}
	if selected.ID == "" {
		appLogger.Warn("no usable GPU, VRAM monitoring disabled")
	} else {
		appLogger.Info("monitoring GPU", "card", selected.ID, "name", selected.Name)
	}

	source, err := metrics.NewSystemSource(selected.ID, cfg, baseLogger.With("component", "metrics"))
	if err != nil {
		return fmt.Errorf("init metrics source: %w", err)
	}

	smp, err := sampler.New(source, cfg.TickInterval, baseLogger)
	if err != nil {
		return fmt.Errorf("init sampler: %w", err)
	}

	evaluator, err := monitor.NewEvaluator(cfg)
	if err != nil {
		return fmt.Errorf("init evaluator: %w", err)
	}

	sound := alarm.NewSound(cfg.Alarm.WAVPath, baseLogger.With("component", "alarm_sound"))
	controller, err := alarm.NewController(sound, cfg.Alarm.WarnCountThreshold, baseLogger)
	if err != nil {
		return fmt.Errorf("init alarm controller: %w", err)
	}

	vmLogger, err := monitor.NewVMLogger(cfg.VMLogInterval)
	if err != nil {
		return fmt.Errorf("init vm logger: %w", err)
	}

	var repo *journal.Repository
	if cfg.DBPath != "" {
		db, err := journal.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Warn("journal close", "err", err)
			}
		}()
		if err := journal.Migrate(db); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
		repo = journal.NewRepository(db)
		appLogger.Info("journal opened", "path", cfg.DBPath)
	}

	webhook := notifier.NewWebhook(cfg.WebhookURL, baseLogger)

	engineOpts := engine.Options{
		Results:    smp.Results(),
		Evaluator:  evaluator,
		Controller: controller,
		VMLogger:   vmLogger,
		Webhook:    webhook,
		Logger:     baseLogger,
	}
	if repo != nil {
		engineOpts.Journal = repo
	}
	eng, err := engine.New(engineOpts)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	samplerErrCh := make(chan error, 1)
	go func() {
		samplerErrCh <- smp.Run(workerCtx)
	}()

	engineErrCh := make(chan error, 1)
	go func() {
		engineErrCh <- eng.Run(workerCtx)
	}()

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), selected, eng, repo)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	drainWorkers := func() error {
		workerCancel()
		if samplerErrCh != nil {
			if err := <-samplerErrCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			samplerErrCh = nil
		}
		if engineErrCh != nil {
			if err := <-engineErrCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			engineErrCh = nil
		}
		return nil
	}

	for {
		select {
		case err := <-errCh:
			if drainErr := drainWorkers(); err == nil {
				err = drainErr
			}
			return err
		case err := <-samplerErrCh:
			samplerErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case err := <-engineErrCh:
			engineErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case <-ctx.Done():
			appLogger.Info("shutdown initiated", "reason", ctx.Err())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("http shutdown: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			if err := drainWorkers(); err != nil {
				return err
			}

			appLogger.Info("shutdown complete")
			return nil
		}
	}
}
