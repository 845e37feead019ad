// Package daemon assembles watch mode: the filesystem watcher feeding the
// debouncer, the coalescing scheduler driving build cycles, and the optional
// preview server, history store, periodic trigger, and build announcer.
package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/gitinfo"
	"github.com/sitewright/sitewright/internal/history"
	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/metrics"
	"github.com/sitewright/sitewright/internal/notify"
	"github.com/sitewright/sitewright/internal/publish"
	"github.com/sitewright/sitewright/internal/serve"
	"github.com/sitewright/sitewright/internal/site"
	"github.com/sitewright/sitewright/internal/watch"
)

// Status represents the daemon lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// shutdownGracePeriod bounds how long teardown waits for an in-flight build
// cycle and the HTTP server to wind down.
const shutdownGracePeriod = 5 * time.Second

// Daemon owns the watch-mode component graph.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	recorder  metrics.Recorder
	publisher *publish.Publisher
	service   *build.Service
	scheduler *build.Scheduler
	debouncer *watch.Debouncer
	watcher   *watch.Watcher
	periodic  *build.Periodic
	server    *serve.Server
	hub       *serve.ReloadHub
	history   *history.Store
	notifier  *notify.Announcer

	status    atomic.Value // Status
	startTime time.Time
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// New wires the daemon's components from configuration. Side channels the
// config enables (history, announcer, preview server) are constructed here
// so a broken environment fails startup instead of the first build.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.ValidationError("configuration is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		recorder: metrics.NoopRecorder{},
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	d.status.Store(StatusStopped)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = metrics.HTTPHandler(reg)
	}

	dirs := publish.DirsFor(cfg.Output.Dir)
	d.publisher = publish.New(dirs)

	generator := site.New(cfg, logger).SetRecorder(d.recorder)
	d.service = build.NewService(generator, d.publisher, logger).
		SetRecorder(d.recorder).
		SetCommitFunc(gitinfo.CommitFunc(cfg.Content.Dir))

	if cfg.History.HistoryEnabled() {
		store, err := history.Open(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			return nil, err
		}
		d.history = store
		d.service.SetHistory(store)
	}

	if cfg.Notify.URL != "" {
		announcer, err := notify.NewAnnouncer(cfg.Notify.URL, cfg.Notify.Subject)
		if err != nil {
			if d.history != nil {
				_ = d.history.Close()
			}
			return nil, err
		}
		d.notifier = announcer
		d.service.SetNotifier(announcer)
	}

	d.scheduler = build.NewScheduler(func(ctx context.Context, reason string) error {
		_, err := d.service.RunCycle(ctx, reason)
		return err
	}, logger)

	d.debouncer = watch.NewDebouncer(watch.DebouncerConfig{
		QuietWindow: cfg.Watch.DebounceDuration(),
		MaxDelay:    cfg.Watch.MaxDelayDuration(),
	})

	if cfg.Serve.Enabled {
		srv := serve.New(cfg.Serve.Addr, dirs, logger)
		if cfg.Serve.LiveReloadEnabled() {
			d.hub = serve.NewReloadHub(d.recorder)
			srv.SetReloadHub(d.hub)
			d.service.SetOnPublish(func(report *site.BuildReport) {
				d.hub.Broadcast(report.BuildID)
			})
		}
		if d.history != nil {
			srv.SetHistory(d.history)
		}
		if metricsHandler != nil {
			srv.SetMetricsHandler(metricsHandler)
		}
		srv.SetStatusFunc(func() string {
			if d.scheduler.Building() {
				return "building"
			}
			return string(d.Status())
		})
		d.service.SetOnCycleEnd(srv.RecordCycle)
		d.server = srv
	}

	return d, nil
}

// Status returns the current lifecycle state.
func (d *Daemon) Status() Status {
	s, ok := d.status.Load().(Status)
	if !ok {
		return StatusStopped
	}
	return s
}

// Start runs the daemon until ctx is canceled or Stop is called, then tears
// everything down and returns. The publish triple is recovered before the
// first build so a crash mid-swap never costs the previous deployment.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.status.CompareAndSwap(StatusStopped, StatusStarting) {
		return errors.InternalError("daemon is already running").
			WithContext("status", string(d.Status())).
			Build()
	}
	d.startTime = time.Now()
	d.logger.Info("Starting watch mode",
		logfields.Dir(d.cfg.Content.Dir),
		slog.String("output", d.cfg.Output.Dir))

	if err := d.publisher.Recover(); err != nil {
		d.status.Store(StatusStopped)
		return err
	}

	dirs := d.publisher.Dirs()
	watcher, err := watch.New(d.cfg.Content.Dir, watch.Options{
		Ignore:   d.cfg.Watch.Ignore,
		SkipDirs: []string{dirs.Live, dirs.Staging, dirs.Holding},
		Recorder: d.recorder,
	})
	if err != nil {
		d.status.Store(StatusStopped)
		return err
	}
	d.watcher = watcher

	if d.server != nil {
		if err := d.server.Start(ctx); err != nil {
			_ = d.watcher.Close()
			d.status.Store(StatusStopped)
			return err
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	d.scheduler.Trigger(runCtx, build.ReasonInitial)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = d.watcher.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		d.debouncer.Run(runCtx, d.watcher.Changes(), func(f watch.Flush) {
			d.logger.Debug("Change burst flushed",
				slog.Int("signals", f.Signals),
				slog.String("cause", f.Cause))
			d.scheduler.Trigger(runCtx, build.ReasonSignal)
		})
	}()

	if interval := d.cfg.Watch.RebuildInterval(); interval > 0 {
		p, err := build.NewPeriodic(interval, func() {
			d.scheduler.Trigger(runCtx, build.ReasonPeriodic)
		})
		if err == nil {
			err = p.Start()
		}
		if err != nil {
			d.logger.Warn("Periodic rebuild unavailable", logfields.Error(err))
		} else {
			d.periodic = p
		}
	}

	d.status.Store(StatusRunning)
	d.logger.Info("Watch mode running")

	select {
	case <-ctx.Done():
		d.logger.Info("Shutdown signal received")
	case <-d.stopChan:
		d.logger.Info("Stop requested")
	}

	d.status.Store(StatusStopping)
	d.teardown(cancelRun, &wg)
	d.status.Store(StatusStopped)
	close(d.doneChan)
	return nil
}

// Stop requests shutdown and waits for Start to finish tearing down, bounded
// by ctx.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.Status() == StatusStopped {
		return nil
	}
	d.stopOnce.Do(func() { close(d.stopChan) })
	select {
	case <-d.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown stops components in reverse dependency order. The scheduler is
// stopped first so nothing schedules new cycles while everything unwinds.
func (d *Daemon) teardown(cancelRun context.CancelFunc, wg *sync.WaitGroup) {
	d.scheduler.Stop()
	if d.periodic != nil {
		if err := d.periodic.Stop(); err != nil {
			d.logger.Warn("Periodic trigger shutdown error", logfields.Error(err))
		}
	}

	// Canceling the run context stops the watcher and debouncer loops and
	// lets an in-flight cycle wind down at its next stage boundary.
	cancelRun()
	_ = d.watcher.Close()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := d.scheduler.Wait(shutdownCtx); err != nil {
		d.logger.Warn("Build cycle did not finish before the shutdown deadline")
	}

	if d.server != nil {
		if err := d.server.Stop(shutdownCtx); err != nil {
			d.logger.Warn("Preview server shutdown error", logfields.Error(err))
		}
	}
	if d.notifier != nil {
		d.notifier.Close()
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.logger.Warn("History store close error", logfields.Error(err))
		}
	}

	d.logger.Info("Watch mode stopped", slog.Duration("uptime", time.Since(d.startTime)))
}
