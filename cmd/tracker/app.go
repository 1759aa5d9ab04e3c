package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/statustracker/pkg/api"
	"github.com/mfreeman451/statustracker/pkg/config"
	"github.com/mfreeman451/statustracker/pkg/db"
	"github.com/mfreeman451/statustracker/pkg/logger"
	"github.com/mfreeman451/statustracker/pkg/metrics"
	"github.com/mfreeman451/statustracker/pkg/prober"
	"github.com/mfreeman451/statustracker/pkg/scan"
	"github.com/mfreeman451/statustracker/pkg/scheduler"
	"github.com/mfreeman451/statustracker/pkg/watchdog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const serviceName = "statustracker"

var errShutdownTimeout = errors.New("timed out waiting for running passes")

// app holds the wired components of one tracker process.
type app struct {
	cfg       *config.TrackerConfig
	logger    *zap.Logger
	store     db.Service
	timeouts  config.TimeoutProvider
	registry  *prometheus.Registry
	prober    *prober.Prober
	watchdog  *watchdog.Watchdog
	scheduler *scheduler.Scheduler
	recorder  *scheduler.Recorder
}

func loadConfig(path string) (*config.TrackerConfig, error) {
	var cfg config.TrackerConfig

	if err := config.LoadAndValidate(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

func newLogger(cfg *config.TrackerConfig) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Logging.Development,
	})
}

func newApp(cfg *config.TrackerConfig, log *zap.Logger) (*app, error) {
	store, err := db.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(registry)
	timeouts := config.NewFileTimeoutProvider(cfg.TimeoutsFile, log)

	pinger := scan.NewPinger(scan.Options{
		ICMPCount:        cfg.Prober.ICMPCount,
		RateLimit:        cfg.Prober.RateLimit,
		TCPFallbackPorts: cfg.Prober.TCPFallbackPorts,
	}, log)

	a := &app{
		cfg:       cfg,
		logger:    log,
		store:     store,
		timeouts:  timeouts,
		registry:  registry,
		scheduler: scheduler.New(log),
		recorder:  scheduler.NewRecorder(cfg.TickHistory),
	}

	a.prober = prober.New(prober.Config{
		Collection:  cfg.Collections.Endpoints,
		Concurrency: cfg.Prober.Concurrency,
		AlwaysWrite: cfg.Prober.AlwaysWrite,
	}, store, pinger, timeouts, log, prober.WithMetrics(m))

	a.watchdog = watchdog.New(watchdog.Config{
		BridgeCollection:    cfg.Collections.Bridges,
		HeartbeatCollection: cfg.Collections.Heartbeats,
		PollInterval:        time.Duration(cfg.Watchdog.PollInterval),
		TerminalConcurrency: cfg.Watchdog.TerminalConcurrency,
	}, store, timeouts, log, watchdog.WithMetrics(m))

	err = multierr.Combine(
		a.scheduler.Register(scheduler.EngineTask(a.prober, timeouts.ProberInterval, a.recorder)),
		a.scheduler.Register(scheduler.EngineTask(a.watchdog, timeouts.WatchdogInterval, a.recorder)),
	)
	if err != nil {
		_ = store.Close()

		return nil, err
	}

	return a, nil
}

func (a *app) apiServer() *api.APIServer {
	return api.NewAPIServer(a.store, api.Collections{
		Endpoints: a.cfg.Collections.Endpoints,
		Bridges:   a.cfg.Collections.Bridges,
	}, a.logger,
		api.WithGatherer(a.registry),
		api.WithTaskStatus(a.scheduler),
		api.WithSummaries(a.recorder))
}

// Start implements lifecycle.Service.
func (a *app) Start(ctx context.Context) error {
	return a.scheduler.Start(ctx)
}

// Stop implements lifecycle.Service. It waits for running passes, bounded
// by ctx, and closes the store.
func (a *app) Stop(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		a.scheduler.Stop()
		close(done)
	}()

	var err error

	select {
	case <-done:
	case <-ctx.Done():
		err = errShutdownTimeout
	}

	return multierr.Append(err, a.store.Close())
}
