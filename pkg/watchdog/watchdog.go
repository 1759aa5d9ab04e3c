// Package watchdog pkg/watchdog/watchdog.go confirms terminal liveness from
// heartbeat counters and persists the terminal list of each bridge.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mfreeman451/statustracker/pkg/config"
	"github.com/mfreeman451/statustracker/pkg/db"
	"github.com/mfreeman451/statustracker/pkg/metrics"
	"github.com/mfreeman451/statustracker/pkg/models"
	"github.com/mfreeman451/statustracker/pkg/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBridgeCollection    = "bridges"
	defaultHeartbeatCollection = "heartbeats"
	defaultPollInterval        = time.Second
	defaultTerminalConcurrency = 64
)

var (
	errListBridges  = errors.New("failed to list bridges")
	errDecodeBridge = errors.New("failed to decode bridge")
	errUpdateBridge = errors.New("failed to update bridge")
	errMissingID    = errors.New("bridge document has no id")
)

// Config tunes a Watchdog.
type Config struct {
	BridgeCollection    string
	HeartbeatCollection string
	PollInterval        time.Duration
	// TerminalConcurrency caps the terminals of one bridge waited on at once.
	TerminalConcurrency int
}

// Watchdog runs freshness passes over the bridge collection.
type Watchdog struct {
	cfg      Config
	store    db.Service
	timeouts config.TimeoutProvider
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Option customises a Watchdog.
type Option func(*Watchdog)

// WithClock replaces the wall clock used for deadlines and polling.
func WithClock(c clock.Clock) Option {
	return func(w *Watchdog) {
		w.clock = c
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watchdog) {
		w.metrics = m
	}
}

func New(cfg Config, store db.Service, timeouts config.TimeoutProvider, logger *zap.Logger, opts ...Option) *Watchdog {
	if cfg.BridgeCollection == "" {
		cfg.BridgeCollection = defaultBridgeCollection
	}

	if cfg.HeartbeatCollection == "" {
		cfg.HeartbeatCollection = defaultHeartbeatCollection
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if cfg.TerminalConcurrency <= 0 {
		cfg.TerminalConcurrency = defaultTerminalConcurrency
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watchdog{
		cfg:      cfg,
		store:    store,
		timeouts: timeouts,
		clock:    clock.New(),
		logger:   logger.Named(models.EngineWatchdog),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Name identifies the engine to the scheduler.
func (*Watchdog) Name() string {
	return models.EngineWatchdog
}

type bridgeOutcome struct {
	changed int
	wrote   bool
	skipped bool
	err     error
}

// RunOnce evaluates every bridge once. Bridges are handled one after another;
// the terminals of one bridge are confirmed concurrently against a single
// deadline and the bridge is rewritten once, after all of them have been
// decided.
func (w *Watchdog) RunOnce(ctx context.Context) (models.TickSummary, error) {
	summary := models.TickSummary{
		Engine:    models.EngineWatchdog,
		StartedAt: w.clock.Now(),
	}

	docs, err := w.store.Find(ctx, w.cfg.BridgeCollection)
	if err != nil {
		err = fmt.Errorf("%w: %w", errListBridges, err)

		w.finish(&summary, err)

		return summary, err
	}

	timeout := w.timeouts.TerminalTimeout()

	var errs error

	for i, doc := range docs {
		if ctx.Err() != nil {
			summary.Skipped += len(docs) - i

			break
		}

		summary.Scanned++

		r := w.reconcileBridge(ctx, doc, timeout)

		if r.skipped {
			summary.Skipped++
		}

		if r.changed > 0 {
			summary.Changed++
		}

		if r.wrote {
			summary.Writes++
		}

		if r.err != nil {
			summary.Failures++
			errs = multierr.Append(errs, r.err)
		}
	}

	w.finish(&summary, errs)

	return summary, errs
}

func (w *Watchdog) reconcileBridge(ctx context.Context, doc db.Document, timeout time.Duration) bridgeOutcome {
	bridge, err := models.BridgeFromDocument(doc)
	if err != nil {
		w.logger.Error("Skipping malformed bridge", zap.String("bridge_id", bridge.ID), zap.Error(err))

		return bridgeOutcome{skipped: true, err: fmt.Errorf("%w: %w", errDecodeBridge, err)}
	}

	if bridge.ID == "" {
		return bridgeOutcome{skipped: true, err: errMissingID}
	}

	if len(bridge.Terminals) == 0 {
		w.logger.Debug("Bridge has no terminals", zap.String("bridge_id", bridge.ID))

		return bridgeOutcome{skipped: true}
	}

	next := make([]models.TerminalState, len(bridge.Terminals))

	// Terminals queued behind the limit wait out what is left of the
	// bridge deadline, not a fresh timeout.
	deadline := w.clock.Now().Add(timeout)

	var g errgroup.Group

	g.SetLimit(w.cfg.TerminalConcurrency)

	for i := range bridge.Terminals {
		i := i

		g.Go(func() error {
			next[i] = w.evaluateTerminal(ctx, bridge.ID, &bridge.Terminals[i], deadline)

			return nil
		})
	}

	_ = g.Wait()

	changed := 0

	for i := range next {
		if status.TerminalChanged(&bridge.Terminals[i], &next[i]) {
			changed++
		}
	}

	if changed == 0 {
		w.logger.Debug("Bridge unchanged", zap.String("bridge_id", bridge.ID))

		return bridgeOutcome{}
	}

	// Every terminal is fully decided at this point, so the list is written
	// even when shutdown interrupted the waits.
	err = w.store.UpdateFields(context.WithoutCancel(ctx), w.cfg.BridgeCollection, bridge.ID, map[string]interface{}{
		models.FieldTerminals: models.TerminalsToList(next),
	})

	w.metrics.Write(models.EngineWatchdog, err)

	if err != nil {
		w.logger.Error("Failed to persist terminal list",
			zap.String("bridge_id", bridge.ID), zap.Int("changed", changed), zap.Error(err))

		return bridgeOutcome{changed: changed, err: fmt.Errorf("%w %s: %w", errUpdateBridge, bridge.ID, err)}
	}

	w.logger.Info("Bridge terminals updated",
		zap.String("bridge_id", bridge.ID), zap.Int("changed", changed), zap.Int("terminals", len(next)))

	return bridgeOutcome{changed: changed, wrote: true}
}

// evaluateTerminal returns the new state of one terminal. Terminals that
// cannot be evaluated are returned unchanged.
func (w *Watchdog) evaluateTerminal(
	ctx context.Context, bridgeID string, t *models.TerminalState, deadline time.Time) models.TerminalState {
	if t.TerminalID == nil {
		w.metrics.Terminal(status.ReasonNoTerminalID)
		w.logger.Warn("Terminal has no usable id", zap.String("bridge_id", bridgeID))

		return t.Clone()
	}

	id := *t.TerminalID

	counter, err := w.readCounter(ctx, id)
	if err != nil {
		w.metrics.Terminal(status.ReasonNoHeartbeat)

		if errors.Is(err, errNoHeartbeat) {
			w.logger.Warn("Skipping terminal without heartbeat source",
				zap.String("bridge_id", bridgeID), zap.Int("terminal_id", id), zap.Error(err))
		} else {
			w.logger.Error("Skipping terminal, heartbeat read failed",
				zap.String("bridge_id", bridgeID), zap.Int("terminal_id", id), zap.Error(err))
		}

		return t.Clone()
	}

	if t.LastSeenCounter == nil {
		w.metrics.Terminal(status.ReasonFirstObservation)
		w.logger.Info("First heartbeat observation",
			zap.String("bridge_id", bridgeID),
			zap.Int("terminal_id", id),
			zap.Int64("current", counter),
			zap.String("reason", status.ReasonFirstObservation))

		return status.FirstObservation(t, counter)
	}

	previous := *t.LastSeenCounter
	c := w.awaitAdvance(ctx, id, previous, counter, deadline)

	w.metrics.Terminal(c.Reason)

	fields := []zap.Field{
		zap.String("bridge_id", bridgeID),
		zap.Int("terminal_id", id),
		zap.Int64("previous", previous),
		zap.Int64("current", c.Counter),
		zap.Bool("live", c.Live),
		zap.String("reason", c.Reason),
	}

	if c.Live != t.Live {
		w.logger.Info("Terminal liveness changed", fields...)
	} else {
		w.logger.Debug("Terminal evaluated", fields...)
	}

	return status.ApplyConfirmation(t, c)
}

func (w *Watchdog) finish(summary *models.TickSummary, err error) {
	summary.Duration = w.clock.Since(summary.StartedAt)

	if err != nil {
		summary.Error = err.Error()
	}

	w.metrics.ObserveTick(summary)

	w.logger.Info("Watchdog pass complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("changed", summary.Changed),
		zap.Int("writes", summary.Writes),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failures", summary.Failures),
		zap.Duration("duration", summary.Duration),
		zap.Error(err))
}
