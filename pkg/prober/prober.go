/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prober pkg/prober/prober.go probes monitored endpoints and
// persists reachability transitions.
package prober

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
	"github.com/mfreeman451/statustracker/pkg/scan"
	"github.com/mfreeman451/statustracker/pkg/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCollection  = "endpoints"
	defaultConcurrency = 8
)

var (
	errListEndpoints  = errors.New("failed to list endpoints")
	errUpdateEndpoint = errors.New("failed to update endpoint")
	errMissingID      = errors.New("endpoint document has no id")
)

// Config tunes a Prober.
type Config struct {
	Collection  string
	Concurrency int
	// AlwaysWrite persists every probe result, not only transitions and
	// unreachable re-affirmations.
	AlwaysWrite bool
}

// Prober runs reachability passes over the endpoint collection.
type Prober struct {
	cfg      Config
	store    db.Service
	pinger   scan.Pinger
	timeouts config.TimeoutProvider
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Option customises a Prober.
type Option func(*Prober)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Prober) {
		p.clock = c
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prober) {
		p.metrics = m
	}
}

func New(
	cfg Config,
	store db.Service,
	pinger scan.Pinger,
	timeouts config.TimeoutProvider,
	logger *zap.Logger,
	opts ...Option) *Prober {
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Prober{
		cfg:      cfg,
		store:    store,
		pinger:   pinger,
		timeouts: timeouts,
		clock:    clock.New(),
		logger:   logger.Named(models.EngineProber),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name identifies the engine to the scheduler.
func (*Prober) Name() string {
	return models.EngineProber
}

type outcome struct {
	changed bool
	wrote   bool
	skipped bool
	err     error
}

// RunOnce probes every endpoint once. Failures of single endpoints are
// logged and combined into the returned error; they never stop the pass.
// A failure to list the collection aborts the pass.
func (p *Prober) RunOnce(ctx context.Context) (models.TickSummary, error) {
	summary := models.TickSummary{
		Engine:    models.EngineProber,
		StartedAt: p.clock.Now(),
	}

	docs, err := p.store.Find(ctx, p.cfg.Collection)
	if err != nil {
		err = fmt.Errorf("%w: %w", errListEndpoints, err)

		p.finish(&summary, err)

		return summary, err
	}

	timeout := p.timeouts.ProbeTimeout()
	results := make([]outcome, len(docs))

	var g errgroup.Group

	g.SetLimit(p.cfg.Concurrency)

	for i, doc := range docs {
		i, doc := i, doc

		g.Go(func() error {
			results[i] = p.evaluate(ctx, doc, timeout)

			return nil
		})
	}

	_ = g.Wait()

	var errs error

	for _, r := range results {
		summary.Scanned++

		switch {
		case r.skipped:
			summary.Skipped++
		case r.wrote:
			summary.Writes++
		}

		if r.changed {
			summary.Changed++
		}

		if r.err != nil {
			summary.Failures++
			errs = multierr.Append(errs, r.err)
		}
	}

	p.finish(&summary, errs)

	return summary, errs
}

func (p *Prober) evaluate(ctx context.Context, doc db.Document, timeout time.Duration) outcome {
	ep := models.EndpointFromDocument(doc)

	if ep.ID == "" {
		p.logger.Error("Skipping endpoint without id", zap.Any("document", doc))

		return outcome{skipped: true, err: errMissingID}
	}

	if ctx.Err() != nil {
		return outcome{skipped: true}
	}

	reachable := false

	if ep.Address == "" {
		p.logger.Warn("Endpoint has no address, treating as unreachable",
			zap.String("endpoint_id", ep.ID))
	} else {
		reachable = p.pinger.Ping(ctx, ep.Address, timeout)
	}

	// A probe cut short by shutdown says nothing about the endpoint.
	if ctx.Err() != nil {
		return outcome{skipped: true}
	}

	now := p.clock.Now().UTC()

	p.metrics.Probe(reachable)

	decision := status.DecideEndpoint(ep.Reachable, reachable, p.cfg.AlwaysWrite)

	fields := []zap.Field{
		zap.String("endpoint_id", ep.ID),
		zap.String("address", ep.Address),
		zap.Bool("reachable", reachable),
		zap.Bool("changed", decision.Changed),
	}

	if decision.Changed {
		p.logger.Info("Endpoint reachability changed", fields...)
	} else {
		p.logger.Debug("Endpoint probed", fields...)
	}

	if !decision.Write {
		return outcome{}
	}

	update := map[string]interface{}{
		models.FieldReachable: reachable,
	}

	if decision.Stamp {
		update[models.FieldLastChange] = now
	}

	err := p.store.UpdateFields(ctx, p.cfg.Collection, ep.ID, update)

	p.metrics.Write(models.EngineProber, err)

	if err != nil {
		p.logger.Error("Failed to persist endpoint status", append(fields, zap.Error(err))...)

		return outcome{changed: decision.Changed, err: fmt.Errorf("%w %s: %w", errUpdateEndpoint, ep.ID, err)}
	}

	return outcome{changed: decision.Changed, wrote: true}
}

func (p *Prober) finish(summary *models.TickSummary, err error) {
	summary.Duration = p.clock.Since(summary.StartedAt)

	if err != nil {
		summary.Error = err.Error()
	}

	p.metrics.ObserveTick(summary)

	p.logger.Info("Probe pass complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("changed", summary.Changed),
		zap.Int("writes", summary.Writes),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failures", summary.Failures),
		zap.Duration("duration", summary.Duration),
		zap.Error(err))
}
