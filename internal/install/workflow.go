// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package install runs the install-diagnose-fix-retry loop for MCP
// services.
//
// A Workflow launches a registry record through the supervisor. On
// failure it records the event, asks the recovery engine for a fix and
// applies it, then launches again. Each service has a per-session retry
// count; once it reaches the ceiling the service is abandoned until
// ResetRetry is called or the process restarts.
package install

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/mcp"
	"github.com/tombee/alou/internal/memory"
	"github.com/tombee/alou/internal/recovery"
	"github.com/tombee/alou/internal/registry"
	pkgerrors "github.com/tombee/alou/pkg/errors"
)

// DefaultMaxRetries is the per-service launch ceiling.
const DefaultMaxRetries = 3

// Memory item types and tags written by the workflow.
const (
	TypeInstallationRecord = "installation_record"
	TypeErrorLog           = "error_log"

	TagInstallation = "installation"
	TagSuccess      = "success"
	TagFailure      = "failure"
	TagError        = "error"
)

// Launcher starts services. *mcp.Supervisor implements it.
type Launcher interface {
	Start(ctx context.Context, rec registry.ServiceRecord) error
	Tools(name string) ([]mcp.ToolDefinition, error)
}

// Catalog is the part of the registry the workflow reads and writes.
type Catalog interface {
	FindByID(id string) (registry.ServiceRecord, bool)
	Upsert(ctx context.Context, rec registry.ServiceRecord) error
}

// Recorder persists audit memories. *memory.Store implements it.
type Recorder interface {
	Store(ctx context.Context, content string, meta memory.Metadata) (string, error)
}

// Diagnoser picks a fix for a launch failure.
type Diagnoser interface {
	Diagnose(ctx context.Context, failure string, rec registry.ServiceRecord) recovery.Fix
}

// Remediator applies a fix.
type Remediator interface {
	Apply(ctx context.Context, fix recovery.Fix, rec registry.ServiceRecord) recovery.Outcome
}

// Config wires a Workflow.
type Config struct {
	Launcher Launcher
	Catalog  Catalog

	// Memory receives audit items. Nil disables auditing.
	Memory Recorder

	Diagnoser  Diagnoser
	Remediator Remediator

	// Discoverer resolves free-text queries. Default: RegistryDiscoverer
	// when Catalog also implements Ranker.
	Discoverer Discoverer

	MaxRetries         int
	DiscoveryThreshold float64

	Logger *slog.Logger
}

// Workflow installs services with automatic recovery.
type Workflow struct {
	launcher   Launcher
	catalog    Catalog
	memory     Recorder
	diagnoser  Diagnoser
	remediator Remediator
	discoverer Discoverer
	maxRetries int
	threshold  float64
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    instruments

	mu      sync.Mutex
	retries map[string]int
}

// New creates a Workflow.
func New(cfg Config) (*Workflow, error) {
	if cfg.Launcher == nil {
		return nil, &pkgerrors.ConfigError{Key: "install.launcher", Reason: "required"}
	}
	if cfg.Catalog == nil {
		return nil, &pkgerrors.ConfigError{Key: "install.catalog", Reason: "required"}
	}
	if cfg.Diagnoser == nil {
		cfg.Diagnoser = recovery.NewEngine(recovery.EngineConfig{Logger: cfg.Logger})
	}
	if cfg.Remediator == nil {
		cfg.Remediator = recovery.NewApplier(recovery.ApplierConfig{Logger: cfg.Logger})
	}
	if cfg.Discoverer == nil {
		if r, ok := cfg.Catalog.(Ranker); ok {
			cfg.Discoverer = RegistryDiscoverer{Registry: r}
		}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.DiscoveryThreshold <= 0 {
		cfg.DiscoveryThreshold = DefaultDiscoveryThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Workflow{
		launcher:   cfg.Launcher,
		catalog:    cfg.Catalog,
		memory:     cfg.Memory,
		diagnoser:  cfg.Diagnoser,
		remediator: cfg.Remediator,
		discoverer: cfg.Discoverer,
		maxRetries: cfg.MaxRetries,
		threshold:  cfg.DiscoveryThreshold,
		logger:     log.WithComponent(logger, "install"),
		tracer:     otel.Tracer(instrumentationName),
		metrics:    newInstruments(),
		retries:    make(map[string]int),
	}, nil
}

// RetryCount returns the failed launches recorded for id this session.
func (w *Workflow) RetryCount(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retries[id]
}

// ResetRetry clears the retry count for id.
func (w *Workflow) ResetRetry(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.retries, id)
}

func (w *Workflow) increment(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.retries[id]++
	return w.retries[id]
}

// Resolve finds the record for a registry id or, failing that, the best
// discovered match for a free-text query.
func (w *Workflow) Resolve(ctx context.Context, idOrQuery string) (registry.ServiceRecord, error) {
	if rec, ok := w.catalog.FindByID(idOrQuery); ok {
		return rec, nil
	}
	if w.discoverer == nil {
		return registry.ServiceRecord{}, fmt.Errorf("%q: %w", idOrQuery, ErrDiscoveryMiss)
	}
	candidates, err := w.discoverer.Discover(ctx, idOrQuery)
	if err != nil {
		return registry.ServiceRecord{}, fmt.Errorf("discover %q: %w", idOrQuery, err)
	}
	c, ok := best(candidates, w.threshold)
	if !ok {
		return registry.ServiceRecord{}, fmt.Errorf("%q: %w", idOrQuery, ErrDiscoveryMiss)
	}
	w.logger.Info("discovered service",
		slog.String("query", idOrQuery),
		slog.String(log.ServerKey, c.Record.ID),
		slog.Float64("score", c.Score),
	)
	return c.Record, nil
}

// Run resolves idOrQuery and installs the result.
func (w *Workflow) Run(ctx context.Context, idOrQuery string) (*Result, error) {
	rec, err := w.Resolve(ctx, idOrQuery)
	if err != nil {
		return nil, err
	}
	return w.Install(ctx, rec)
}

// Install launches rec, diagnosing and fixing failures until it runs, no
// fix applies, or the retry ceiling is reached. Launch failures are
// reported in the Result; the error return is for storage failures and
// cancellation.
func (w *Workflow) Install(ctx context.Context, rec registry.ServiceRecord) (res *Result, err error) {
	ctx, span := w.tracer.Start(ctx, "install.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("service.id", rec.ID)),
	)
	res = &Result{ServiceID: rec.ID, Record: rec}
	defer func() {
		span.SetAttributes(
			attribute.String("install.status", string(res.Status)),
			attribute.Int("install.attempts", res.Attempts),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if res.Status != "" && !res.OK() {
			span.SetStatus(codes.Error, string(res.Status))
		}
		if res.Status != "" {
			w.metrics.record(ctx, res)
		}
		span.End()
	}()

	logger := log.WithServer(w.logger, rec.ID)

	if rec.IsPlaceholder() {
		res.Status = StatusPlaceholder
		res.Err = ErrPlaceholder
		res.Message = fmt.Sprintf("%s has no launch command. Add one with: alou service add %s --command <cmd>", rec.DisplayName(), rec.ID)
		logger.Warn("placeholder service cannot be installed")
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if w.RetryCount(rec.ID) >= w.maxRetries {
			w.exhaust(res, logger)
			return res, nil
		}

		res.Attempts++
		res.Record = rec
		launchErr := w.launcher.Start(ctx, rec)
		if launchErr == nil {
			return res, w.succeeded(ctx, res, rec)
		}

		res.Err = launchErr
		failure := mcp.FailureText(launchErr)
		count := w.increment(rec.ID)
		logger.Warn("launch failed",
			slog.Int(log.AttemptKey, count),
			log.Error(launchErr),
		)
		if err := w.recordFailure(ctx, rec, failure); err != nil {
			res.Status = StatusFailed
			return res, err
		}
		if count >= w.maxRetries {
			w.exhaust(res, logger)
			return res, nil
		}

		fix := w.diagnoser.Diagnose(ctx, failure, rec)
		res.Fixes = append(res.Fixes, fix)

		outcome := w.remediator.Apply(ctx, fix, rec)
		switch {
		case outcome.SwitchKeyword != "":
			res.Status = StatusSwitch
			res.SwitchKeyword = outcome.SwitchKeyword
			res.Message = fmt.Sprintf("try a different service: %s", outcome.SwitchKeyword)
			return res, nil
		case !outcome.Retry:
			res.Status = StatusFailed
			res.Transient = pkgerrors.IsRetryable(launchErr)
			res.Message = outcome.Message
			if res.Message == "" {
				res.Message = fix.Reason
			}
			return res, nil
		}
		rec = outcome.Record
	}
}

func (w *Workflow) exhaust(res *Result, logger *slog.Logger) {
	res.Status = StatusExhausted
	if res.Err == nil {
		res.Err = ErrExhausted
	} else {
		res.Err = fmt.Errorf("%w: %w", ErrExhausted, res.Err)
	}
	res.Message = fmt.Sprintf("%s failed %d times this session; giving up", res.Record.DisplayName(), w.maxRetries)
	logger.Warn("retry limit reached", slog.Int(log.AttemptKey, w.RetryCount(res.ServiceID)))
}

func (w *Workflow) succeeded(ctx context.Context, res *Result, rec registry.ServiceRecord) error {
	w.ResetRetry(rec.ID)
	res.Status = StatusRunning
	res.Err = nil
	if tools, err := w.launcher.Tools(rec.ID); err == nil {
		for _, t := range tools {
			res.Tools = append(res.Tools, t.Name)
		}
	}

	w.logger.Info("service installed",
		slog.String(log.ServerKey, rec.ID),
		slog.Int(log.AttemptKey, res.Attempts),
		slog.Int("tools", len(res.Tools)),
	)

	if err := w.catalog.Upsert(ctx, rec); err != nil {
		return pkgerrors.Wrapf(err, "save %s", rec.ID)
	}
	return w.remember(ctx, fmt.Sprintf("Installed %s (%s)", rec.DisplayName(), rec.ID), memory.Metadata{
		Type: TypeInstallationRecord,
		Tags: []string{TagInstallation, TagSuccess, rec.CategoryOrDefault()},
		Fields: map[string]any{
			"service_id": rec.ID,
			"status":     "success",
		},
	})
}

func (w *Workflow) recordFailure(ctx context.Context, rec registry.ServiceRecord, failure string) error {
	if err := w.remember(ctx, fmt.Sprintf("Failed to install %s (%s): %s", rec.DisplayName(), rec.ID, failure), memory.Metadata{
		Type: TypeInstallationRecord,
		Tags: []string{TagInstallation, TagFailure, rec.CategoryOrDefault()},
		Fields: map[string]any{
			"service_id": rec.ID,
			"status":     "failure",
			"error":      failure,
		},
	}); err != nil {
		return err
	}
	return w.remember(ctx, fmt.Sprintf("Error starting %s: %s", rec.ID, failure), memory.Metadata{
		Type: TypeErrorLog,
		Tags: []string{TagError, rec.ID},
		Fields: map[string]any{
			"service_id": rec.ID,
		},
	})
}

func (w *Workflow) remember(ctx context.Context, content string, meta memory.Metadata) error {
	if w.memory == nil {
		return nil
	}
	_, err := w.memory.Store(ctx, content, meta)
	return pkgerrors.Wrap(err, "record installation audit")
}
