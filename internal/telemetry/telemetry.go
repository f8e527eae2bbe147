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

// Package telemetry configures OpenTelemetry tracing and metrics for alou
// and serves the Prometheus endpoint.
//
// Packages create spans with otel.Tracer and instruments with otel.Meter;
// Setup installs the global providers those calls resolve to. Prometheus
// collectors registered with promauto and the otel meter share one
// registry, so a single /metrics endpoint exposes both.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tombee/alou/internal/config"
	"github.com/tombee/alou/internal/log"
)

// ServiceName identifies alou in exported telemetry.
const ServiceName = "alou"

// Options tune Setup.
type Options struct {
	Version string

	// Writer receives spans for the stdout exporter. Default: os.Stderr.
	Writer io.Writer

	// Registry collects otel metrics. Default: the global Prometheus
	// registry, which promauto collectors also use.
	Registry *promclient.Registry

	Logger *slog.Logger
}

// Provider owns the tracer and meter providers.
type Provider struct {
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	gatherer promclient.Gatherer
	logger   *slog.Logger
}

// Setup builds the providers described by cfg and installs them as the
// otel globals. Call Shutdown to flush pending spans.
func Setup(ctx context.Context, cfg config.TelemetryConfig, opts Options) (*Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = log.WithComponent(logger, "telemetry")

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	exporter, err := newSpanExporter(ctx, cfg, opts.Writer)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	var (
		promOpts []prometheus.Option
		gatherer promclient.Gatherer = promclient.DefaultGatherer
	)
	if opts.Registry != nil {
		promOpts = append(promOpts, prometheus.WithRegisterer(opts.Registry))
		gatherer = opts.Registry
	}
	promExporter, err := prometheus.New(promOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	logger.Debug("telemetry configured",
		slog.String("tracing", cfg.Tracing),
		slog.String("otlp_endpoint", cfg.OTLPEndpoint),
	)
	return &Provider{tp: tp, mp: mp, gatherer: gatherer, logger: logger}, nil
}

// MetricsHandler serves the Prometheus exposition format.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.tp.Shutdown(ctx), p.mp.Shutdown(ctx))
}
