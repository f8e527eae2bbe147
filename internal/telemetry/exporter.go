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

package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tombee/alou/internal/config"
)

// Tracing exporter names accepted in telemetry.tracing.
const (
	TracingNone     = "none"
	TracingStdout   = "stdout"
	TracingOTLPHTTP = "otlp-http"
	TracingOTLPGRPC = "otlp-grpc"
)

// newSpanExporter returns nil for TracingNone.
func newSpanExporter(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Tracing {
	case "", TracingNone:
		return nil, nil

	case TracingStdout:
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		return exporter, nil

	case TracingOTLPHTTP:
		var opts []otlptracehttp.Option
		if cfg.OTLPEndpoint != "" {
			host, plain := splitEndpoint(cfg.OTLPEndpoint)
			opts = append(opts, otlptracehttp.WithEndpoint(host))
			if plain {
				opts = append(opts, otlptracehttp.WithInsecure())
			}
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
		}
		return exporter, nil

	case TracingOTLPGRPC:
		var opts []otlptracegrpc.Option
		if cfg.OTLPEndpoint != "" {
			host, plain := splitEndpoint(cfg.OTLPEndpoint)
			opts = append(opts, otlptracegrpc.WithEndpoint(host))
			if plain {
				opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
			} else {
				opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
			}
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
		}
		return exporter, nil

	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", cfg.Tracing)
	}
}

// splitEndpoint strips a URL scheme from endpoint. Plain is true for
// http:// endpoints and for bare localhost addresses.
func splitEndpoint(endpoint string) (host string, plain bool) {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), false
	}
	return endpoint, strings.HasPrefix(endpoint, "localhost") || strings.HasPrefix(endpoint, "127.0.0.1")
}
