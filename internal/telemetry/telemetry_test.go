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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/tombee/alou/internal/config"
)

func TestSetup_StdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	p, err := Setup(ctx, config.TelemetryConfig{Tracing: TracingStdout}, Options{
		Version:  "test",
		Writer:   &buf,
		Registry: promclient.NewRegistry(),
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(ctx, "supervisor.start")
	span.End()

	require.NoError(t, p.Shutdown(ctx))
	assert.Contains(t, buf.String(), "supervisor.start")
	assert.Contains(t, buf.String(), "alou")
}

func TestSetup_MetricsHandler(t *testing.T) {
	ctx := context.Background()
	p, err := Setup(ctx, config.TelemetryConfig{Tracing: TracingNone}, Options{Registry: promclient.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(ctx) })

	counter, err := otel.Meter("telemetry-test").Int64Counter("alou.install.outcomes")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alou_install_outcomes")
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{Tracing: "zipkin"}, Options{Registry: promclient.NewRegistry()})
	assert.Error(t, err)
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		in    string
		host  string
		plain bool
	}{
		{"http://collector:4318/", "collector:4318", true},
		{"https://otel.example.com", "otel.example.com", false},
		{"localhost:4317", "localhost:4317", true},
		{"otel.example.com:4317", "otel.example.com:4317", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, plain := splitEndpoint(tt.in)
			if host != tt.host || plain != tt.plain {
				t.Errorf("splitEndpoint(%q) = %q, %v; want %q, %v", tt.in, host, plain, tt.host, tt.plain)
			}
		})
	}
}

func TestMetricsServer(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "alou_up 1\n")
	})
	srv := NewMetricsServer("127.0.0.1:0", handler, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "alou_up 1\n", string(body))
}
