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

package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alou_supervisor_starts_total",
			Help: "Service start attempts by result",
		},
		[]string{"result"},
	)

	startDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alou_supervisor_start_duration_seconds",
		Help:    "Time from spawn to a passing capability check",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alou_supervisor_calls_total",
			Help: "Tool calls by result",
		},
		[]string{"result"},
	)

	runningConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alou_supervisor_running_connections",
		Help: "Number of services in the running state",
	})
)
