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

package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alou_memory_writes_total",
			Help: "Content store writes by operation and result",
		},
		[]string{"op", "result"},
	)

	itemsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alou_memory_items",
		Help: "Number of items held by the content store",
	})
)

// recordWrite records the outcome of a store or delete.
func recordWrite(op, result string) {
	writesTotal.WithLabelValues(op, result).Inc()
}
