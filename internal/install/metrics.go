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

package install

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tombee/alou/internal/install"

type instruments struct {
	outcomes metric.Int64Counter
	attempts metric.Int64Histogram
}

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	outcomes, _ := meter.Int64Counter("alou.install.outcomes",
		metric.WithDescription("Installation outcomes by terminal status"),
	)
	attempts, _ := meter.Int64Histogram("alou.install.attempts",
		metric.WithDescription("Launch attempts per installation"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5),
	)
	return instruments{outcomes: outcomes, attempts: attempts}
}

func (i instruments) record(ctx context.Context, res *Result) {
	outcome := attribute.String("outcome", string(res.Status))
	if i.outcomes != nil {
		i.outcomes.Add(ctx, 1, metric.WithAttributes(outcome))
	}
	if i.attempts != nil {
		i.attempts.Record(ctx, int64(res.Attempts), metric.WithAttributes(outcome))
	}
}
