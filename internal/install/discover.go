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
	"strings"

	"github.com/tombee/alou/internal/registry"
)

// DefaultDiscoveryThreshold is the minimum similarity for a discovered
// candidate to be installed.
const DefaultDiscoveryThreshold = 0.3

// Candidate is a service proposed for a free-text query.
type Candidate struct {
	Record registry.ServiceRecord

	// Score is the similarity in [0, 1].
	Score float64
}

// Discoverer proposes services for a query, best first.
type Discoverer interface {
	Discover(ctx context.Context, query string) ([]Candidate, error)
}

// Ranker is the part of the registry used for discovery.
type Ranker interface {
	Rank(queryWords []string) []registry.Match
}

// RegistryDiscoverer ranks registry records against the query words.
type RegistryDiscoverer struct {
	Registry Ranker
}

// Discover implements Discoverer.
func (d RegistryDiscoverer) Discover(ctx context.Context, query string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := registry.CleanQuery(strings.Fields(query))
	if len(words) == 0 {
		return nil, nil
	}
	matches := d.Registry.Rank(words)
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{Record: m.Record, Score: m.Record.SimilarityScore})
	}
	return out, nil
}

// best returns the first candidate at or above threshold.
func best(candidates []Candidate, threshold float64) (Candidate, bool) {
	for _, c := range candidates {
		if c.Score >= threshold {
			return c, true
		}
	}
	return Candidate{}, false
}
