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
	"cmp"
	"slices"
	"time"
)

// Health describes the store for the health-check operation.
type Health struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	Count     int    `json:"memory_count"`
	SizeBytes int64  `json:"size_bytes"`
	Path      string `json:"path"`
	Error     string `json:"error,omitempty"`
}

// Stats summarizes the store contents.
type Stats struct {
	Total          int            `json:"total_memories"`
	UniqueTags     int            `json:"unique_tags"`
	Types          map[string]int `json:"memory_types"`
	TopTags        []TagCount     `json:"top_tags"`
	RecentActivity int            `json:"recent_activity_7d"`
	Oldest         *time.Time     `json:"oldest,omitempty"`
	Newest         *time.Time     `json:"newest,omitempty"`
}

// TagCount is a tag and how many items carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Health reports item count and persisted size. The store is "degraded" when
// the backend cannot report its size.
func (s *Store) Health() Health {
	h := Health{
		Status:  "healthy",
		Backend: backendName(s.backend),
		Count:   s.Count(),
		Path:    s.backend.Location(),
	}
	size, err := s.backend.Size()
	if err != nil {
		h.Status = "degraded"
		h.Error = err.Error()
		return h
	}
	h.SizeBytes = size
	return h
}

func backendName(b Backend) string {
	switch b.(type) {
	case *SQLiteBackend:
		return "sqlite"
	case *JSONFileBackend:
		return "json"
	}
	return "custom"
}

// Stats computes summary counts over a snapshot.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	items := slices.Clone(s.items)
	s.mu.RUnlock()

	st := Stats{Total: len(items), Types: make(map[string]int)}
	if len(items) == 0 {
		st.TopTags = []TagCount{}
		return st
	}

	weekAgo := s.now().AddDate(0, 0, -7).UnixMilli()
	tags := make(map[string]int)
	oldest, newest := items[0].Timestamp, items[0].Timestamp
	for _, item := range items {
		for _, t := range item.Metadata.Tags {
			tags[t]++
		}
		typ := item.Metadata.Type
		if typ == "" {
			typ = "untyped"
		}
		st.Types[typ]++
		if item.Timestamp >= weekAgo {
			st.RecentActivity++
		}
		oldest = min(oldest, item.Timestamp)
		newest = max(newest, item.Timestamp)
	}

	st.UniqueTags = len(tags)
	st.TopTags = make([]TagCount, 0, len(tags))
	for t, n := range tags {
		st.TopTags = append(st.TopTags, TagCount{Tag: t, Count: n})
	}
	slices.SortFunc(st.TopTags, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	if len(st.TopTags) > 10 {
		st.TopTags = st.TopTags[:10]
	}

	o, n := time.UnixMilli(oldest), time.UnixMilli(newest)
	st.Oldest, st.Newest = &o, &n
	return st
}
