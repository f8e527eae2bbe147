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

// Package memory implements the content store: a durable, deduplicated,
// append-mostly collection of short text facts with tags and timestamps.
//
// Every item is loaded into memory at startup. Writes are serialized and
// persisted before they become visible; reads see a consistent snapshot.
package memory

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/alou/internal/log"
	alouerrors "github.com/tombee/alou/pkg/errors"
)

// DefaultLimit caps query results when the caller passes a non-positive limit.
const DefaultLimit = 5

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
	// NewID overrides item id generation.
	NewID func() string
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	items   []Item
	byHash  map[string]int
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Open loads every persisted item from backend and returns a ready store.
// Items repeating an earlier content hash are dropped.
func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	s := &Store{
		backend: backend,
		logger:  opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return "memory_" + uuid.NewString() }
	}

	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, &alouerrors.StorageError{Store: "memory", Op: "load", Path: backend.Location(), Cause: err}
	}

	s.byHash = make(map[string]int, len(loaded))
	for _, item := range loaded {
		if item.ContentHash == "" {
			item.ContentHash = HashContent(item.Content)
		}
		if _, dup := s.byHash[item.ContentHash]; dup {
			continue
		}
		s.byHash[item.ContentHash] = len(s.items)
		s.items = append(s.items, item)
	}
	itemsGauge.Set(float64(len(s.items)))

	s.logger.Debug("memory store loaded",
		slog.Int("count", len(s.items)),
		slog.String("path", backend.Location()))
	return s, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Store persists content and returns its item id. Storing content that is
// already present returns the existing id and leaves the store unchanged.
// If persistence fails, nothing changes and a StorageError is returned.
func (s *Store) Store(ctx context.Context, content string, meta Metadata) (string, error) {
	hash := HashContent(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byHash[hash]; ok {
		recordWrite("store", "duplicate")
		return s.items[idx].ID, nil
	}

	item := Item{
		ID:          s.newID(),
		Content:     content,
		Metadata:    meta.clone(),
		Timestamp:   s.now().UnixMilli(),
		ContentHash: hash,
	}
	if item.Metadata.Tags == nil {
		item.Metadata.Tags = []string{}
	}

	next := make([]Item, len(s.items), len(s.items)+1)
	copy(next, s.items)
	next = append(next, item)

	if err := s.backend.Save(ctx, next); err != nil {
		recordWrite("store", "error")
		return "", &alouerrors.StorageError{Store: "memory", Op: "store", Path: s.backend.Location(), Cause: err}
	}

	s.items = next
	s.byHash[hash] = len(next) - 1
	itemsGauge.Set(float64(len(s.items)))
	recordWrite("store", "ok")

	s.logger.Debug("memory stored",
		slog.String("id", item.ID),
		slog.String("type", item.Metadata.Type))
	return item.ID, nil
}

// Delete removes the item with the given content hash. It returns a
// NotFoundError when no item matches.
func (s *Store) Delete(ctx context.Context, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byHash[contentHash]
	if !ok {
		recordWrite("delete", "not_found")
		return &alouerrors.NotFoundError{Resource: "memory", ID: contentHash}
	}

	next := make([]Item, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	next = append(next, s.items[idx+1:]...)

	if err := s.backend.Save(ctx, next); err != nil {
		recordWrite("delete", "error")
		return &alouerrors.StorageError{Store: "memory", Op: "delete", Path: s.backend.Location(), Cause: err}
	}

	s.items = next
	s.reindex()
	itemsGauge.Set(float64(len(s.items)))
	recordWrite("delete", "ok")
	return nil
}

func (s *Store) reindex() {
	s.byHash = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.byHash[item.ContentHash] = i
	}
}

// Retrieve returns items whose content, any tag, or type contains query
// (case-insensitive), newest first.
func (s *Store) Retrieve(query string, limit int) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	return s.collect(limit, func(item Item) bool {
		return matchesText(item, q)
	})
}

// SearchByTag returns items with at least one tag containing any of tags
// (case-insensitive), newest first. An empty tag list matches nothing.
func (s *Store) SearchByTag(tags []string, limit int) []Item {
	wanted := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			wanted = append(wanted, t)
		}
	}
	if len(wanted) == 0 {
		return []Item{}
	}

	return s.collect(limit, func(item Item) bool {
		for _, have := range item.Metadata.Tags {
			have = strings.ToLower(have)
			for _, w := range wanted {
				if strings.Contains(have, w) {
					return true
				}
			}
		}
		return false
	})
}

// Recall resolves a natural-language time expression in query and returns
// items created inside that window that also match the rest of the query.
// Without a time expression it behaves like Retrieve.
func (s *Store) Recall(query string, limit int) []Item {
	frame, residual, ok := ParseTimeFrame(query, s.now())
	if !ok {
		return s.Retrieve(query, limit)
	}

	q := strings.ToLower(residual)
	return s.collect(limit, func(item Item) bool {
		if !frame.Contains(item.Time()) {
			return false
		}
		return q == "" || matchesText(item, q)
	})
}

// List returns every item, newest first.
func (s *Store) List() []Item {
	return s.collect(-1, func(Item) bool { return true })
}

// Count returns the number of stored items.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// collect filters under the read lock and returns clones sorted newest
// first. A negative limit means unlimited; zero means DefaultLimit.
func (s *Store) collect(limit int, keep func(Item) bool) []Item {
	s.mu.RLock()
	out := make([]Item, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		if keep(s.items[i]) {
			out = append(out, s.items[i].clone())
		}
	}
	s.mu.RUnlock()

	// Scan order is already newest-inserted first; the stable sort only
	// fixes up items loaded with out-of-order timestamps.
	slices.SortStableFunc(out, func(a, b Item) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})

	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchesText(item Item, q string) bool {
	if strings.Contains(strings.ToLower(item.Content), q) {
		return true
	}
	for _, tag := range item.Metadata.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return item.Metadata.Type != "" && strings.Contains(strings.ToLower(item.Metadata.Type), q)
}

// SplitTags parses a comma separated tag list, dropping blanks.
func SplitTags(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '，' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
