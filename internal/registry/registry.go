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

// Package registry keeps the durable set of known tool servers and their
// launch contracts.
//
// The registry owns a single JSON file of the form
//
//	{"mcpServers": {"<id>": {"command": ..., "args": [...], "env": {...}}}}
//
// plus an in-memory index. Every mutation is persisted before it returns.
// Record order is insertion order and survives rewrites.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/memory"
	"github.com/tombee/alou/internal/util"
	alouerrors "github.com/tombee/alou/pkg/errors"
)

// Recorder receives an audit entry for each upsert. *memory.Store
// satisfies it.
type Recorder interface {
	Store(ctx context.Context, content string, meta memory.Metadata) (string, error)
}

// Config configures a Registry.
type Config struct {
	// Path is the registry file.
	Path string

	// Recorder, if set, receives an installed_service memory per upsert.
	Recorder Recorder

	Logger *slog.Logger
}

// Registry is safe for concurrent use.
type Registry struct {
	path     string
	recorder Recorder
	logger   *slog.Logger

	// mu protects order and records
	mu      sync.RWMutex
	order   []string
	records map[string]ServiceRecord
}

// Open loads the registry file. A missing file is an empty registry.
func Open(cfg Config) (*Registry, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	r := &Registry{
		path:     cfg.Path,
		recorder: cfg.Recorder,
		logger:   log.WithComponent(logger, "registry"),
		records:  make(map[string]ServiceRecord),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.path
}

// Reload replaces the in-memory index with the file contents. On error the
// current index is kept. The write lock is held from read to swap so a
// concurrent Upsert is either in the file read or applied after it.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &alouerrors.StorageError{Store: "registry", Op: "load", Path: r.path, Cause: err}
	}

	loaded, err := decodeServers(data)
	if err != nil {
		return &alouerrors.StorageError{Store: "registry", Op: "parse", Path: r.path, Cause: err}
	}

	order := make([]string, 0, len(loaded))
	records := make(map[string]ServiceRecord, len(loaded))
	for _, rec := range loaded {
		if err := rec.Validate(); err != nil {
			r.logger.Warn("skipping invalid service record", log.Error(err))
			continue
		}
		if _, seen := records[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		records[rec.ID] = rec
	}

	r.order = order
	r.records = records

	r.logger.Debug("registry loaded", slog.Int("count", len(order)), slog.String("path", r.path))
	return nil
}

// Upsert inserts rec or replaces the record with the same id. The file is
// rewritten before Upsert returns; if that fails nothing changes.
func (r *Registry) Upsert(ctx context.Context, rec ServiceRecord) error {
	if err := rec.Validate(); err != nil {
		return &alouerrors.ValidationError{Field: "id", Message: err.Error()}
	}
	rec = rec.Clone()
	rec.SimilarityScore = 0

	r.mu.Lock()
	order := r.order
	if _, exists := r.records[rec.ID]; !exists {
		order = append(order[:len(order):len(order)], rec.ID)
	}
	next := make(map[string]ServiceRecord, len(r.records)+1)
	for id, existing := range r.records {
		next[id] = existing
	}
	next[rec.ID] = rec

	if err := r.persist(order, next); err != nil {
		r.mu.Unlock()
		return err
	}
	r.order = order
	r.records = next
	r.mu.Unlock()

	r.logger.Info("service saved", slog.String(log.ServerKey, rec.ID))
	r.recordInstalled(ctx, rec)
	return nil
}

// Remove deletes the record with id. Removing an unknown id returns a
// NotFoundError.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return &alouerrors.NotFoundError{Resource: "service", ID: id}
	}

	order := make([]string, 0, len(r.order)-1)
	next := make(map[string]ServiceRecord, len(r.records)-1)
	for _, existing := range r.order {
		if existing == id {
			continue
		}
		order = append(order, existing)
		next[existing] = r.records[existing]
	}

	if err := r.persist(order, next); err != nil {
		return err
	}
	r.order = order
	r.records = next
	return nil
}

func (r *Registry) persist(order []string, records map[string]ServiceRecord) error {
	list := make([]ServiceRecord, 0, len(order))
	for _, id := range order {
		list = append(list, records[id])
	}
	data, err := encodeServers(list)
	if err != nil {
		return &alouerrors.StorageError{Store: "registry", Op: "encode", Path: r.path, Cause: err}
	}
	if err := util.WriteFileAtomic(r.path, data, 0600); err != nil {
		return &alouerrors.StorageError{Store: "registry", Op: "write", Path: r.path, Cause: err}
	}
	return nil
}

// recordInstalled writes the audit memory for an upsert. Failures are
// logged; the registry file is already durable at this point.
func (r *Registry) recordInstalled(ctx context.Context, rec ServiceRecord) {
	if r.recorder == nil {
		return
	}
	category := rec.CategoryOrDefault()

	content := fmt.Sprintf("Installed service: %s\nid: %s\ncategory: %s\ncommand: %s %s\ntags: %s\ndescription: %s",
		rec.DisplayName(), rec.ID, category, rec.Command, strings.Join(rec.Args, " "),
		strings.Join(rec.Tags, ", "), rec.Description)

	_, err := r.recorder.Store(ctx, content, memory.Metadata{
		Tags: []string{"service", "installed", category},
		Type: "installed_service",
		Fields: map[string]any{
			"service_id":   rec.ID,
			"service_name": rec.DisplayName(),
		},
	})
	if err != nil {
		r.logger.Warn("failed to record installed service",
			slog.String(log.ServerKey, rec.ID), log.Error(err))
	}
}

// FindByID returns a copy of the record with id.
func (r *Registry) FindByID(id string) (ServiceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return ServiceRecord{}, false
	}
	return rec.Clone(), true
}

// List returns all records in insertion order.
func (r *Registry) List() []ServiceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].Clone())
	}
	return out
}

// Search returns the best scoring record for queryWords, or false if no
// record scores above zero. Ties go to the record registered first.
func (r *Registry) Search(queryWords []string) (ServiceRecord, bool) {
	matches := r.Rank(queryWords)
	if len(matches) == 0 {
		return ServiceRecord{}, false
	}
	return matches[0].Record, true
}

// Rank returns every record scoring above zero, best first.
func (r *Registry) Rank(queryWords []string) []Match {
	return rank(r.List(), queryWords)
}
