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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tombee/alou/internal/util"
)

// Backend persists the full item list. Save replaces the persisted state
// and must be durable when it returns.
type Backend interface {
	Load(ctx context.Context) ([]Item, error)
	Save(ctx context.Context, items []Item) error
	// Size reports the persisted size in bytes.
	Size() (int64, error)
	// Location identifies where items are stored, for health reports.
	Location() string
	Close() error
}

// JSONFileBackend stores items as a JSON array in a single file.
type JSONFileBackend struct {
	path string
}

var _ Backend = (*JSONFileBackend)(nil)

// NewJSONFileBackend returns a backend writing to path.
func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{path: path}
}

// Load reads all items. A missing file is an empty store.
func (b *JSONFileBackend) Load(_ context.Context) ([]Item, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse memory file: %w", err)
	}
	return items, nil
}

// Save rewrites the whole file atomically.
func (b *JSONFileBackend) Save(_ context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memories: %w", err)
	}

	return util.WriteFileAtomic(b.path, data, 0600)
}

// Size returns the file size, 0 if it does not exist yet.
func (b *JSONFileBackend) Size() (int64, error) {
	info, err := os.Stat(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

func (b *JSONFileBackend) Location() string { return b.path }

func (b *JSONFileBackend) Close() error { return nil }

// NewBackend returns the backend named kind ("json" or "sqlite") at path.
func NewBackend(kind, path string) (Backend, error) {
	switch kind {
	case "", "json":
		return NewJSONFileBackend(path), nil
	case "sqlite":
		return NewSQLiteBackend(path)
	}
	return nil, fmt.Errorf("unknown memory backend %q", kind)
}
