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

package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/joho/godotenv"
)

// DotenvBackendPriority sits between the environment and the keychain.
const DotenvBackendPriority = 75

// DotenvBackend reads secrets from .env files. Files are parsed on first
// use; earlier files win when a key appears in more than one.
type DotenvBackend struct {
	paths []string

	once   sync.Once
	values map[string]string
	err    error
}

// NewDotenvBackend creates a backend over the given .env files. Missing
// files are skipped.
func NewDotenvBackend(paths ...string) *DotenvBackend {
	return &DotenvBackend{paths: paths}
}

// Name returns the backend identifier.
func (d *DotenvBackend) Name() string {
	return "dotenv"
}

func (d *DotenvBackend) load() {
	d.values = make(map[string]string)
	for _, p := range d.paths {
		vals, err := godotenv.Read(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			d.err = fmt.Errorf("read %s: %w", p, err)
			return
		}
		for k, v := range vals {
			if _, ok := d.values[k]; !ok {
				d.values[k] = v
			}
		}
	}
}

// Get retrieves a secret from the .env files.
func (d *DotenvBackend) Get(ctx context.Context, key string) (string, error) {
	d.once.Do(d.load)
	if d.err != nil {
		return "", d.err
	}
	if v := d.values[key]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s not in .env files", ErrSecretNotFound, key)
}

// Available reports whether any file was configured.
func (d *DotenvBackend) Available() bool {
	return len(d.paths) > 0
}

// Priority returns the backend priority.
func (d *DotenvBackend) Priority() int {
	return DotenvBackendPriority
}
