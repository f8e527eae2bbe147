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
	"log/slog"
	"sort"

	"github.com/tombee/alou/internal/log"
)

// DefaultPlaceholder is used for keys that no backend provides.
const DefaultPlaceholder = "demo"

// SourcePlaceholder is reported by Resolve when the placeholder was used.
const SourcePlaceholder = "placeholder"

// Resolver manages a chain of SecretBackends and resolves secrets
// by querying backends in priority order.
type Resolver struct {
	backends    []SecretBackend
	placeholder string
	logger      *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPlaceholder overrides DefaultPlaceholder.
func WithPlaceholder(v string) ResolverOption {
	return func(r *Resolver) { r.placeholder = v }
}

// WithLogger sets the logger used to report lookups.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over the available backends, sorted by
// priority (highest first).
func NewResolver(backends []SecretBackend, opts ...ResolverOption) *Resolver {
	available := make([]SecretBackend, 0, len(backends))
	for _, b := range backends {
		if b != nil && b.Available() {
			available = append(available, b)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].Priority() > available[j].Priority()
	})

	r := &Resolver{
		backends:    available,
		placeholder: DefaultPlaceholder,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get retrieves a secret by querying backends in priority order.
// Returns ErrSecretNotFound if no backend has it.
func (r *Resolver) Get(ctx context.Context, key string) (string, string, error) {
	var lastErr error
	for _, backend := range r.backends {
		value, err := backend.Get(ctx, key)
		if err == nil {
			return value, backend.Name(), nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			lastErr = err
		}
	}

	if lastErr != nil {
		return "", "", fmt.Errorf("failed to get secret %q: %w", key, lastErr)
	}
	return "", "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
}

// Resolve returns a value for key and the name of the backend that
// supplied it. It never fails: backend errors are logged and the
// placeholder is returned.
func (r *Resolver) Resolve(ctx context.Context, key string) (string, string) {
	value, source, err := r.Get(ctx, key)
	if err == nil {
		r.logger.Debug("resolved secret",
			slog.String("key", key),
			slog.String("source", source),
			slog.String("value", log.SanitizeSecret(value)))
		return value, source
	}
	if !errors.Is(err, ErrSecretNotFound) {
		r.logger.Warn("secret lookup failed", slog.String("key", key), log.Error(err))
	}
	return r.placeholder, SourcePlaceholder
}

// Writable returns the first available backend that can store secrets.
func (r *Resolver) Writable() (WritableBackend, bool) {
	for _, b := range r.backends {
		if w, ok := b.(WritableBackend); ok {
			return w, true
		}
	}
	return nil, false
}
