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
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/alou/internal/log"
)

// EventType represents the type of service lifecycle event.
type EventType string

const (
	// EventStarted indicates a service reached running.
	EventStarted EventType = "started"
	// EventStopped indicates a service was stopped.
	EventStopped EventType = "stopped"
	// EventFailed indicates a start attempt failed.
	EventFailed EventType = "failed"
	// EventExited indicates a running service went away unexpectedly.
	EventExited EventType = "exited"
)

// ServiceEvent describes a lifecycle transition.
type ServiceEvent struct {
	Type      EventType      `json:"type"`
	Service   string         `json:"service"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// EventEmitter logs lifecycle events and fans them out to subscribers.
type EventEmitter struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs []func(ServiceEvent)
}

// NewEventEmitter creates a new event emitter.
func NewEventEmitter(logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{logger: logger}
}

// Subscribe registers fn for every subsequent event. fn runs synchronously
// and must not block.
func (e *EventEmitter) Subscribe(fn func(ServiceEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Emit logs an event and notifies subscribers.
func (e *EventEmitter) Emit(event ServiceEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String(log.ServerKey, event.Service),
		slog.String(log.EventKey, string(event.Type)),
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Details {
		attrs = append(attrs, slog.Any(k, v))
	}

	if event.Type == EventFailed || event.Type == EventExited {
		e.logger.Warn("service event", attrs...)
	} else {
		e.logger.Info("service event", attrs...)
	}

	e.mu.RLock()
	subs := e.subs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}
}

func (e *EventEmitter) started(name string, tools int) {
	e.Emit(ServiceEvent{Type: EventStarted, Service: name, Details: map[string]any{"tools": tools}})
}

func (e *EventEmitter) stopped(name string) {
	e.Emit(ServiceEvent{Type: EventStopped, Service: name})
}

func (e *EventEmitter) failed(name string, err error) {
	e.Emit(ServiceEvent{Type: EventFailed, Service: name, Error: err.Error()})
}

func (e *EventEmitter) exited(name string, err error) {
	e.Emit(ServiceEvent{Type: EventExited, Service: name, Error: err.Error()})
}
