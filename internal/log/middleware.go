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

package log

import (
	"log/slog"
	"time"
)

// ToolCall describes one tool invocation handled by an MCP server for
// logging purposes.
type ToolCall struct {
	// Tool is the tool name (e.g., "store_memory").
	Tool string

	// Metadata contains additional request fields worth logging.
	Metadata map[string]interface{}
}

// ToolCallMiddleware logs tool invocations when they arrive and when they
// complete.
type ToolCallMiddleware struct {
	logger *slog.Logger
}

// NewToolCallMiddleware creates a new tool call logging middleware.
func NewToolCallMiddleware(logger *slog.Logger) *ToolCallMiddleware {
	return &ToolCallMiddleware{logger: logger}
}

// Handle runs handler and logs the outcome. The handler's error is returned
// unchanged.
func (m *ToolCallMiddleware) Handle(call ToolCall, handler func() error) error {
	start := time.Now()

	attrs := []any{EventKey, "tool_call", "tool", call.Tool}
	for k, v := range call.Metadata {
		attrs = append(attrs, k, v)
	}
	m.logger.Debug("tool call received", attrs...)

	err := handler()

	attrs = append(attrs, DurationKey, time.Since(start).Milliseconds())
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		m.logger.Warn("tool call failed", attrs...)
		return err
	}
	m.logger.Debug("tool call completed", attrs...)
	return nil
}
