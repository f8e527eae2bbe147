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
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStartError(t *testing.T) {
	cfg := DialConfig{ServerName: "brave-search", Command: "npx"}

	tests := []struct {
		name string
		err  error
		want MCPErrorCode
	}{
		{"not found sentinel", fmt.Errorf("start: %w", exec.ErrNotFound), ErrorCodeCommandNotFound},
		{"not found text", errors.New(`exec: "npx": executable file not found in $PATH`), ErrorCodeCommandNotFound},
		{"permission", errors.New("fork/exec ./server.sh: permission denied"), ErrorCodePermissionDenied},
		{"eof", fmt.Errorf("initialize request failed: %w", io.EOF), ErrorCodeConnectionClosed},
		{"exited", fmt.Errorf("wrapped: %w", errProcessExited), ErrorCodeConnectionClosed},
		{"deadline", fmt.Errorf("initialize: %w", context.DeadlineExceeded), ErrorCodeTimeout},
		{"other", errors.New("unexpected handshake"), ErrorCodeStartFailed},
		{"passthrough", ErrNoCommand("x"), ErrorCodeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyStartError(cfg, tt.err)
			if got.Code != tt.want {
				t.Errorf("classifyStartError() code = %s, want %s", got.Code, tt.want)
			}
		})
	}
}

func TestMCPError_Error(t *testing.T) {
	err := ErrConnectionClosed("brave-search", io.EOF).
		WithOutput("Error: BRAVE_API_KEY environment variable is required")

	text := FailureText(err)
	assert.Contains(t, text, "connection closed")
	assert.Contains(t, text, "BRAVE_API_KEY environment variable is required")
	assert.False(t, err.IsRetryable())
	assert.True(t, ErrTimeout("start brave-search", time.Second, context.DeadlineExceeded).IsRetryable())
	assert.Equal(t, "connection_closed", err.ErrorType())
	assert.ErrorIs(t, err, io.EOF)
}

func TestErrCommandNotFound_Suggestions(t *testing.T) {
	err := ErrCommandNotFound("npx", exec.ErrNotFound)
	if !strings.Contains(err.Error(), "ENOENT") {
		t.Errorf("Error() = %q, want ENOENT", err.Error())
	}
	found := false
	for _, s := range err.Suggestions {
		if strings.Contains(s, "nodejs.org") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a Node.js suggestion, got %v", err.Suggestions)
	}
}

func TestGetMCPError(t *testing.T) {
	base := ErrServerNotFound("x")
	wrapped := fmt.Errorf("install: %w", base)

	if got := GetMCPError(wrapped); got != base {
		t.Errorf("GetMCPError() = %v, want %v", got, base)
	}
	if got := GetMCPError(errors.New("plain")); got != nil {
		t.Errorf("GetMCPError(plain) = %v, want nil", got)
	}
	if FailureText(nil) != "" {
		t.Error("FailureText(nil) should be empty")
	}
}
