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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	alouerrors "github.com/tombee/alou/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *alouerrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &alouerrors.ValidationError{
				Field:   "command",
				Message: "required field is missing",
			},
			wantMsg: "validation failed on command: required field is missing",
		},
		{
			name:    "without field",
			err:     &alouerrors.ValidationError{Message: "invalid format"},
			wantMsg: "validation failed: invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := &alouerrors.NotFoundError{Resource: "service", ID: "brave-search"}
	if got, want := err.Error(), "service not found: brave-search"; got != want {
		t.Errorf("NotFoundError.Error() = %q, want %q", got, want)
	}
	if err.IsRetryable() {
		t.Error("NotFoundError should not be retryable")
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := &alouerrors.StorageError{Store: "memory", Op: "save", Path: "/tmp/memory.json", Cause: cause}

	if !strings.Contains(err.Error(), "memory save failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "/tmp/memory.json") {
		t.Errorf("message should contain the path: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to its cause")
	}
	if err.ErrorType() != "storage" {
		t.Errorf("ErrorType() = %q, want storage", err.ErrorType())
	}
}

func TestTimeoutError(t *testing.T) {
	err := &alouerrors.TimeoutError{Operation: "connect", Duration: 10 * time.Second}
	if got, want := err.Error(), "connect operation timed out after 10s"; got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
	if !alouerrors.IsRetryable(fmt.Errorf("starting echo: %w", err)) {
		t.Error("wrapped TimeoutError should be retryable")
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("yaml: line 3")
	err := &alouerrors.ConfigError{Key: "config_file", Reason: "failed to parse", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("ConfigError should unwrap to its cause")
	}
	if got, want := err.Error(), "config error at config_file: failed to parse"; got != want {
		t.Errorf("ConfigError.Error() = %q, want %q", got, want)
	}
}

func TestIsRetryable_PlainError(t *testing.T) {
	if alouerrors.IsRetryable(errors.New("boom")) {
		t.Error("plain errors are not retryable")
	}
}
