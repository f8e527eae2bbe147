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
	"io/fs"
	"os/exec"
	"strings"
	"time"

	alouerrors "github.com/tombee/alou/pkg/errors"
)

// MCPErrorCode represents a category of MCP error.
type MCPErrorCode string

const (
	// ErrorCodeNotFound indicates a server was not found.
	ErrorCodeNotFound MCPErrorCode = "NOT_FOUND"
	// ErrorCodeNotRunning indicates a server is not running.
	ErrorCodeNotRunning MCPErrorCode = "NOT_RUNNING"
	// ErrorCodeCommandNotFound indicates a command was not found.
	ErrorCodeCommandNotFound MCPErrorCode = "COMMAND_NOT_FOUND"
	// ErrorCodePermissionDenied indicates the command exists but cannot be run.
	ErrorCodePermissionDenied MCPErrorCode = "PERMISSION_DENIED"
	// ErrorCodeStartFailed indicates a server failed to start.
	ErrorCodeStartFailed MCPErrorCode = "START_FAILED"
	// ErrorCodeConnectionClosed indicates the server connection closed.
	ErrorCodeConnectionClosed MCPErrorCode = "CONNECTION_CLOSED"
	// ErrorCodeConfig indicates a configuration error.
	ErrorCodeConfig MCPErrorCode = "CONFIG"
	// ErrorCodeTimeout indicates a timeout occurred.
	ErrorCodeTimeout MCPErrorCode = "TIMEOUT"
	// ErrorCodeShutdown indicates the supervisor is shutting down.
	ErrorCodeShutdown MCPErrorCode = "SHUTDOWN"
	// ErrorCodeToolFailed indicates a tool call failed.
	ErrorCodeToolFailed MCPErrorCode = "TOOL_FAILED"
)

// MCPError is an error type that includes suggestions for resolution.
type MCPError struct {
	// Code is the error category.
	Code MCPErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Output is the tail of the server's stderr, if any was captured.
	Output string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Output != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Output)
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *MCPError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *MCPError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MCPError) UserMessage() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *MCPError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	return e.Suggestions[0]
}

// IsRetryable implements pkg/errors.ErrorClassifier. Only timeouts may
// succeed on an unchanged next attempt; a process that exited usually
// exits the same way again.
func (e *MCPError) IsRetryable() bool {
	return e.Code == ErrorCodeTimeout
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *MCPError) ErrorType() string {
	return strings.ToLower(string(e.Code))
}

// NewMCPError creates a new MCPError.
func NewMCPError(code MCPErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *MCPError) WithDetail(detail string) *MCPError {
	e.Detail = detail
	return e
}

// WithOutput attaches captured process output.
func (e *MCPError) WithOutput(output string) *MCPError {
	e.Output = output
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *MCPError) WithCause(cause error) *MCPError {
	e.Cause = cause
	return e
}

// ErrServerNotFound creates an error for an unknown service id.
func ErrServerNotFound(name string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("service '%s' not found", name)).
		WithSuggestions(
			"List known services: alou service list",
			fmt.Sprintf("Register the service: alou service add %s --command <cmd>", name),
		)
}

// ErrServerNotRunning creates an error for when a server is not running.
func ErrServerNotRunning(name string) *MCPError {
	return NewMCPError(ErrorCodeNotRunning, fmt.Sprintf("service '%s' is not running", name)).
		WithSuggestions(fmt.Sprintf("Start it: alou install %s", name))
}

// ErrNoCommand creates an error for a placeholder record.
func ErrNoCommand(name string) *MCPError {
	return NewMCPError(ErrorCodeConfig, fmt.Sprintf("service '%s' has no launch command", name)).
		WithSuggestions(fmt.Sprintf("Set a command: alou service add %s --command <cmd>", name))
}

// ErrCommandNotFound creates an error for when a command is not found.
func ErrCommandNotFound(command string, cause error) *MCPError {
	suggestions := []string{
		"Verify the command is installed and in your PATH",
		fmt.Sprintf("Use an absolute path: --command /path/to/%s", command),
	}

	switch command {
	case "npx", "node", "npm":
		suggestions = append(suggestions, "Install Node.js: https://nodejs.org/")
	case "python", "python3":
		suggestions = append(suggestions, "Install Python: https://python.org/")
	case "pip", "uvx", "uv":
		suggestions = append(suggestions, "Install uv or pip for Python package management")
	}

	return NewMCPError(ErrorCodeCommandNotFound, fmt.Sprintf("command '%s' not found", command)).
		WithDetail("spawn ENOENT").
		WithCause(cause).
		WithSuggestions(suggestions...)
}

// ErrPermissionDenied creates an error for a command without execute permission.
func ErrPermissionDenied(command string, cause error) *MCPError {
	return NewMCPError(ErrorCodePermissionDenied, fmt.Sprintf("command '%s' is not executable", command)).
		WithDetail("spawn EACCES").
		WithCause(cause).
		WithSuggestions(fmt.Sprintf("Check permissions: chmod +x %s", command))
}

// ErrStartFailed creates an error for when a server fails to start.
func ErrStartFailed(name string, cause error) *MCPError {
	return NewMCPError(ErrorCodeStartFailed, fmt.Sprintf("failed to start service '%s'", name)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			fmt.Sprintf("Check server logs: alou service logs %s", name),
			"Verify the command and arguments are correct",
			"Ensure required environment variables are set",
		)
}

// ErrConnectionClosed creates an error for a server that went away.
func ErrConnectionClosed(name string, cause error) *MCPError {
	return NewMCPError(ErrorCodeConnectionClosed, fmt.Sprintf("service '%s' exited", name)).
		WithDetail("connection closed").
		WithCause(cause).
		WithSuggestions(
			fmt.Sprintf("Check server logs for crash details: alou service logs %s", name),
			"Ensure required environment variables are set",
		)
}

// ErrTimeout creates an error for an operation that exceeded limit. The
// cause chain carries a *errors.TimeoutError; limit may be zero when the
// deadline came from the caller's context.
func ErrTimeout(operation string, limit time.Duration, cause error) *MCPError {
	e := NewMCPError(ErrorCodeTimeout, fmt.Sprintf("operation '%s' timed out", operation)).
		WithCause(&alouerrors.TimeoutError{Operation: operation, Duration: limit, Cause: cause}).
		WithSuggestions(
			"Check if the server is responding",
			"Try increasing the timeout value",
		)
	if limit > 0 {
		e = e.WithDetail(limit.String())
	}
	return e
}

// ErrShuttingDown is returned for starts after Shutdown.
func ErrShuttingDown() *MCPError {
	return NewMCPError(ErrorCodeShutdown, "supervisor is shutting down")
}

// classifyStartError maps a spawn or handshake failure to an MCPError.
func classifyStartError(cfg DialConfig, err error) *MCPError {
	if mcpErr := GetMCPError(err); mcpErr != nil {
		return mcpErr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist),
		strings.Contains(msg, "executable file not found"),
		strings.Contains(msg, "no such file or directory"):
		return ErrCommandNotFound(cfg.Command, err)
	case errors.Is(err, fs.ErrPermission), strings.Contains(msg, "permission denied"):
		return ErrPermissionDenied(cfg.Command, err)
	case isClosedErr(err):
		return ErrConnectionClosed(cfg.ServerName, err)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout("start "+cfg.ServerName, 0, err)
	}
	return ErrStartFailed(cfg.ServerName, err)
}

// isClosedErr reports whether err means the peer process went away.
func isClosedErr(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, errProcessExited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection closed", "transport closed", "file already closed", "broken pipe", "process exited"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// WrapError wraps a standard error in an MCPError if it isn't one already.
func WrapError(err error, code MCPErrorCode, message string) *MCPError {
	if mcpErr := GetMCPError(err); mcpErr != nil {
		return mcpErr
	}
	return NewMCPError(code, message).WithDetail(err.Error()).WithCause(err)
}

// GetMCPError extracts an MCPError from an error chain.
func GetMCPError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return nil
}

// FailureText renders err as the raw text handed to diagnosis: message,
// detail and captured stderr.
func FailureText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
