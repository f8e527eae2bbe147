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
	"io"
	"time"

	"github.com/tombee/alou/internal/registry"
)

// ClientProvider is one live connection to a tool server process.
type ClientProvider interface {
	// ListTools retrieves the list of available tools from the MCP server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool executes an MCP tool with the given arguments.
	CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error)

	// Close closes the connection and stops the server process.
	Close() error

	// Ping checks if the server is still responsive.
	Ping(ctx context.Context) error

	// ServerName returns the unique identifier for this server.
	ServerName() string

	// Capabilities returns the server's capabilities.
	Capabilities() *ServerCapabilities
}

// Killer is implemented by clients that can terminate their process
// without waiting for a graceful close.
type Killer interface {
	Kill() error
}

// ExitNotifier is implemented by clients that can report that their
// process has exited.
type ExitNotifier interface {
	// Done is closed once the process is gone.
	Done() <-chan struct{}
}

// alive reports whether client's process is still running. Clients that
// cannot tell are assumed alive.
func alive(client ClientProvider) bool {
	n, ok := client.(ExitNotifier)
	if !ok {
		return true
	}
	select {
	case <-n.Done():
		return false
	default:
		return true
	}
}

// DialConfig describes how to launch and connect to one server.
type DialConfig struct {
	// ServerName is the unique identifier for this server
	ServerName string

	// Command is the executable to run
	Command string

	// Args are the command-line arguments
	Args []string

	// Env is added to the parent environment
	Env map[string]string

	// Cwd is the working directory; empty means the current one
	Cwd string

	// CallTimeout bounds each tool call (defaults to 30s)
	CallTimeout time.Duration

	// Stderr receives the process's stderr, if set
	Stderr io.Writer
}

// DialConfigFor builds a DialConfig from a service record.
func DialConfigFor(rec registry.ServiceRecord) DialConfig {
	return DialConfig{
		ServerName: rec.ID,
		Command:    rec.Command,
		Args:       rec.Args,
		Env:        rec.Env,
		Cwd:        rec.Cwd,
	}
}

// Dialer spawns a server and completes the protocol handshake. The
// returned client is ready for tool calls.
type Dialer interface {
	Dial(ctx context.Context, cfg DialConfig) (ClientProvider, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg DialConfig) (ClientProvider, error)

func (f DialerFunc) Dial(ctx context.Context, cfg DialConfig) (ClientProvider, error) {
	return f(ctx, cfg)
}

// RecordLookup resolves service ids for lazy starts. *registry.Registry
// satisfies it.
type RecordLookup interface {
	FindByID(id string) (registry.ServiceRecord, bool)
}
