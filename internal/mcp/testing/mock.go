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

// Package testing provides in-process fakes for the mcp package.
package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/alou/internal/mcp"
)

// MockClient implements mcp.ClientProvider for testing.
type MockClient struct {
	serverName string
	tools      []mcp.ToolDefinition
	callFunc   func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)
	pingFunc   func(ctx context.Context) error
	closeFunc  func() error
	callDelay  time.Duration
	closed     atomic.Bool
	killed     atomic.Bool
	mu         sync.RWMutex

	done     chan struct{}
	exitOnce sync.Once
}

// NewMockClient creates a new mock MCP client.
func NewMockClient(serverName string, tools []mcp.ToolDefinition) *MockClient {
	return &MockClient{
		serverName: serverName,
		tools:      tools,
		done:       make(chan struct{}),
	}
}

// ListTools returns the configured list of tools.
func (c *MockClient) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	toolsCopy := make([]mcp.ToolDefinition, len(c.tools))
	copy(toolsCopy, c.tools)
	return toolsCopy, nil
}

// CallTool executes a tool call using the configured handler. Without one
// it echoes the "text" argument.
func (c *MockClient) CallTool(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error) {
	c.mu.RLock()
	delay := c.callDelay
	callFunc := c.callFunc
	c.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if callFunc != nil {
		return callFunc(ctx, req)
	}

	text := fmt.Sprintf("Mock response for %s", req.Name)
	if s, ok := req.Arguments["text"].(string); ok {
		text = s
	}
	return &mcp.ToolCallResponse{
		Content: []mcp.ContentItem{{Type: "text", Text: text}},
	}, nil
}

// Close runs the configured close function, if any, then marks the
// process as exited.
func (c *MockClient) Close() error {
	c.closed.Store(true)

	c.mu.RLock()
	closeFunc := c.closeFunc
	c.mu.RUnlock()

	if closeFunc != nil {
		if err := closeFunc(); err != nil {
			return err
		}
	}
	c.Exit()
	return nil
}

// Kill records that the client was force-stopped.
func (c *MockClient) Kill() error {
	c.killed.Store(true)
	c.Exit()
	return nil
}

// Exit simulates the server process dying.
func (c *MockClient) Exit() {
	c.exitOnce.Do(func() { close(c.done) })
}

// Done implements mcp.ExitNotifier.
func (c *MockClient) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether Close was called.
func (c *MockClient) Closed() bool {
	return c.closed.Load()
}

// Killed reports whether Kill was called.
func (c *MockClient) Killed() bool {
	return c.killed.Load()
}

// Ping returns success unless a custom ping function is configured.
func (c *MockClient) Ping(ctx context.Context) error {
	c.mu.RLock()
	pingFunc := c.pingFunc
	c.mu.RUnlock()

	if pingFunc != nil {
		return pingFunc(ctx)
	}
	return nil
}

// ServerName returns the mock server name.
func (c *MockClient) ServerName() string {
	return c.serverName
}

// Capabilities returns the mock server capabilities.
func (c *MockClient) Capabilities() *mcp.ServerCapabilities {
	return &mcp.ServerCapabilities{
		Tools: &mcp.ToolsCapability{},
	}
}

// SetCallHandler sets a custom call handler for this client.
func (c *MockClient) SetCallHandler(f func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callFunc = f
}

// SetCallDelay sets a delay for all tool calls.
func (c *MockClient) SetCallDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callDelay = d
}

// SetPingFunc sets a custom ping function.
func (c *MockClient) SetPingFunc(f func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingFunc = f
}

// SetCloseFunc sets a custom close function.
func (c *MockClient) SetCloseFunc(f func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFunc = f
}

// MockServer configures what MockDialer returns for one service.
type MockServer struct {
	Tools       []mcp.ToolDefinition
	CallHandler func(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error)

	// DialError is returned from Dial. DialFunc, when set, takes precedence
	// and sees the full config, including Stderr.
	DialError error
	DialFunc  func(ctx context.Context, cfg mcp.DialConfig) error
	DialDelay time.Duration
}

// MockDialer implements mcp.Dialer without spawning processes.
type MockDialer struct {
	mu      sync.Mutex
	servers map[string]MockServer
	clients map[string]*MockClient
	dials   []mcp.DialConfig
}

// NewMockDialer creates an empty MockDialer. Unknown services dial
// successfully with an echo tool.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		servers: make(map[string]MockServer),
		clients: make(map[string]*MockClient),
	}
}

// EchoTool is the tool every default mock server exposes.
var EchoTool = mcp.ToolDefinition{
	Name:        "echo",
	Description: "Echo the text argument",
	InputSchema: []byte(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
}

// Set configures the behaviour for name.
func (d *MockDialer) Set(name string, server MockServer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.servers[name] = server
}

// Dial implements mcp.Dialer.
func (d *MockDialer) Dial(ctx context.Context, cfg mcp.DialConfig) (mcp.ClientProvider, error) {
	d.mu.Lock()
	server, ok := d.servers[cfg.ServerName]
	d.dials = append(d.dials, cfg)
	d.mu.Unlock()

	if !ok {
		server = MockServer{Tools: []mcp.ToolDefinition{EchoTool}}
	}

	if server.DialDelay > 0 {
		select {
		case <-time.After(server.DialDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if server.DialFunc != nil {
		if err := server.DialFunc(ctx, cfg); err != nil {
			return nil, err
		}
	} else if server.DialError != nil {
		return nil, server.DialError
	}

	client := NewMockClient(cfg.ServerName, server.Tools)
	if server.CallHandler != nil {
		client.SetCallHandler(server.CallHandler)
	}

	d.mu.Lock()
	d.clients[cfg.ServerName] = client
	d.mu.Unlock()
	return client, nil
}

// Dials returns every config passed to Dial, in order.
func (d *MockDialer) Dials() []mcp.DialConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]mcp.DialConfig, len(d.dials))
	copy(out, d.dials)
	return out
}

// DialCount returns how many times name was dialed.
func (d *MockDialer) DialCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, cfg := range d.dials {
		if cfg.ServerName == name {
			n++
		}
	}
	return n
}

// Client returns the most recent client dialed for name.
func (d *MockDialer) Client(name string) *MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[name]
}
