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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// DefaultCallTimeout bounds a tool call when DialConfig leaves it unset.
	DefaultCallTimeout = 30 * time.Second

	// stderrGrace is how long a failed dial waits for trailing stderr.
	stderrGrace = 500 * time.Millisecond

	// exitSettle is how long a failed handshake waits to learn whether the
	// process has exited.
	exitSettle = 100 * time.Millisecond
)

var errProcessExited = errors.New("process exited")

// ClientName and ClientVersion are sent in the initialize handshake.
var (
	ClientName    = "alou"
	ClientVersion = "dev"
)

// Client wraps an MCP server connection and provides methods to interact with it.
type Client struct {
	serverName string

	client *client.Client

	capabilities *ServerCapabilities

	// timeout is the default timeout for tool calls
	timeout time.Duration

	mu  sync.Mutex
	cmd *exec.Cmd

	// stderrDone closes once the process's stderr reaches EOF
	stderrDone chan struct{}
}

// NewClient spawns the configured command and completes the MCP
// handshake. The process is killed if the handshake fails.
func NewClient(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Command == "" {
		return nil, ErrNoCommand(cfg.ServerName)
	}

	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}

	c := &Client{
		serverName: cfg.ServerName,
		timeout:    timeout,
		stderrDone: make(chan struct{}),
	}

	stdio := transport.NewStdioWithOptions(cfg.Command, envList(cfg.Env), cfg.Args,
		transport.WithCommandFunc(func(_ context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			// Not bound to ctx: the process outlives the dial.
			cmd := exec.Command(command, args...)
			cmd.Env = append(os.Environ(), env...)
			cmd.Dir = cfg.Cwd
			c.mu.Lock()
			c.cmd = cmd
			c.mu.Unlock()
			return cmd, nil
		}),
	)
	c.client = client.NewClient(stdio)

	if err := c.client.Start(ctx); err != nil {
		close(c.stderrDone)
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Command, err)
	}

	go c.drainStderr(stdio.Stderr(), cfg.Stderr)

	// An exited process may never answer initialize; stderr EOF ends the wait.
	initCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-c.stderrDone:
			cancel(errProcessExited)
		case <-initCtx.Done():
		}
	}()

	if err := c.initialize(initCtx); err != nil {
		// stdout may close before stderr; give the exit a moment to show.
		exited := errors.Is(context.Cause(initCtx), errProcessExited)
		if !exited {
			select {
			case <-c.stderrDone:
				exited = true
			case <-time.After(exitSettle):
			}
		}
		if exited {
			err = fmt.Errorf("connection closed before initialization completed: %w: %w", errProcessExited, err)
		}
		_ = c.Kill()
		_ = c.client.Close()
		select {
		case <-c.stderrDone:
		case <-time.After(stderrGrace):
		}
		return nil, err
	}

	return c, nil
}

func (c *Client) drainStderr(r io.Reader, w io.Writer) {
	defer close(c.stderrDone)
	if r == nil {
		return
	}
	if w == nil {
		w = io.Discard
	}
	_, _ = io.Copy(w, r)
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// initialize sends the initialize request to the MCP server.
func (c *Client) initialize(ctx context.Context) error {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: ClientVersion,
			},
		},
	}

	if _, err := c.client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}

	serverCaps := c.client.GetServerCapabilities()
	c.capabilities = &ServerCapabilities{
		Resources: serverCaps.Resources != nil,
		Prompts:   serverCaps.Prompts != nil,
	}
	if serverCaps.Tools != nil {
		c.capabilities.Tools = &ToolsCapability{ListChanged: serverCaps.Tools.ListChanged}
	}
	return nil
}

// ListTools retrieves the list of available tools from the MCP server.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]ToolDefinition, len(result.Tools))
	for i, tool := range result.Tools {
		schema, err := inputSchema(tool)
		if err != nil {
			return nil, err
		}
		tools[i] = ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		}
	}
	return tools, nil
}

func inputSchema(tool mcp.Tool) (json.RawMessage, error) {
	if len(tool.RawInputSchema) > 0 {
		return tool.RawInputSchema, nil
	}
	toolBytes, err := tool.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool %s: %w", tool.Name, err)
	}
	var toolMap map[string]json.RawMessage
	if err := json.Unmarshal(toolBytes, &toolMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool %s: %w", tool.Name, err)
	}
	return toolMap["inputSchema"], nil
}

// CallTool executes an MCP tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      req.Name,
			Arguments: req.Arguments,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout("call "+req.Name, c.timeout, err)
		}
		if c.exited() || isClosedErr(err) {
			return nil, ErrConnectionClosed(c.serverName, err)
		}
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	response := &ToolCallResponse{
		IsError: result.IsError,
		Content: make([]ContentItem, len(result.Content)),
	}
	for i, content := range result.Content {
		item, err := contentItem(content)
		if err != nil {
			return nil, err
		}
		response.Content[i] = item
	}
	return response, nil
}

func contentItem(content mcp.Content) (ContentItem, error) {
	if text, ok := mcp.AsTextContent(content); ok {
		return ContentItem{Type: text.Type, Text: text.Text}, nil
	}
	if image, ok := mcp.AsImageContent(content); ok {
		return ContentItem{Type: image.Type, Data: image.Data, MimeType: image.MIMEType}, nil
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return ContentItem{}, fmt.Errorf("failed to marshal content: %w", err)
	}
	var item ContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return ContentItem{}, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return item, nil
}

// Capabilities returns the server's capabilities.
func (c *Client) Capabilities() *ServerCapabilities {
	return c.capabilities
}

// ServerName returns the unique identifier for this server.
func (c *Client) ServerName() string {
	return c.serverName
}

// Ping checks if the server is still responsive.
func (c *Client) Ping(ctx context.Context) error {
	if c.exited() {
		return ErrConnectionClosed(c.serverName, errProcessExited)
	}
	if err := c.client.Ping(ctx); err != nil {
		if isClosedErr(err) {
			return ErrConnectionClosed(c.serverName, err)
		}
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the connection, which ends the server's stdin and waits
// for it to exit.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close MCP client: %w", err)
	}
	return nil
}

// Kill terminates the server process immediately.
func (c *Client) Kill() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Done is closed when the server process exits.
func (c *Client) Done() <-chan struct{} {
	return c.stderrDone
}

// exited reports whether the process's stderr has closed.
func (c *Client) exited() bool {
	select {
	case <-c.stderrDone:
		return true
	default:
		return false
	}
}

// StdioDialer launches servers as child processes speaking MCP over stdio.
type StdioDialer struct{}

// Dial implements Dialer.
func (StdioDialer) Dial(ctx context.Context, cfg DialConfig) (ClientProvider, error) {
	c, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}
