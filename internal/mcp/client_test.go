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
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/registry"
)

const helperEnv = "ALOU_MCP_TEST_HELPER"

// TestMain lets the test binary double as a stdio tool server.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "echo":
		runEchoServer()
		os.Exit(0)
	case "missing-key":
		fmt.Fprintln(os.Stderr, "Error: BRAVE_API_KEY environment variable is required")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func runEchoServer() {
	s := server.NewMCPServer("echo", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo the text argument"),
			mcp.WithString("text", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	)
	if err := server.ServeStdio(s); err != nil {
		os.Exit(1)
	}
}

func helperRecord(id, mode string) registry.ServiceRecord {
	return registry.ServiceRecord{
		ID:      id,
		Command: os.Args[0],
		Env:     map[string]string{helperEnv: mode},
	}
}

func newStdioSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	sup := NewSupervisor(SupervisorConfig{
		ConnectTimeout: 10 * time.Second,
		StopTimeout:    2 * time.Second,
		Logger:         log.Discard(),
	})
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	return sup
}

func TestStdioDialer_EchoRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a child process")
	}
	sup := newStdioSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.Start(ctx, helperRecord("echo", "echo")))

	tools, err := sup.Tools("echo")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Contains(t, string(tools[0].InputSchema), `"text"`)

	resp, err := sup.Call(ctx, "echo", "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Equal(t, "hello", resp.Text())

	resp, err = sup.Call(ctx, "echo", "echo", map[string]any{})
	require.NoError(t, err)
	assert.True(t, resp.IsError)

	require.NoError(t, sup.Stop(ctx, "echo"))
	assert.Equal(t, StateAbsent, sup.State("echo"))
}

func TestStdioDialer_ProcessDeathIsNoticed(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a child process")
	}
	sup := newStdioSupervisor(t)
	ctx := context.Background()
	rec := helperRecord("echo", "echo")

	require.NoError(t, sup.Start(ctx, rec))
	first := liveClient(t, sup, "echo")
	require.NoError(t, first.Kill())

	require.Eventually(t, func() bool {
		return sup.State("echo") == StateAbsent
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, sup.Status("echo").LastError, "exited")

	require.NoError(t, sup.Start(ctx, rec))
	assert.NotSame(t, first, liveClient(t, sup, "echo"))

	resp, err := sup.Call(ctx, "echo", "echo", map[string]any{"text": "again"})
	require.NoError(t, err)
	assert.Equal(t, "again", resp.Text())
}

func TestStdioDialer_StartRelaunchesDeadProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a child process")
	}
	sup := newStdioSupervisor(t)
	ctx := context.Background()
	rec := helperRecord("echo", "echo")

	require.NoError(t, sup.Start(ctx, rec))
	first := liveClient(t, sup, "echo")
	require.NoError(t, first.Kill())
	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	// Start right after the exit, whether or not the monitor has run yet.
	require.NoError(t, sup.Start(ctx, rec))
	second := liveClient(t, sup, "echo")
	assert.NotSame(t, first, second)
	assert.Equal(t, StateRunning, sup.State("echo"))
	require.NoError(t, second.Ping(ctx))
}

func liveClient(t *testing.T, sup *Supervisor, name string) *Client {
	t.Helper()
	sup.mu.Lock()
	defer sup.mu.Unlock()
	c, ok := sup.conns[name]
	require.True(t, ok, "no connection for %s", name)
	client, ok := c.client.(*Client)
	require.True(t, ok, "%s has no live stdio client", name)
	return client
}

func TestStdioDialer_ProcessExitsBeforeHandshake(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a child process")
	}
	sup := newStdioSupervisor(t)

	err := sup.Start(context.Background(), helperRecord("brave-search", "missing-key"))
	require.Error(t, err)

	mcpErr := GetMCPError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrorCodeConnectionClosed, mcpErr.Code)
	assert.Contains(t, FailureText(err), "BRAVE_API_KEY environment variable is required")
	assert.Equal(t, StateAbsent, sup.State("brave-search"))
}

func TestStdioDialer_CommandNotFound(t *testing.T) {
	sup := newStdioSupervisor(t)

	err := sup.Start(context.Background(), registry.ServiceRecord{
		ID:      "ghost",
		Command: "alou-test-no-such-binary",
	})
	mcpErr := GetMCPError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrorCodeCommandNotFound, mcpErr.Code)
	assert.Contains(t, mcpErr.Error(), "ENOENT")
}

func TestEnvList(t *testing.T) {
	got := envList(map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, []string{"A=1", "B=2"}, got)
}
