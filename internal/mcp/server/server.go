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

// Package server exposes the content store as a stdio MCP tool server.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/memory"
)

// Server wraps the MCP server and provides memory tools.
type Server struct {
	mcpServer   *server.MCPServer
	name        string
	version     string
	store       *memory.Store
	rateLimiter *RateLimiter
	calls       *log.ToolCallMiddleware
	logger      *slog.Logger
}

// ServerConfig configures the memory server.
type ServerConfig struct {
	// Name is the server name (default: "alou-memory")
	Name string

	// Version is the alou version
	Version string

	// Store is the content store served by the tools. Required.
	Store *memory.Store

	// CallsPerMinute bounds tool calls (default: 600).
	CallsPerMinute int

	// Logger must not write to stdout, which carries the protocol.
	Logger *slog.Logger
}

// NewServer creates a new memory server instance.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if config.Name == "" {
		config.Name = "alou-memory"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.CallsPerMinute <= 0 {
		config.CallsPerMinute = 600
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = log.WithComponent(logger, "memory-server")

	s := &Server{
		mcpServer:   server.NewMCPServer(config.Name, config.Version),
		name:        config.Name,
		version:     config.Version,
		store:       config.Store,
		rateLimiter: NewRateLimiter(config.CallsPerMinute),
		calls:       log.NewToolCallMiddleware(logger),
		logger:      logger,
	}
	s.registerTools()
	return s, nil
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func limitProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": "Maximum number of results (default: 5)",
		"default":     memory.DefaultLimit,
	}
}

// registerTools registers all memory tools with the MCP server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "store_memory",
		Description: "Store a fact. Identical content is stored once and returns the existing id.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content": stringProp("The text to remember"),
				"metadata": map[string]interface{}{
					"type":        "object",
					"description": "Optional tags (array or comma separated string), type, and any extra fields",
				},
			},
			Required: []string{"content"},
		},
	}, s.wrap("store_memory", s.handleStore))

	queryTool := func(name, description string) mcp.Tool {
		return mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query":     stringProp("Text to match against content, tags and type"),
					"n_results": limitProp(),
				},
				Required: []string{"query"},
			},
		}
	}
	s.mcpServer.AddTool(queryTool("retrieve_memory",
		"Find memories whose content, tags or type contain the query, newest first."),
		s.wrap("retrieve_memory", s.handleRetrieve))
	s.mcpServer.AddTool(queryTool("search_memory",
		"Alias of retrieve_memory."),
		s.wrap("search_memory", s.handleRetrieve))
	s.mcpServer.AddTool(queryTool("recall_memory",
		"Find memories using a time expression such as 'yesterday', 'last week' or '3 days ago', plus optional text."),
		s.wrap("recall_memory", s.handleRecall))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "search_by_tag",
		Description: "Find memories carrying any of the given tags (substring match).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tags": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Tags to search for",
				},
				"n_results": limitProp(),
			},
			Required: []string{"tags"},
		},
	}, s.wrap("search_by_tag", s.handleSearchByTag))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete the memory with the given content hash.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content_hash": stringProp("Content hash of the memory to delete"),
			},
			Required: []string{"content_hash"},
		},
	}, s.wrap("delete_memory", s.handleDelete))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "check_database_health",
		Description: "Report memory count and storage size.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}, s.wrap("check_database_health", s.handleHealth))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_stats",
		Description: "Summarize stored memories by tag, type and recent activity.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}, s.wrap("get_stats", s.handleStats))
}

type toolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// wrap applies rate limiting and call logging to a handler.
func (s *Server) wrap(name string, h toolHandler) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.rateLimiter.AllowCall() {
			return errorResponse("Rate limit exceeded. Please try again later."), nil
		}

		var result *mcp.CallToolResult
		err := s.calls.Handle(log.ToolCall{Tool: name}, func() error {
			var err error
			result, err = h(ctx, request)
			if err == nil && result != nil && result.IsError {
				return fmt.Errorf("%s", resultText(result))
			}
			return err
		})
		if err != nil && result == nil {
			return nil, err
		}
		return result, nil
	}
}

// Run serves the tools over stdio until stdin closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting memory server",
		slog.String("version", s.version),
		slog.Int("memories", s.store.Count()))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func resultText(r *mcp.CallToolResult) string {
	for _, c := range r.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			return tc.Text
		}
	}
	return ""
}
