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

// Package mcpserver implements the serve-memory command.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/mcp/server"
)

// NewCommand creates the serve-memory command.
func NewCommand() *cobra.Command {
	var callsPerMinute int

	cmd := &cobra.Command{
		Use:   "serve-memory",
		Short: "Serve the memory store as a stdio MCP server",
		Long: `Serve the memory store over stdio so other MCP clients can use it.

Configuration example (mcpServers.json):
  {
    "mcpServers": {
      "memory": {
        "command": "alou",
        "args": ["serve-memory"]
      }
    }
  }

Tools: store_memory, retrieve_memory, search_memory, search_by_tag,
recall_memory, delete_memory, check_database_health, get_stats.

Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, callsPerMinute)
		},
	}

	cmd.Flags().IntVar(&callsPerMinute, "calls-per-minute", 600, "Rate limit for tool calls")
	return cmd
}

func runServer(cmd *cobra.Command, callsPerMinute int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.OpenApp(ctx, shared.AppOptions{})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	version, _, _ := shared.GetVersion()
	srv, err := server.NewServer(server.ServerConfig{
		Version:        version,
		Store:          app.Memory,
		CallsPerMinute: callsPerMinute,
		Logger:         app.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
