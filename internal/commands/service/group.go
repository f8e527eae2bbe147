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

// Package service implements the alou service command group.
package service

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the service command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the service registry",
		Long: `Manage the registry of known MCP services.

Records live in mcpServers.json under the data directory. Edits made by
other tools are picked up on the next command.`,
	}

	cmd.AddCommand(
		newListCommand(),
		newFindCommand(),
		newAddCommand(),
		newRemoveCommand(),
		newImportCommand(),
		newLogsCommand(),
	)
	return cmd
}
