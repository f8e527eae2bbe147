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

/*
Package cli provides the root command for alou.

The command tree:

	alou
	├── install       Install a service with automatic recovery
	├── service       list, find, add, remove, import, logs
	├── call          Call a tool on a service
	├── tools         List a service's tools
	├── memory        store, retrieve, tag, recall, delete, health, stats
	├── secret        set, get, delete values used by set_env
	├── serve-memory  Serve the memory store as an MCP server
	└── version       Show version

Subcommands live in internal/commands and are registered from main.

# Global Flags

	--verbose, -v    Debug logging
	--quiet, -q      Errors only
	--json           JSON output
	--config         Path to config file
	--metrics-addr   Serve Prometheus metrics on this address

# Exit Codes

  - 0: success
  - 1: command failed
  - 2: installation did not produce a running service
  - 3: service or memory not found
  - 4: invalid configuration
*/
package cli
