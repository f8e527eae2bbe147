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
Package mcp supervises stdio tool servers speaking the Model Context
Protocol.

A Supervisor maps each service id to at most one child process. Start
spawns the record's command, completes the initialize handshake and lists
the server's tools; the service is running only once that listing
succeeds.

	sup := mcp.NewSupervisor(mcp.SupervisorConfig{Records: reg, Logger: logger})
	defer sup.Shutdown(ctx)

	if err := sup.Start(ctx, rec); err != nil {
	    // err is an *MCPError; its Output holds the server's stderr.
	}
	resp, err := sup.Call(ctx, rec.ID, "echo", map[string]any{"text": "hi"})

# Failures

Start failures are classified into MCPError codes: COMMAND_NOT_FOUND
(spawn ENOENT), PERMISSION_DENIED, CONNECTION_CLOSED (the process exited
before answering), TIMEOUT and START_FAILED. The recovery engine reads
FailureText to decide a fix.

# Stderr

Server stderr is split into lines and kept in a per-service ring buffer.
Supervisor.Logs returns the recent history.

# Testing

The testing subpackage provides MockClient and MockDialer for exercising
the supervisor without spawning processes.
*/
package mcp
