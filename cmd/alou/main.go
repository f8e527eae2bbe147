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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/alou/internal/cli"
	"github.com/tombee/alou/internal/commands/install"
	"github.com/tombee/alou/internal/commands/mcpserver"
	"github.com/tombee/alou/internal/commands/memory"
	"github.com/tombee/alou/internal/commands/secret"
	"github.com/tombee/alou/internal/commands/service"
	"github.com/tombee/alou/internal/commands/tool"
	versioncmd "github.com/tombee/alou/internal/commands/version"
	"github.com/tombee/alou/internal/mcp"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)
	mcp.ClientVersion = version

	rootCmd := cli.NewRootCommand()

	rootCmd.AddCommand(install.NewCommand())
	rootCmd.AddCommand(service.NewCommand())
	rootCmd.AddCommand(tool.NewCallCommand())
	rootCmd.AddCommand(tool.NewToolsCommand())
	rootCmd.AddCommand(memory.NewCommand())
	rootCmd.AddCommand(secret.NewCommand())
	rootCmd.AddCommand(mcpserver.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.HandleExitError(err)
	}
}
