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

// Package install implements the alou install command.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/install"
	"github.com/tombee/alou/internal/mcp"
)

// NewCommand creates the install command.
func NewCommand() *cobra.Command {
	var (
		confirm bool
		reset   bool
	)

	cmd := &cobra.Command{
		Use:   "install <id|query...>",
		Short: "Install and verify an MCP service",
		Long: `Install looks the argument up in the service registry, or discovers the
best matching service for a free-text query, then launches it and checks
that it answers.

When a launch fails, alou diagnoses the failure and applies a fix: it sets
a missing environment variable, installs a missing package, edits a
configuration file, or suggests a different service. Each service gets at
most three launch attempts per session.`,
		Example: `  # Install a registered service
  alou install brave-search

  # Discover a service by description
  alou install "web search"

  # Ask before applying each fix
  alou install filesystem --confirm-fixes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, strings.Join(args, " "), confirm, reset)
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm-fixes", false, "Ask before applying each remediation")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the retry count before installing")

	return cmd
}

func runInstall(cmd *cobra.Command, target string, confirm, reset bool) error {
	ctx := cmd.Context()
	app, err := shared.OpenApp(ctx, shared.AppOptions{Services: true, ConfirmFixes: confirm})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	rec, err := app.Installer.Resolve(ctx, target)
	if err != nil {
		if errors.Is(err, install.ErrDiscoveryMiss) {
			return shared.NewNotFoundError(fmt.Sprintf("no service matches %q", target), nil)
		}
		return shared.NewExecutionError("discovery failed", err)
	}
	if reset {
		app.Installer.ResetRetry(rec.ID)
	}

	res, err := app.Installer.Install(ctx, rec)
	if err != nil && res == nil {
		return shared.NewExecutionError("install failed", err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if jerr := shared.EmitJSON(out, jsonResult(res)); jerr != nil {
			return jerr
		}
	} else {
		printResult(out, res)
	}

	if err != nil {
		return shared.NewExecutionError("install bookkeeping failed", err)
	}
	if !res.OK() {
		return shared.NewInstallError(fmt.Sprintf("%s was not installed (%s)", res.ServiceID, res.Status), nil)
	}
	return nil
}

type installJSON struct {
	shared.JSONResponse
	Service       string   `json:"service"`
	Status        string   `json:"status"`
	Attempts      int      `json:"attempts"`
	Tools         []string `json:"tools,omitempty"`
	Fixes         []string `json:"fixes,omitempty"`
	SwitchKeyword string   `json:"switch_keyword,omitempty"`
	Message       string   `json:"message,omitempty"`
	Transient     bool     `json:"transient,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func jsonResult(res *install.Result) installJSON {
	out := installJSON{
		JSONResponse:  shared.NewJSONResponse("install", res.OK()),
		Service:       res.ServiceID,
		Status:        string(res.Status),
		Attempts:      res.Attempts,
		Tools:         res.Tools,
		SwitchKeyword: res.SwitchKeyword,
		Message:       res.Message,
		Transient:     res.Transient,
	}
	for _, f := range res.Fixes {
		out.Fixes = append(out.Fixes, string(f.Action))
	}
	if res.Err != nil {
		out.Error = mcp.FailureText(res.Err)
	}
	return out
}

func printResult(w io.Writer, res *install.Result) {
	for i, f := range res.Fixes {
		fmt.Fprintln(w, shared.RenderInfo(fmt.Sprintf("attempt %d: %s (%s)", i+1, f.Action, f.Reason)))
	}

	switch res.Status {
	case install.StatusRunning:
		fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s is running with %d tools", res.Record.DisplayName(), len(res.Tools))))
		for _, t := range res.Tools {
			fmt.Fprintf(w, "  %s %s\n", shared.SymbolInfo, t)
		}
	case install.StatusSwitch:
		fmt.Fprintln(w, shared.RenderWarn(res.Message))
		fmt.Fprintf(w, "  %s alou install %q\n", shared.RenderLabel("try:"), res.SwitchKeyword)
	default:
		fmt.Fprintln(w, shared.RenderError(fmt.Sprintf("%s: %s", res.ServiceID, shared.RenderState(string(res.Status)))))
		if res.Message != "" {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
		if res.Transient {
			fmt.Fprintf(w, "  %s the launch timed out; running the install again may succeed\n", shared.RenderLabel("hint:"))
		}
		if res.Err != nil && !shared.GetQuiet() {
			fmt.Fprintf(w, "\n%s\n%s\n", shared.RenderLabel("last error:"), mcp.FailureText(res.Err))
		}
	}
}
