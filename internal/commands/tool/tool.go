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

// Package tool implements the call and tools commands.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/alou/internal/commands/shared"
)

// NewCallCommand creates the call command.
func NewCallCommand() *cobra.Command {
	var rawArgs string

	cmd := &cobra.Command{
		Use:   "call <service> <tool>",
		Short: "Call a tool, starting the service if needed",
		Example: `  alou call echo echo --args '{"text":"hello"}'
  alou call brave-search brave_web_search --args '{"query":"golang"}' --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseArgs(rawArgs)
			if err != nil {
				return err
			}

			app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{Services: true})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			resp, err := app.Supervisor.Call(cmd.Context(), args[0], args[1], toolArgs)
			if err != nil {
				return shared.NewExecutionError(fmt.Sprintf("call %s/%s failed", args[0], args[1]), err)
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				if err := shared.EmitJSON(out, resp); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, resp.Text())
			}
			if resp.IsError {
				return shared.NewExecutionError(fmt.Sprintf("tool %s reported an error", args[1]), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rawArgs, "args", "", "Tool arguments as a JSON object")
	return cmd
}

func parseArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, shared.NewExecutionError("--args must be a JSON object", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// NewToolsCommand creates the tools command.
func NewToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools <service>",
		Short: "List the tools a service exposes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{Services: true})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			id := args[0]
			rec, ok := app.Registry.FindByID(id)
			if !ok {
				return shared.NewNotFoundError(fmt.Sprintf("service %q not found", id), nil)
			}
			if err := app.Supervisor.Start(cmd.Context(), rec); err != nil {
				return shared.NewExecutionError(fmt.Sprintf("%s did not start", id), err)
			}
			tools, err := app.Supervisor.Tools(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, tools)
			}
			for _, t := range tools {
				fmt.Fprintf(out, "%s  %s\n", shared.Bold.Render(t.Name), shared.RenderLabel(t.Description))
			}
			return nil
		},
	}
}
