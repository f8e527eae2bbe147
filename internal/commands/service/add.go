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

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/registry"
)

func newAddCommand() *cobra.Command {
	var (
		rec  registry.ServiceRecord
		env  []string
		tags []string
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add or replace a service record",
		Example: `  alou service add brave-search --command npx --arg -y \
    --arg @modelcontextprotocol/server-brave-search --category search

  # Placeholder with no launch command
  alou service add notion --title Notion --category productivity`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.ID = args[0]
			rec.Tags = tags
			parsed, err := parseEnv(env)
			if err != nil {
				return err
			}
			rec.Env = parsed

			app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{Services: true})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if err := app.Registry.Upsert(cmd.Context(), rec); err != nil {
				return shared.NewExecutionError("failed to save service", err)
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Service recordJSON `json:"service"`
				}{shared.NewJSONResponse("service add", true), toJSON(rec)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("saved %s", rec.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&rec.Command, "command", "", "Executable to launch")
	cmd.Flags().StringArrayVar(&rec.Args, "arg", nil, "Argument (repeatable)")
	cmd.Flags().StringArrayVar(&env, "env", nil, "Environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&rec.Cwd, "cwd", "", "Working directory")
	cmd.Flags().StringVar(&rec.Title, "title", "", "Display title")
	cmd.Flags().StringVar(&rec.Description, "description", "", "Description")
	cmd.Flags().StringVar(&rec.Category, "category", "", "Category")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag (repeatable)")

	return cmd
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, shared.NewExecutionError(fmt.Sprintf("invalid --env %q, expected KEY=VALUE", p), nil)
		}
		env[key] = value
	}
	return env, nil
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a service record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{Services: true})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if err := app.Registry.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("removed %s", args[0])))
			return nil
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import [path]",
		Short: "Import services from an mcpServers launch file",
		Long: `Import merges every server in a {"mcpServers": {...}} launch file into the
registry. Titles are derived from ids and well-known servers get default
tags. The default path is mcpServers.user.json in the config directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{Services: true})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			path := app.Config.Registry.ImportPath
			if len(args) == 1 {
				path = args[0]
			}
			n, err := app.Registry.Import(cmd.Context(), path)
			if err != nil {
				return shared.NewExecutionError("import failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("imported %d services from %s", n, path)))
			return nil
		},
	}
}
