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
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/registry"
)

func newListCommand() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered services",
		Example: `  # List everything
  alou service list

  # Only launchable search services
  alou service list --filter 'category == "search" && !placeholder'

  # Services tagged "files"
  alou service list --filter 'has(tags, "files")'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{Services: true})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			records, err := app.Registry.Filter(filter)
			if err != nil {
				return shared.NewExecutionError("invalid filter", err)
			}
			return printRecords(cmd.OutOrStdout(), "service list", records)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Boolean expression over id, title, description, command, args, tags, category, placeholder")
	return cmd
}

type recordJSON struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Category    string            `json:"category,omitempty"`
	Score       float64           `json:"score,omitempty"`
}

func toJSON(r registry.ServiceRecord) recordJSON {
	return recordJSON{
		ID:          r.ID,
		Title:       r.DisplayName(),
		Description: r.Description,
		Command:     r.Command,
		Args:        r.Args,
		Env:         registry.RedactedEnv(r.Env),
		Tags:        r.Tags,
		Category:    r.Category,
		Score:       r.SimilarityScore,
	}
}

func printRecords(w io.Writer, command string, records []registry.ServiceRecord) error {
	if shared.GetJSON() {
		resp := struct {
			shared.JSONResponse
			Services []recordJSON `json:"services"`
		}{JSONResponse: shared.NewJSONResponse(command, true), Services: []recordJSON{}}
		for _, r := range records {
			resp.Services = append(resp.Services, toJSON(r))
		}
		return shared.EmitJSON(w, resp)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No services found.")
		fmt.Fprintln(w, "\nTo add a service:")
		fmt.Fprintln(w, "  alou service add <id> --command <cmd>")
		return nil
	}

	fmt.Fprintf(w, "%-28s %-14s %s\n", "ID", "CATEGORY", "COMMAND")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, r := range records {
		command := strings.TrimSpace(r.Command + " " + strings.Join(r.Args, " "))
		if r.IsPlaceholder() {
			command = shared.RenderState("placeholder")
		}
		fmt.Fprintf(w, "%-28s %-14s %s\n", truncate(r.ID, 28), truncate(r.Category, 14), truncate(command, 60))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
