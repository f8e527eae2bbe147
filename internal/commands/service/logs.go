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

	"github.com/spf13/cobra"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/mcp"
)

func newLogsCommand() *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Launch a service and show its stderr",
		Long: `Logs launches the service once, without remediation, and prints what it
wrote to stderr along with the start result. Use it to see why a service
fails to start.`,
		Args: cobra.ExactArgs(1),
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

			out := cmd.OutOrStdout()
			startErr := app.Supervisor.Start(cmd.Context(), rec)
			for _, entry := range app.Supervisor.Logs(id, lines) {
				fmt.Fprintf(out, "%s %s\n", shared.RenderLabel(entry.Timestamp.Format("15:04:05.000")), entry.Message)
			}
			if startErr != nil {
				fmt.Fprintln(out, shared.RenderError(mcp.FailureText(startErr)))
				return shared.NewExecutionError(fmt.Sprintf("%s did not start", id), nil)
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s started", id)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of lines to show")
	return cmd
}
