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

func newFindCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "find <words...>",
		Short: "Find the best registered service for a description",
		Example: `  alou service find web search
  alou service find --all files`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{Services: true})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			words := strings.Fields(strings.Join(args, " "))
			if all {
				matches := app.Registry.Rank(words)
				records := make([]registry.ServiceRecord, 0, len(matches))
				for _, m := range matches {
					records = append(records, m.Record)
				}
				return printRecords(cmd.OutOrStdout(), "service find", records)
			}

			rec, ok := app.Registry.Search(words)
			if !ok {
				return shared.NewNotFoundError(fmt.Sprintf("no service matches %q", strings.Join(args, " ")), nil)
			}
			return printRecords(cmd.OutOrStdout(), "service find", []registry.ServiceRecord{rec})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Show every match, best first")
	return cmd
}
