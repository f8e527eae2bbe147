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

// Package memory implements the alou memory command group.
package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/memory"
)

const defaultLimit = 5

// NewCommand creates the memory command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Store and search memories",
		Long: `Memories are deduplicated by content hash. Installation outcomes and
registry changes are recorded here automatically.`,
	}
	cmd.AddCommand(
		newStoreCommand(),
		newRetrieveCommand(),
		newTagCommand(),
		newRecallCommand(),
		newDeleteCommand(),
		newHealthCommand(),
		newStatsCommand(),
	)
	return cmd
}

// withStore opens the content store for fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *memory.Store, out io.Writer) error) error {
	app, err := shared.OpenApp(cmd.Context(), shared.AppOptions{})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return fn(cmd.Context(), app.Memory, cmd.OutOrStdout())
}

func newStoreCommand() *cobra.Command {
	var (
		tags    string
		memType string
	)
	cmd := &cobra.Command{
		Use:   "store <content...>",
		Short: "Store a memory",
		Example: `  alou memory store "brave-search needs BRAVE_API_KEY" --tags services,notes
  alou memory store "standup moved to 10am" --type note`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *memory.Store, out io.Writer) error {
				id, err := store.Store(ctx, strings.Join(args, " "), memory.Metadata{
					Tags: memory.SplitTags(tags),
					Type: memType,
				})
				if err != nil {
					return shared.NewExecutionError("failed to store memory", err)
				}
				if shared.GetJSON() {
					return shared.EmitJSON(out, map[string]any{"success": true, "id": id})
				}
				fmt.Fprintln(out, shared.RenderOK("stored "+id))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tags, "tags", "", "Comma separated tags")
	cmd.Flags().StringVar(&memType, "type", "", "Memory type")
	return cmd
}

func newRetrieveCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "retrieve <query...>",
		Aliases: []string{"search"},
		Short:   "Find memories containing the query",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *memory.Store, out io.Writer) error {
				return printItems(out, store.Retrieve(strings.Join(args, " "), limit))
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "Maximum results")
	return cmd
}

func newTagCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tag <tags...>",
		Short: "Find memories carrying any of the tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tags []string
			for _, a := range args {
				tags = append(tags, memory.SplitTags(a)...)
			}
			return withStore(cmd, func(ctx context.Context, store *memory.Store, out io.Writer) error {
				return printItems(out, store.SearchByTag(tags, limit))
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "Maximum results")
	return cmd
}

func newRecallCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recall <query...>",
		Short: "Find memories by time expression",
		Example: `  alou memory recall yesterday
  alou memory recall install last week
  alou memory recall 3 days ago`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *memory.Store, out io.Writer) error {
				return printItems(out, store.Recall(strings.Join(args, " "), limit))
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "Maximum results")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <content-hash>",
		Short: "Delete a memory by content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *memory.Store, out io.Writer) error {
				if err := store.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(out, shared.RenderOK("deleted "+args[0]))
				return nil
			})
		},
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the memory store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *memory.Store, out io.Writer) error {
				h := store.Health()
				if shared.GetJSON() {
					return shared.EmitJSON(out, h)
				}
				line := fmt.Sprintf("%s (%s, %d memories, %d bytes) %s", h.Status, h.Backend, h.Count, h.SizeBytes, h.Path)
				if h.Status != "healthy" {
					fmt.Fprintln(out, shared.RenderWarn(line+": "+h.Error))
					return nil
				}
				fmt.Fprintln(out, shared.RenderOK(line))
				return nil
			})
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *memory.Store, out io.Writer) error {
				st := store.Stats()
				if shared.GetJSON() {
					return shared.EmitJSON(out, st)
				}
				fmt.Fprintf(out, "%s %d\n", shared.RenderLabel("total:"), st.Total)
				fmt.Fprintf(out, "%s %d\n", shared.RenderLabel("unique tags:"), st.UniqueTags)
				fmt.Fprintf(out, "%s %d\n", shared.RenderLabel("last 7 days:"), st.RecentActivity)
				for typ, n := range st.Types {
					fmt.Fprintf(out, "  %s %s: %d\n", shared.SymbolInfo, typ, n)
				}
				return nil
			})
		},
	}
}

func printItems(w io.Writer, items []memory.Item) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, map[string]any{"memories": items})
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No memories found.")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(w, "%s %s\n", shared.Header.Render(item.ContentHash[:min(12, len(item.ContentHash))]), shared.RenderLabel(item.Time().Format(time.DateTime)))
		fmt.Fprintf(w, "  %s\n", item.Content)
		if len(item.Metadata.Tags) > 0 {
			fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("tags:"), strings.Join(item.Metadata.Tags, ", "))
		}
	}
	return nil
}
