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

// Package secret implements the secret command group. Values stored here
// are what set_env remediation picks up before falling back to "demo".
package secret

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/secrets"
)

// NewCommand creates the secret command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage values used for missing environment variables",
		Long: `Manage the values alou injects when a service fails for a missing
environment variable such as BRAVE_API_KEY.

Lookup order: process environment, configured .env files, OS keychain.
Only the keychain is writable.`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeleteCommand())
	return cmd
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <KEY> [value]",
		Short: "Store a value in the keychain",
		Example: `  alou secret set BRAVE_API_KEY
  echo "$KEY" | alou secret set BRAVE_API_KEY`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := validateKey(key); err != nil {
				return err
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				v, err := readValue(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return shared.NewExecutionError("failed to read secret value", err)
				}
				value = v
			}
			if value == "" {
				return shared.NewExecutionError("secret value cannot be empty", nil)
			}

			resolver, err := openResolver()
			if err != nil {
				return err
			}
			name, err := setSecret(cmd.Context(), resolver, key, value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("stored %s in %s", key, name)))
			return nil
		},
	}
}

func newGetCommand() *cobra.Command {
	var unmask bool

	cmd := &cobra.Command{
		Use:   "get <KEY>",
		Short: "Show where a value resolves from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := openResolver()
			if err != nil {
				return err
			}
			value, source, err := resolver.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return shared.NewNotFoundError(fmt.Sprintf("%s is not set; set_env would use %q", args[0], secrets.DefaultPlaceholder), err)
				}
				return shared.NewExecutionError("secret lookup failed", err)
			}

			out := cmd.OutOrStdout()
			if !unmask {
				value = maskSecret(value)
			}
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]string{"key": args[0], "source": source, "value": value})
			}
			fmt.Fprintf(out, "%s  %s  %s\n", args[0], value, shared.RenderLabel("("+source+")"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unmask, "unmask", false, "Show the full value")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <KEY>",
		Short: "Remove a value from the keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := openResolver()
			if err != nil {
				return err
			}
			if err := deleteSecret(cmd.Context(), resolver, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("deleted "+args[0]))
			return nil
		},
	}
}

func openResolver() (*secrets.Resolver, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, err
	}
	return shared.NewSecretResolver(cfg, shared.NewLogger(cfg)), nil
}

func setSecret(ctx context.Context, r *secrets.Resolver, key, value string) (string, error) {
	w, ok := r.Writable()
	if !ok {
		return "", shared.NewConfigError("no writable secret backend; enable secrets.keychain in the config", nil)
	}
	if err := w.Set(ctx, key, value); err != nil {
		return "", shared.NewExecutionError(fmt.Sprintf("failed to store %s", key), err)
	}
	return w.Name(), nil
}

func deleteSecret(ctx context.Context, r *secrets.Resolver, key string) error {
	w, ok := r.Writable()
	if !ok {
		return shared.NewConfigError("no writable secret backend; enable secrets.keychain in the config", nil)
	}
	if err := w.Delete(ctx, key); err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return shared.NewNotFoundError(fmt.Sprintf("%s is not stored in %s", key, w.Name()), err)
		}
		return shared.NewExecutionError(fmt.Sprintf("failed to delete %s", key), err)
	}
	return nil
}

// readValue reads a piped value, or prompts with hidden input on a terminal.
func readValue(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Enter value (hidden): ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func validateKey(key string) error {
	if key == "" {
		return shared.NewExecutionError("secret key cannot be empty", nil)
	}
	if strings.ContainsAny(key, " =\t\n") {
		return shared.NewExecutionError(fmt.Sprintf("invalid key %q: environment variable names cannot contain spaces or '='", key), nil)
	}
	return nil
}
