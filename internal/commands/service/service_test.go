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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/registry"
)

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"BRAVE_API_KEY=abc", "EMPTY=", "URL=http://x?a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"BRAVE_API_KEY": "abc", "EMPTY": "", "URL": "http://x?a=b"}, env)

	env, err = parseEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, env)

	_, err = parseEnv([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseEnv([]string{"=value"})
	assert.Error(t, err)
}

func TestPrintRecords(t *testing.T) {
	records := []registry.ServiceRecord{
		{ID: "brave-search", Command: "npx", Args: []string{"-y", "brave"}, Category: "search", Env: map[string]string{"BRAVE_API_KEY": "secret"}},
		{ID: "notion", Category: "productivity"},
	}

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, "service list", records))
	out := buf.String()
	assert.Contains(t, out, "brave-search")
	assert.Contains(t, out, "npx -y brave")
	assert.Contains(t, out, "placeholder")

	buf.Reset()
	require.NoError(t, printRecords(&buf, "service list", nil))
	assert.Contains(t, buf.String(), "No services found.")
}

func TestPrintRecords_JSONRedactsSecrets(t *testing.T) {
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, "service list", []registry.ServiceRecord{
		{ID: "brave-search", Command: "npx", Env: map[string]string{"BRAVE_API_KEY": "secret"}},
	}))
	assert.Contains(t, buf.String(), `"services"`)
	assert.NotContains(t, buf.String(), `"secret"`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestCommandTree(t *testing.T) {
	cmd := NewCommand()
	for _, name := range []string{"list", "find", "add", "remove", "import", "logs"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
