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

package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/registry"
)

type fakeOracle struct {
	response string
	err      error
	calls    int
	last     Request
}

func (o *fakeOracle) Advise(ctx context.Context, req Request) (string, error) {
	o.calls++
	o.last = req
	return o.response, o.err
}

type fakeSecrets map[string]string

func (f fakeSecrets) Resolve(ctx context.Context, key string) (string, string) {
	if v, ok := f[key]; ok {
		return v, "env"
	}
	return "demo", "placeholder"
}

func newEngine(oracle Oracle) *Engine {
	cfg := EngineConfig{Secrets: fakeSecrets{"BRAVE_API_KEY": "real-key"}, Logger: log.Discard()}
	if oracle != nil {
		cfg.Oracle = oracle
	}
	return NewEngine(cfg)
}

func TestDiagnose_APIKeyNeverConsultsOracle(t *testing.T) {
	oracle := &fakeOracle{response: `{"action":"manual","reason":"x"}`}
	e := newEngine(oracle)

	fix := e.Diagnose(context.Background(), "BRAVE_API_KEY environment variable is required", registry.ServiceRecord{ID: "brave-search"})

	assert.Equal(t, ActionSetEnv, fix.Action)
	assert.Equal(t, "BRAVE_API_KEY", fix.EnvKey)
	assert.Equal(t, "real-key", fix.EnvValue)
	assert.Equal(t, SourcePattern, fix.Source)
	assert.Equal(t, 0, oracle.calls)
}

func TestDiagnose_Patterns(t *testing.T) {
	tests := []struct {
		name      string
		failure   string
		title     string
		action    Action
		envKey    string
		envValue  string
		dep       string
		ecosystem string
	}{
		{
			name:     "api key not set lowercase",
			failure:  "Error: tavily_api_key environment variable is not set",
			action:   ActionSetEnv,
			envKey:   "TAVILY_API_KEY",
			envValue: "demo",
		},
		{
			name:     "api key missing",
			failure:  "fatal: GITHUB_API_KEY environment variable is missing\nexit 1",
			action:   ActionSetEnv,
			envKey:   "GITHUB_API_KEY",
			envValue: "demo",
		},
		{
			name:      "python module",
			failure:   "Traceback...\nModuleNotFoundError: No module named 'httpx.auth'",
			action:    ActionInstallDep,
			dep:       "httpx",
			ecosystem: EcosystemPython,
		},
		{
			name:      "node scoped module",
			failure:   "Error: Cannot find module '@modelcontextprotocol/sdk/server/index.js'",
			action:    ActionInstallDep,
			dep:       "@modelcontextprotocol/sdk",
			ecosystem: EcosystemNode,
		},
		{
			name:     "connection closed on key-gated title",
			failure:  "MCP error -32000: Connection closed",
			title:    "Google Maps",
			action:   ActionSetEnv,
			envKey:   "GOOGLE_API_KEY",
			envValue: "demo",
		},
		{
			name:     "api key wins over module",
			failure:  "ModuleNotFoundError: No module named 'x'\nSERP_API_KEY environment variable is required",
			action:   ActionSetEnv,
			envKey:   "SERP_API_KEY",
			envValue: "demo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &fakeOracle{}
			fix := newEngine(oracle).Diagnose(context.Background(), tt.failure, registry.ServiceRecord{ID: "svc", Title: tt.title})

			assert.Equal(t, tt.action, fix.Action)
			assert.Equal(t, tt.envKey, fix.EnvKey)
			assert.Equal(t, tt.envValue, fix.EnvValue)
			assert.Equal(t, tt.dep, fix.Dependency)
			assert.Equal(t, tt.ecosystem, fix.Ecosystem)
			assert.Equal(t, 0, oracle.calls)
		})
	}
}

func TestDiagnose_ConnectionClosedWithoutHintGoesToOracle(t *testing.T) {
	oracle := &fakeOracle{response: "```json\n{\"action\":\"retry\",\"reason\":\"transient\"}\n```"}
	fix := newEngine(oracle).Diagnose(context.Background(), "Connection closed", registry.ServiceRecord{ID: "fs", Title: "Filesystem"})

	assert.Equal(t, 1, oracle.calls)
	assert.Equal(t, ActionRetry, fix.Action)
	assert.Equal(t, SourceOracle, fix.Source)
	assert.Equal(t, "fs", oracle.last.Service.ID)
}

func TestDiagnose_OracleSetEnvResolvesValue(t *testing.T) {
	oracle := &fakeOracle{response: `{"action":"set_env","envKey":"BRAVE_API_KEY","reason":"needs key"}`}
	fix := newEngine(oracle).Diagnose(context.Background(), "401 unauthorized", registry.ServiceRecord{ID: "brave"})

	require.Equal(t, ActionSetEnv, fix.Action)
	assert.Equal(t, "real-key", fix.EnvValue)
}

func TestDiagnose_OracleFailures(t *testing.T) {
	tests := []struct {
		name   string
		oracle Oracle
	}{
		{"no oracle", nil},
		{"oracle error", &fakeOracle{err: errors.New("rate limited")}},
		{"garbage", &fakeOracle{response: "I think you should reinstall"}},
		{"unknown action", &fakeOracle{response: `{"action":"reboot","reason":"x"}`}},
		{"manual", &fakeOracle{response: `{"action":"manual","reason":"needs a human"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := newEngine(tt.oracle).Diagnose(context.Background(), "segfault", registry.ServiceRecord{ID: "svc"})
			assert.Equal(t, ActionManual, fix.Action)
			assert.False(t, fix.Actionable())
			assert.NotEmpty(t, fix.Reason)
		})
	}
}

func TestDiagnose_TruncatesOracleInput(t *testing.T) {
	oracle := &fakeOracle{response: `{"action":"retry","reason":"x"}`}
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	newEngine(oracle).Diagnose(context.Background(), string(long), registry.ServiceRecord{ID: "svc"})
	assert.Len(t, oracle.last.FailureText, maxOracleFailureText)
}

func TestDerivedKey(t *testing.T) {
	assert.Equal(t, "GOOGLE_API_KEY", derivedKey("google maps"))
	assert.Equal(t, "BRAVE_SEARCH_API_KEY", derivedKey("brave-search server"))
	assert.Equal(t, "", derivedKey(""))
	assert.Equal(t, "", nodePackage("./local.js"))
	assert.Equal(t, "express", nodePackage("express/lib/router"))
}
