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

import "testing"

func TestParseOracleResponse(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		action Action
		check  func(t *testing.T, f Fix)
	}{
		{
			name:   "plain set_env",
			raw:    `{"action":"set_env","envKey":"BRAVE_API_KEY","envValue":"abc","reason":"key"}`,
			action: ActionSetEnv,
			check: func(t *testing.T, f Fix) {
				if f.EnvKey != "BRAVE_API_KEY" || f.EnvValue != "abc" {
					t.Errorf("env = %s=%s", f.EnvKey, f.EnvValue)
				}
			},
		},
		{
			name:   "fenced with prose",
			raw:    "Here is the fix:\n```json\n{\"action\": \"INSTALL_DEP\", \"dependency\": \"requests\", \"reason\": \"missing\"}\n```",
			action: ActionInstallDep,
			check: func(t *testing.T, f Fix) {
				if f.Dependency != "requests" || f.Ecosystem != EcosystemPython {
					t.Errorf("dep = %s (%s)", f.Dependency, f.Ecosystem)
				}
			},
		},
		{
			name:   "edit_file replace",
			raw:    `{"action":"edit_file","filePath":"config.json","searchText":"8080","replaceText":"9090","reason":"port"}`,
			action: ActionEditFile,
		},
		{
			name:   "edit_file empty replacement",
			raw:    `{"action":"edit_file","filePath":".env","searchText":"DEBUG=1","replaceText":"","reason":"remove"}`,
			action: ActionEditFile,
			check: func(t *testing.T, f Fix) {
				if f.ReplaceText == nil || *f.ReplaceText != "" {
					t.Errorf("ReplaceText = %v, want empty replacement", f.ReplaceText)
				}
			},
		},
		{
			name:   "edit_file append",
			raw:    `{"action":"edit_file","filePath":".env","insertText":"DEBUG=1","reason":"debug"}`,
			action: ActionEditFile,
		},
		{
			name:   "switch_server",
			raw:    `{"action":"switch_server","altServerKeyword":"web search","reason":"deprecated"}`,
			action: ActionSwitchServer,
		},
		{name: "retry", raw: `{"action":"retry","reason":"flaky"}`, action: ActionRetry},
		{name: "manual", raw: `{"action":"manual","reason":"license"}`, action: ActionManual},
		{name: "empty", raw: ``, action: ActionManual},
		{name: "not json", raw: `set the env var`, action: ActionManual},
		{name: "truncated", raw: `{"action":"retry"`, action: ActionManual},
		{name: "unknown action", raw: `{"action":"sudo","reason":"x"}`, action: ActionManual},
		{name: "set_env without key", raw: `{"action":"set_env","reason":"x"}`, action: ActionManual},
		{name: "set_env bad key", raw: `{"action":"set_env","envKey":"A B","reason":"x"}`, action: ActionManual},
		{name: "install_dep shell injection", raw: `{"action":"install_dep","dependency":"x; rm -rf /","reason":"x"}`, action: ActionManual},
		{name: "edit_file search without replacement", raw: `{"action":"edit_file","filePath":"a.txt","searchText":"x","reason":"x"}`, action: ActionManual},
		{name: "edit_file missing text", raw: `{"action":"edit_file","filePath":"a.txt","reason":"x"}`, action: ActionManual},
		{name: "switch without keyword", raw: `{"action":"switch_server","reason":"x"}`, action: ActionManual},
		{name: "wrong field type", raw: `{"action":"set_env","envKey":42}`, action: ActionManual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOracleResponse(tt.raw)
			if got.Action != tt.action {
				t.Fatalf("Action = %q, want %q (reason %q)", got.Action, tt.action, got.Reason)
			}
			if got.Reason == "" {
				t.Error("Reason should never be empty")
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestFix_Actionable(t *testing.T) {
	for _, a := range []Action{ActionSetEnv, ActionInstallDep, ActionEditFile, ActionRetry} {
		if !(Fix{Action: a}).Actionable() {
			t.Errorf("%s should be actionable", a)
		}
	}
	for _, a := range []Action{ActionSwitchServer, ActionManual, ""} {
		if (Fix{Action: a}).Actionable() {
			t.Errorf("%q should not be actionable", a)
		}
	}
}
