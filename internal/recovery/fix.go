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
	"encoding/json"
	"regexp"
	"strings"
)

// Action is a remediation kind.
type Action string

const (
	ActionSetEnv       Action = "set_env"
	ActionInstallDep   Action = "install_dep"
	ActionEditFile     Action = "edit_file"
	ActionSwitchServer Action = "switch_server"
	ActionRetry        Action = "retry"
	ActionManual       Action = "manual"
)

// Source records where a Fix came from.
type Source string

const (
	SourcePattern Source = "pattern"
	SourceOracle  Source = "oracle"
	SourceNone    Source = "none"
)

// Ecosystems accepted for install_dep.
const (
	EcosystemPython = "python"
	EcosystemNode   = "node"
)

// Fix is one remediation decision. A Fix whose Action is manual is the
// "no actionable fix" variant; see NoFix.
type Fix struct {
	Action Action `json:"action"`

	EnvKey   string `json:"envKey,omitempty"`
	EnvValue string `json:"envValue,omitempty"`

	Dependency string `json:"dependency,omitempty"`
	Ecosystem  string `json:"ecosystem,omitempty"`

	FilePath   string `json:"filePath,omitempty"`
	SearchText string `json:"searchText,omitempty"`
	// ReplaceText is nil when no replacement was given. An empty
	// replacement deletes SearchText.
	ReplaceText *string `json:"replaceText,omitempty"`
	InsertText  string  `json:"insertText,omitempty"`

	AltServerKeyword string `json:"altServerKeyword,omitempty"`

	Reason string `json:"reason"`
	Source Source `json:"-"`
}

// NoFix returns the "no actionable fix" variant with the given reason.
func NoFix(reason string) Fix {
	return Fix{Action: ActionManual, Reason: reason, Source: SourceNone}
}

// Actionable reports whether applying f may let a later launch succeed.
func (f Fix) Actionable() bool {
	switch f.Action {
	case ActionSetEnv, ActionInstallDep, ActionEditFile, ActionRetry:
		return true
	}
	return false
}

var envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Replace returns a pointer to text for use as ReplaceText.
func Replace(text string) *string { return &text }

func (f Fix) replaces() bool {
	return f.SearchText != "" && f.ReplaceText != nil
}

// validate checks the fields each action needs.
func (f Fix) validate() bool {
	switch f.Action {
	case ActionSetEnv:
		return envKeyRegex.MatchString(f.EnvKey)
	case ActionInstallDep:
		return strings.TrimSpace(f.Dependency) != "" && !strings.ContainsAny(f.Dependency, " \t\n;&|`$")
	case ActionEditFile:
		return f.FilePath != "" && (f.replaces() || f.InsertText != "")
	case ActionSwitchServer:
		return strings.TrimSpace(f.AltServerKeyword) != ""
	case ActionRetry, ActionManual:
		return true
	}
	return false
}

// ParseOracleResponse turns free-form oracle output into a Fix. Markdown
// fences and surrounding prose are tolerated; anything that is not a
// single JSON object with a known action and the fields that action
// needs becomes NoFix.
func ParseOracleResponse(raw string) Fix {
	body := strings.TrimSpace(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return NoFix("advisor response was not JSON")
	}

	var fix Fix
	dec := json.NewDecoder(strings.NewReader(body[start : end+1]))
	if err := dec.Decode(&fix); err != nil {
		return NoFix("advisor response was malformed")
	}
	fix.Action = Action(strings.ToLower(strings.TrimSpace(string(fix.Action))))
	fix.Source = SourceOracle

	if !fix.validate() {
		return NoFix("advisor proposed an unusable action")
	}
	if fix.Action == ActionManual {
		if fix.Reason == "" {
			fix.Reason = "advisor recommends manual resolution"
		}
		return fix
	}
	if fix.Action == ActionInstallDep && fix.Ecosystem == "" {
		fix.Ecosystem = EcosystemPython
	}
	return fix
}
