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

package registry

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// ServiceRecord is the identity and launch contract for one tool server.
type ServiceRecord struct {
	ID          string            `json:"id"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Category    string            `json:"category,omitempty"`

	// SimilarityScore is the relevance from the last discovery query.
	// It is never persisted.
	SimilarityScore float64 `json:"-"`
}

// IDRegex validates service ids. Ids are used as file keys and log fields,
// so whitespace and path separators other than '/' (npm scopes) are refused.
var IDRegex = regexp.MustCompile(`^[a-zA-Z0-9@][a-zA-Z0-9._@/-]{0,127}$`)

var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsPlaceholder reports whether the record has no launch command. Such
// records describe a service that still has to be set up by hand.
func (r ServiceRecord) IsPlaceholder() bool {
	return strings.TrimSpace(r.Command) == ""
}

// DefaultCategory is used wherever a record has no category.
const DefaultCategory = "general"

// CategoryOrDefault returns the category, falling back to DefaultCategory.
func (r ServiceRecord) CategoryOrDefault() string {
	if r.Category != "" {
		return r.Category
	}
	return DefaultCategory
}

// DisplayName returns the title, falling back to the id.
func (r ServiceRecord) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}

// Clone returns a deep copy.
func (r ServiceRecord) Clone() ServiceRecord {
	r.Args = slices.Clone(r.Args)
	r.Env = maps.Clone(r.Env)
	r.Tags = slices.Clone(r.Tags)
	return r
}

// Validate checks the id and env keys.
func (r ServiceRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("service id is required")
	}
	if !IDRegex.MatchString(r.ID) {
		return fmt.Errorf("invalid service id %q: must start with a letter, digit or '@' and contain no whitespace", r.ID)
	}
	for key := range r.Env {
		if !envKeyRegex.MatchString(key) {
			return fmt.Errorf("service %q: invalid environment variable key %q", r.ID, key)
		}
	}
	return nil
}

// EnvList returns Env as sorted KEY=VALUE pairs.
func (r ServiceRecord) EnvList() []string {
	keys := slices.Sorted(maps.Keys(r.Env))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+r.Env[k])
	}
	return out
}

// sensitiveKeyPatterns are patterns that indicate a sensitive value.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH",
}

// IsSensitiveEnvKey returns true if the key appears to contain sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// RedactedEnv returns a copy of env with sensitive values masked.
func RedactedEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if IsSensitiveEnvKey(k) {
			v = "***REDACTED***"
		}
		out[k] = v
	}
	return out
}
