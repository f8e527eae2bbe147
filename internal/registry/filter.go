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
	"strings"

	"github.com/expr-lang/expr"

	alouerrors "github.com/tombee/alou/pkg/errors"
)

// filterEnv is the expression environment for one record.
func filterEnv(r ServiceRecord) map[string]any {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	args := r.Args
	if args == nil {
		args = []string{}
	}
	return map[string]any{
		"id":          r.ID,
		"title":       r.DisplayName(),
		"description": r.Description,
		"command":     r.Command,
		"args":        args,
		"tags":        tags,
		"category":    r.Category,
		"placeholder": r.IsPlaceholder(),
		"has": func(list []string, want string) bool {
			for _, v := range list {
				if strings.EqualFold(v, want) {
					return true
				}
			}
			return false
		},
	}
}

// Filter returns the records for which the boolean expression holds, in
// registry order. An empty expression matches everything.
//
//	category == "search" && !placeholder
//	has(tags, "files") || id startsWith "@modelcontextprotocol"
func (r *Registry) Filter(expression string) ([]ServiceRecord, error) {
	records := r.List()
	if strings.TrimSpace(expression) == "" {
		return records, nil
	}

	program, err := expr.Compile(expression,
		expr.Env(filterEnv(ServiceRecord{})),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &alouerrors.ValidationError{
			Field:      "filter",
			Message:    fmt.Sprintf("failed to compile filter: %s", err.Error()),
			Suggestion: "fields: id, title, description, command, args, tags, category, placeholder",
		}
	}

	var out []ServiceRecord
	for _, rec := range records {
		result, err := expr.Run(program, filterEnv(rec))
		if err != nil {
			return nil, &alouerrors.ValidationError{
				Field:   "filter",
				Message: fmt.Sprintf("filter failed on %s: %s", rec.ID, err.Error()),
			}
		}
		if ok, _ := result.(bool); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
