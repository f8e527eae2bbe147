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
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	alouerrors "github.com/tombee/alou/pkg/errors"
)

type knownService struct {
	description string
	tags        []string
}

// knownServices fills in descriptions and tags for common launch entries
// that carry neither.
var knownServices = map[string]knownService{
	"filesystem": {
		description: "File system operations - browse, read, write, and manage files and directories",
		tags:        []string{"file", "directory", "filesystem", "storage"},
	},
	"browser": {
		description: "Web browser automation - navigate pages, interact with elements, take screenshots",
		tags:        []string{"browser", "web", "automation", "scraping"},
	},
	"fetch": {
		description: "HTTP client - make web requests, download content, interact with APIs",
		tags:        []string{"http", "api", "web", "fetch"},
	},
}

var numericSuffix = regexp.MustCompile(`-\d+$`)

var titleCaser = cases.Title(language.English)

// TitleFromID derives a display title: "brave-search" -> "Brave Search".
func TitleFromID(id string) string {
	return titleCaser.String(strings.ReplaceAll(id, "-", " "))
}

// normalizeImported fills blank fields on an imported record.
func normalizeImported(rec ServiceRecord) ServiceRecord {
	known, ok := knownServices[rec.ID]
	if !ok {
		known, ok = knownServices[numericSuffix.ReplaceAllString(strings.TrimPrefix(rec.ID, "custom-"), "")]
	}

	if rec.Title == "" {
		rec.Title = TitleFromID(rec.ID)
	}
	if rec.Description == "" {
		if ok {
			rec.Description = known.description
		} else {
			rec.Description = "MCP Server: " + rec.ID
		}
	}
	if len(rec.Tags) == 0 && ok {
		rec.Tags = append([]string(nil), known.tags...)
	}
	if rec.Category == "" {
		rec.Category = DefaultCategory
	}
	return rec
}

// Import upserts every server from an external launch file (same format as
// the registry file) and returns how many were imported. Invalid entries
// are skipped.
func (r *Registry) Import(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &alouerrors.StorageError{Store: "registry", Op: "import", Path: path, Cause: err}
	}

	records, err := decodeServers(data)
	if err != nil {
		return 0, &alouerrors.StorageError{Store: "registry", Op: "import", Path: path, Cause: err}
	}

	count := 0
	for _, rec := range records {
		rec = normalizeImported(rec)
		if err := rec.Validate(); err != nil {
			r.logger.Warn("skipping imported service", "error", err)
			continue
		}
		if err := r.Upsert(ctx, rec); err != nil {
			return count, fmt.Errorf("import %s: %w", rec.ID, err)
		}
		count++
	}
	return count, nil
}
