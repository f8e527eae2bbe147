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

package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Item is an immutable fact record. Items are never updated in place; they
// are created by Store and removed by Delete.
type Item struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Metadata    Metadata `json:"metadata"`
	Timestamp   int64    `json:"timestamp"`
	ContentHash string   `json:"content_hash"`
}

// Time returns the creation instant.
func (i Item) Time() time.Time {
	return time.UnixMilli(i.Timestamp)
}

// clone returns a deep copy so callers cannot mutate stored state.
func (i Item) clone() Item {
	i.Metadata = i.Metadata.clone()
	return i
}

// Metadata carries tags, a type and any number of open fields. It encodes as
// a flat JSON object: {"tags": [...], "type": "...", "service_id": ...}.
type Metadata struct {
	Tags   []string
	Type   string
	Fields map[string]any
}

// Field returns an open field value as a string, or "" if absent.
func (m Metadata) Field(key string) string {
	v, ok := m.Fields[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (m Metadata) clone() Metadata {
	return Metadata{
		Tags:   slices.Clone(m.Tags),
		Type:   m.Type,
		Fields: maps.Clone(m.Fields),
	}
}

// MarshalJSON flattens Fields next to tags and type.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		out[k] = v
	}
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	out["tags"] = tags
	if m.Type != "" {
		out["type"] = m.Type
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts tags either as an array or a comma separated string.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case "tags":
			m.Tags = toStrings(v)
		case "type":
			if s, ok := v.(string); ok {
				m.Type = s
			}
		default:
			if m.Fields == nil {
				m.Fields = make(map[string]any)
			}
			m.Fields[k] = v
		}
	}
	return nil
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return slices.Clone(t)
	case string:
		return SplitTags(t)
	}
	return nil
}

// HashContent returns the dedup key for content: the lowercase hex SHA-256.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
