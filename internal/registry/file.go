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
	"bytes"
	"encoding/json"
	"fmt"
)

// fileEntry is one value under "mcpServers". Field names are the launch
// contract shared with hand-edited files and must not change.
type fileEntry struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Category    string            `json:"category,omitempty"`
}

func entryFor(r ServiceRecord) fileEntry {
	return fileEntry{
		Title:       r.Title,
		Description: r.Description,
		Command:     r.Command,
		Args:        r.Args,
		Env:         r.Env,
		Cwd:         r.Cwd,
		Tags:        r.Tags,
		Category:    r.Category,
	}
}

func (e fileEntry) record(id string) ServiceRecord {
	return ServiceRecord{
		ID:          id,
		Title:       e.Title,
		Description: e.Description,
		Command:     e.Command,
		Args:        e.Args,
		Env:         e.Env,
		Cwd:         e.Cwd,
		Tags:        e.Tags,
		Category:    e.Category,
	}
}

// decodeServers parses {"mcpServers": {id: entry, ...}} keeping key order.
// A top-level array of records with an "id" field is also accepted.
func decodeServers(data []byte) ([]ServiceRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var records []ServiceRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var records []ServiceRecord
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		if key != "mcpServers" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("mcpServers: %w", err)
		}
		for dec.More() {
			id, err := stringToken(dec)
			if err != nil {
				return nil, err
			}
			var entry fileEntry
			if err := dec.Decode(&entry); err != nil {
				return nil, fmt.Errorf("mcpServers.%s: %w", id, err)
			}
			records = append(records, entry.record(id))
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}
	return records, expectDelim(dec, '}')
}

// encodeServers writes records in order under "mcpServers".
func encodeServers(records []ServiceRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n  \"mcpServers\": {")
	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.ID)
		if err != nil {
			return nil, err
		}
		value, err := json.MarshalIndent(entryFor(r), "    ", "  ")
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", r.ID, err)
		}
		buf.WriteString("\n    ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
	}
	if len(records) > 0 {
		buf.WriteString("\n  ")
	}
	buf.WriteString("}\n}\n")
	return buf.Bytes(), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}
