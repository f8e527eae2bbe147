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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "" {
		t.Errorf("expected default format to be auto-detected, got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		envVars    map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:      "defaults when no env vars",
			envVars:   map[string]string{},
			wantLevel: "info",
		},
		{
			name:      "LOG_LEVEL=DEBUG (case insensitive)",
			envVars:   map[string]string{"LOG_LEVEL": "DEBUG"},
			wantLevel: "debug",
		},
		{
			name:      "ALOU_LOG_LEVEL wins over LOG_LEVEL",
			envVars:   map[string]string{"LOG_LEVEL": "error", "ALOU_LOG_LEVEL": "warn"},
			wantLevel: "warn",
		},
		{
			name:       "ALOU_DEBUG enables debug and source",
			envVars:    map[string]string{"ALOU_DEBUG": "1", "ALOU_LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantSource: true,
		},
		{
			name:       "LOG_FORMAT=text",
			envVars:    map[string]string{"LOG_FORMAT": "text"},
			wantLevel:  "info",
			wantFormat: FormatText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"ALOU_DEBUG", "ALOU_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()
			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.wantLevel)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.wantFormat)
			}
			if cfg.AddSource != tt.wantSource {
				t.Errorf("AddSource = %v, want %v", cfg.AddSource, tt.wantSource)
			}
		})
	}
}

func TestNew_JSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Output: &buf})

	logger.Info("service started", slog.String(ServerKey, "echo"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output for a non-terminal writer, got %q: %v", buf.String(), err)
	}
	if entry[ServerKey] != "echo" {
		t.Errorf("server field = %v, want echo", entry[ServerKey])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be written")
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	Trace(New(&Config{Level: "trace", Format: FormatText, Output: &buf}), "stderr line", slog.String("line", "boot"))
	if !strings.Contains(buf.String(), "stderr line") {
		t.Errorf("trace message missing: %q", buf.String())
	}

	buf.Reset()
	Trace(New(&Config{Level: "debug", Format: FormatText, Output: &buf}), "stderr line")
	if buf.Len() != 0 {
		t.Errorf("trace should be filtered at debug level, got %q", buf.String())
	}
}

func TestToolCallMiddleware(t *testing.T) {
	var buf bytes.Buffer
	mw := NewToolCallMiddleware(New(&Config{Level: "debug", Format: FormatText, Output: &buf}))

	boom := errors.New("boom")
	err := mw.Handle(ToolCall{Tool: "store_memory"}, func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Handle should return handler error, got %v", err)
	}
	if !strings.Contains(buf.String(), "tool call failed") {
		t.Errorf("expected failure log, got %q", buf.String())
	}

	buf.Reset()
	if err := mw.Handle(ToolCall{Tool: "get_stats"}, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "tool call completed") {
		t.Errorf("expected completion log, got %q", buf.String())
	}
}

func TestSanitizeSecret(t *testing.T) {
	if got := SanitizeSecret("sk-123456"); got != "[REDACTED]" {
		t.Errorf("SanitizeSecret() = %q", got)
	}
}
