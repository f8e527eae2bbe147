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

// Package recovery turns a launch failure into a remediation action and
// applies it to the failing service record.
//
// Diagnosis runs cheap pattern checks first and only consults the
// advisory oracle when none match. Oracle output goes through
// ParseOracleResponse, so nothing unvalidated reaches the caller.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/registry"
)

// maxOracleFailureText bounds the failure text sent to the oracle.
const maxOracleFailureText = 800

var (
	apiKeyRegex       = regexp.MustCompile(`(?i)([A-Z0-9_]+_API_KEY)\s*environment variable\s*(?:is required|is not set|is missing)`)
	pythonModuleRegex = regexp.MustCompile(`(?i)ModuleNotFoundError: No module named '([^']+)'`)
	nodeModuleRegex   = regexp.MustCompile(`Cannot find module '([^']+)'`)
	nonKeyChars       = regexp.MustCompile(`[^A-Z0-9_]+`)
)

// keyGatedHints mark titles of providers that usually need an API key.
var keyGatedHints = []string{"map", "google", "search"}

// Request is what the oracle is asked about.
type Request struct {
	FailureText string
	Service     registry.ServiceRecord
}

// Oracle is the external advisor. It returns raw text expected to hold a
// JSON fix; the engine never trusts its shape.
type Oracle interface {
	Advise(ctx context.Context, req Request) (string, error)
}

// SecretSource supplies values for set_env. *secrets.Resolver satisfies it.
type SecretSource interface {
	Resolve(ctx context.Context, key string) (value, source string)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Oracle is consulted when no pattern matches. Nil means no fallback.
	Oracle Oracle

	// Secrets resolves set_env values. Nil uses the "demo" placeholder.
	Secrets SecretSource

	Logger *slog.Logger
}

// Engine diagnoses launch failures.
type Engine struct {
	oracle  Oracle
	secrets SecretSource
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		oracle:  cfg.Oracle,
		secrets: cfg.Secrets,
		logger:  log.WithComponent(logger, "recovery"),
		tracer:  otel.Tracer("github.com/tombee/alou/internal/recovery"),
	}
}

// Diagnose picks a remediation for failure. It never returns an error:
// when nothing applies the result is NoFix.
func (e *Engine) Diagnose(ctx context.Context, failure string, rec registry.ServiceRecord) Fix {
	ctx, span := e.tracer.Start(ctx, "recovery.diagnose",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("service.id", rec.ID)),
	)
	defer span.End()

	fix, ok := e.match(ctx, failure, rec)
	if !ok {
		fix = e.consult(ctx, failure, rec)
	}

	span.SetAttributes(
		attribute.String("recovery.action", string(fix.Action)),
		attribute.String("recovery.source", string(fix.Source)),
	)
	actionsTotal.WithLabelValues(string(fix.Action), string(fix.Source)).Inc()
	e.logger.Info("diagnosed launch failure",
		slog.String(log.ServerKey, rec.ID),
		slog.String(log.ActionKey, string(fix.Action)),
		slog.String("source", string(fix.Source)),
		slog.String("reason", fix.Reason))
	return fix
}

// match applies the deterministic checks in order; first match wins.
func (e *Engine) match(ctx context.Context, failure string, rec registry.ServiceRecord) (Fix, bool) {
	if m := apiKeyRegex.FindStringSubmatch(failure); m != nil {
		key := strings.ToUpper(m[1])
		return e.setEnv(ctx, key, fmt.Sprintf("server reports %s is missing", key)), true
	}

	if m := pythonModuleRegex.FindStringSubmatch(failure); m != nil {
		dep := strings.SplitN(m[1], ".", 2)[0]
		return Fix{
			Action:     ActionInstallDep,
			Dependency: dep,
			Ecosystem:  EcosystemPython,
			Reason:     fmt.Sprintf("python module %s is not installed", dep),
			Source:     SourcePattern,
		}, true
	}

	if m := nodeModuleRegex.FindStringSubmatch(failure); m != nil {
		if dep := nodePackage(m[1]); dep != "" {
			return Fix{
				Action:     ActionInstallDep,
				Dependency: dep,
				Ecosystem:  EcosystemNode,
				Reason:     fmt.Sprintf("node module %s is not installed", dep),
				Source:     SourcePattern,
			}, true
		}
	}

	title := strings.ToLower(rec.Title)
	if strings.Contains(strings.ToLower(failure), "connection closed") && containsAny(title, keyGatedHints) {
		key := derivedKey(title)
		if key != "" {
			return e.setEnv(ctx, key, fmt.Sprintf("connection closed and %q looks key-gated; guessing %s", rec.Title, key)), true
		}
	}

	return Fix{}, false
}

func (e *Engine) setEnv(ctx context.Context, key, reason string) Fix {
	value := "demo"
	if e.secrets != nil {
		value, _ = e.secrets.Resolve(ctx, key)
	}
	return Fix{
		Action:   ActionSetEnv,
		EnvKey:   key,
		EnvValue: value,
		Reason:   reason,
		Source:   SourcePattern,
	}
}

// consult asks the oracle. Oracle errors and unusable answers are NoFix.
func (e *Engine) consult(ctx context.Context, failure string, rec registry.ServiceRecord) Fix {
	if e.oracle == nil {
		return NoFix("no pattern matched and no advisor is configured")
	}

	raw, err := e.oracle.Advise(ctx, Request{
		FailureText: truncate(failure, maxOracleFailureText),
		Service:     rec,
	})
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("advisor request failed", slog.String(log.ServerKey, rec.ID), log.Error(err))
		return NoFix("advisor unavailable: " + err.Error())
	}

	fix := ParseOracleResponse(raw)
	if fix.Action == ActionSetEnv && fix.EnvValue == "" {
		fix.EnvValue = e.setEnv(ctx, fix.EnvKey, "").EnvValue
	}
	return fix
}

// nodePackage maps a require() specifier to the package to install.
// Relative and absolute paths yield "".
func nodePackage(spec string) string {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return ""
	}
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// derivedKey builds <FIRST WORD OF TITLE>_API_KEY.
func derivedKey(title string) string {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return ""
	}
	word := strings.Trim(nonKeyChars.ReplaceAllString(strings.ToUpper(fields[0]), "_"), "_")
	if word == "" {
		return ""
	}
	return word + "_API_KEY"
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
