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

// Package advisor adapts a hosted language model to the recovery
// engine's Oracle interface.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/tombee/alou/internal/config"
	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/recovery"
)

const (
	DefaultModel             = "claude-haiku-4-5"
	DefaultMaxTokens         = 512
	DefaultRequestsPerMinute = 20
	DefaultTimeout           = 30 * time.Second
)

// ErrNoAPIKey is returned when the anthropic provider has no key.
var ErrNoAPIKey = errors.New("advisor API key is not set")

// MessageCreator is the subset of the Anthropic client used here.
// *anthropic.MessageService satisfies it.
type MessageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config configures an Anthropic oracle.
type Config struct {
	APIKey            string
	Model             string
	MaxTokens         int64
	RequestsPerMinute int
	Timeout           time.Duration
	Logger            *slog.Logger

	// Messages overrides the SDK client, for tests.
	Messages MessageCreator
}

// Anthropic asks a Claude model for a remediation.
type Anthropic struct {
	messages  MessageCreator
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewAnthropic creates an Anthropic oracle.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.Messages == nil && cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	messages := cfg.Messages
	if messages == nil {
		client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
		messages = &client.Messages
	}

	return &Anthropic{
		messages:  messages,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		limiter:   rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		logger:    log.WithComponent(logger, "advisor"),
	}, nil
}

const systemPrompt = `You diagnose why a stdio MCP tool server failed to start.
Reply with a single JSON object and nothing else. Fields:
  action: one of set_env, install_dep, edit_file, switch_server, retry, manual
  envKey, envValue: for set_env
  dependency, ecosystem ("python" or "node"): for install_dep
  filePath, searchText, replaceText, insertText: for edit_file
  altServerKeyword: for switch_server
  reason: one sentence for the user
Use manual when no safe automatic fix exists.`

func userPrompt(req recovery.Request) string {
	var sb strings.Builder
	rec := req.Service
	fmt.Fprintf(&sb, "Server: %s\n", rec.DisplayName())
	if rec.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", rec.Description)
	}
	fmt.Fprintf(&sb, "Launch command: %s %s\n", rec.Command, strings.Join(rec.Args, " "))
	if len(rec.Env) > 0 {
		keys := make([]string, 0, len(rec.Env))
		for k := range rec.Env {
			keys = append(keys, k)
		}
		fmt.Fprintf(&sb, "Environment keys already set: %s\n", strings.Join(keys, ", "))
	}
	fmt.Fprintf(&sb, "Error output:\n%s\n", req.FailureText)
	return sb.String()
}

// Advise implements recovery.Oracle.
func (a *Anthropic) Advise(ctx context.Context, req recovery.Request) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("advisor rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	msg, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("advisor request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	a.logger.Debug("advisor responded",
		slog.String(log.ServerKey, req.Service.ID),
		slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
		slog.Int64("output_tokens", msg.Usage.OutputTokens))
	return sb.String(), nil
}

// FromConfig builds the configured oracle. Provider "none" (or an
// anthropic provider without a key) yields a nil Oracle, which makes the
// recovery engine rely on its patterns alone.
func FromConfig(cfg config.AdvisorConfig, logger *slog.Logger) (recovery.Oracle, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "anthropic":
		envName := cfg.APIKeyEnv
		if envName == "" {
			envName = "ANTHROPIC_API_KEY"
		}
		key := os.Getenv(envName)
		if key == "" {
			if logger != nil {
				logger.Warn("advisor disabled: API key not set", slog.String("env", envName))
			}
			return nil, nil
		}
		a, err := NewAnthropic(Config{
			APIKey:            key,
			Model:             cfg.Model,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Timeout:           cfg.Timeout,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown advisor provider %q", cfg.Provider)
}
