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

// Package config loads alou configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	alouerrors "github.com/tombee/alou/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete alou configuration.
type Config struct {
	// DataDir holds the registry file and the memory store.
	DataDir string `yaml:"data_dir"`

	Registry   RegistryConfig   `yaml:"registry"`
	Memory     MemoryConfig     `yaml:"memory"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Install    InstallConfig    `yaml:"install"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// RegistryConfig configures the service registry file.
type RegistryConfig struct {
	// Path is the launch contract file. Default: <data_dir>/mcpServers.json
	Path string `yaml:"path,omitempty"`

	// ImportPath is an externally maintained launch file merged by
	// `alou service import`. Default: <config_dir>/mcpServers.user.json
	ImportPath string `yaml:"import_path,omitempty"`

	// Watch reloads the registry when the file is edited by another tool.
	Watch bool `yaml:"watch"`
}

// MemoryConfig configures the content store.
type MemoryConfig struct {
	// Backend is "json" (default) or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the backing file. Default: <data_dir>/memory.json or memory.db
	Path string `yaml:"path,omitempty"`
}

// SupervisorConfig configures process connections.
type SupervisorConfig struct {
	// ConnectTimeout bounds spawn + initialize + first capability check.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// CallTimeout bounds a single tool call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// StopTimeout is how long Stop waits for a clean exit before killing.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// StderrLines is the number of stderr lines kept per service.
	StderrLines int `yaml:"stderr_lines"`
}

// InstallConfig configures the installation workflow.
type InstallConfig struct {
	// MaxRetries is the per-service launch attempt ceiling.
	MaxRetries int `yaml:"max_retries"`

	// DiscoveryThreshold is the minimum relevance score for a discovered
	// candidate to be considered.
	DiscoveryThreshold float64 `yaml:"discovery_threshold"`

	// PackageManagers maps an ecosystem ("python", "node") to the command
	// used for install_dep.
	PackageManagers map[string]string `yaml:"package_managers,omitempty"`

	// ConfirmFixes asks before every remediation action.
	ConfirmFixes bool `yaml:"confirm_fixes"`
}

// AdvisorConfig configures the external advisory oracle.
type AdvisorConfig struct {
	// Provider is "anthropic" or "none".
	Provider string `yaml:"provider"`

	// Model is the model id passed to the provider.
	Model string `yaml:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// RequestsPerMinute rate limits oracle calls.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Timeout bounds a single oracle request.
	Timeout time.Duration `yaml:"timeout"`
}

// SecretsConfig configures where set_env values are resolved from.
type SecretsConfig struct {
	// Dotenv lists .env files consulted after the process environment.
	Dotenv []string `yaml:"dotenv,omitempty"`

	// Keychain enables the OS keychain lookup.
	Keychain bool `yaml:"keychain"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format,omitempty"`
	AddSource bool   `yaml:"add_source"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// MetricsAddr serves /metrics when set (e.g., "127.0.0.1:9464").
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// Tracing selects the span exporter: none, stdout, otlp-http, otlp-grpc.
	Tracing string `yaml:"tracing"`

	// OTLPEndpoint is the collector endpoint for the otlp exporters.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Registry: RegistryConfig{
			Watch: true,
		},
		Memory: MemoryConfig{
			Backend: "json",
		},
		Supervisor: SupervisorConfig{
			ConnectTimeout: 10 * time.Second,
			CallTimeout:    30 * time.Second,
			StopTimeout:    5 * time.Second,
			StderrLines:    200,
		},
		Install: InstallConfig{
			MaxRetries:         3,
			DiscoveryThreshold: 0.3,
			PackageManagers: map[string]string{
				"python": "pip",
				"node":   "npm",
			},
		},
		Advisor: AdvisorConfig{
			Provider:          "none",
			Model:             "claude-3-5-haiku-latest",
			APIKeyEnv:         "ANTHROPIC_API_KEY",
			RequestsPerMinute: 20,
			Timeout:           30 * time.Second,
		},
		Secrets: SecretsConfig{
			Keychain: true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Tracing: "none",
		},
	}
}

// Load loads configuration from an optional YAML file and environment
// variables. Environment variables take precedence over the file. An empty
// configPath uses the default location if a file exists there.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		if p, err := ConfigPath(); err == nil {
			configPath = p
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, &alouerrors.ConfigError{
					Key:    "config_file",
					Reason: fmt.Sprintf("failed to load from %s", configPath),
					Cause:  err,
				}
			}
		}
	}

	cfg.loadFromEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &alouerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values and derives paths from DataDir.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
	c.DataDir = expandHome(c.DataDir)

	if c.Registry.Path == "" {
		c.Registry.Path = filepath.Join(c.DataDir, "mcpServers.json")
	}
	if c.Registry.ImportPath == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Registry.ImportPath = filepath.Join(dir, "mcpServers.user.json")
		}
	}

	if c.Memory.Backend == "" {
		c.Memory.Backend = defaults.Memory.Backend
	}
	if c.Memory.Path == "" {
		name := "memory.json"
		if c.Memory.Backend == "sqlite" {
			name = "memory.db"
		}
		c.Memory.Path = filepath.Join(c.DataDir, name)
	}

	if c.Supervisor.ConnectTimeout == 0 {
		c.Supervisor.ConnectTimeout = defaults.Supervisor.ConnectTimeout
	}
	if c.Supervisor.CallTimeout == 0 {
		c.Supervisor.CallTimeout = defaults.Supervisor.CallTimeout
	}
	if c.Supervisor.StopTimeout == 0 {
		c.Supervisor.StopTimeout = defaults.Supervisor.StopTimeout
	}
	if c.Supervisor.StderrLines == 0 {
		c.Supervisor.StderrLines = defaults.Supervisor.StderrLines
	}

	if c.Install.MaxRetries == 0 {
		c.Install.MaxRetries = defaults.Install.MaxRetries
	}
	if c.Install.DiscoveryThreshold == 0 {
		c.Install.DiscoveryThreshold = defaults.Install.DiscoveryThreshold
	}
	if c.Install.PackageManagers == nil {
		c.Install.PackageManagers = map[string]string{}
	}
	for eco, cmd := range defaults.Install.PackageManagers {
		if _, ok := c.Install.PackageManagers[eco]; !ok {
			c.Install.PackageManagers[eco] = cmd
		}
	}

	if c.Advisor.Provider == "" {
		c.Advisor.Provider = defaults.Advisor.Provider
	}
	if c.Advisor.Model == "" {
		c.Advisor.Model = defaults.Advisor.Model
	}
	if c.Advisor.APIKeyEnv == "" {
		c.Advisor.APIKeyEnv = defaults.Advisor.APIKeyEnv
	}
	if c.Advisor.RequestsPerMinute == 0 {
		c.Advisor.RequestsPerMinute = defaults.Advisor.RequestsPerMinute
	}
	if c.Advisor.Timeout == 0 {
		c.Advisor.Timeout = defaults.Advisor.Timeout
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Telemetry.Tracing == "" {
		c.Telemetry.Tracing = defaults.Telemetry.Tracing
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("ALOU_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("ALOU_MEMORY_BACKEND"); val != "" {
		c.Memory.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("ALOU_CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Supervisor.ConnectTimeout = d
		}
	}
	if val := os.Getenv("ALOU_CALL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Supervisor.CallTimeout = d
		}
	}
	if val := os.Getenv("ALOU_ADVISOR"); val != "" {
		c.Advisor.Provider = strings.ToLower(val)
	} else if c.Advisor.Provider == "none" || c.Advisor.Provider == "" {
		keyEnv := c.Advisor.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "ANTHROPIC_API_KEY"
		}
		if os.Getenv(keyEnv) != "" {
			c.Advisor.Provider = "anthropic"
		}
	}
	if val := os.Getenv("ALOU_METRICS_ADDR"); val != "" {
		c.Telemetry.MetricsAddr = val
	}
	if val := os.Getenv("ALOU_TRACING"); val != "" {
		c.Telemetry.Tracing = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []string

	switch c.Memory.Backend {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("memory.backend must be one of [json, sqlite], got %q", c.Memory.Backend))
	}

	if c.Supervisor.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("supervisor.connect_timeout must be positive, got %v", c.Supervisor.ConnectTimeout))
	}
	if c.Supervisor.CallTimeout < c.Supervisor.ConnectTimeout {
		errs = append(errs, fmt.Sprintf("supervisor.call_timeout (%v) must not be shorter than connect_timeout (%v)",
			c.Supervisor.CallTimeout, c.Supervisor.ConnectTimeout))
	}

	if c.Install.MaxRetries < 1 {
		errs = append(errs, fmt.Sprintf("install.max_retries must be at least 1, got %d", c.Install.MaxRetries))
	}
	if c.Install.DiscoveryThreshold < 0 || c.Install.DiscoveryThreshold > 1 {
		errs = append(errs, fmt.Sprintf("install.discovery_threshold must be within [0,1], got %v", c.Install.DiscoveryThreshold))
	}

	switch c.Advisor.Provider {
	case "anthropic", "none":
	default:
		errs = append(errs, fmt.Sprintf("advisor.provider must be one of [anthropic, none], got %q", c.Advisor.Provider))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	switch c.Telemetry.Tracing {
	case "none", "stdout", "otlp-http", "otlp-grpc":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.tracing must be one of [none, stdout, otlp-http, otlp-grpc], got %q", c.Telemetry.Tracing))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
