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

package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tombee/alou/internal/advisor"
	"github.com/tombee/alou/internal/config"
	"github.com/tombee/alou/internal/install"
	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/mcp"
	"github.com/tombee/alou/internal/memory"
	"github.com/tombee/alou/internal/recovery"
	"github.com/tombee/alou/internal/registry"
	"github.com/tombee/alou/internal/secrets"
	"github.com/tombee/alou/internal/telemetry"
)

// AppOptions select the parts of App a command needs.
type AppOptions struct {
	// Services opens the registry, supervisor and installer.
	Services bool

	// Watch reloads the registry on external edits.
	Watch bool

	// ConfirmFixes prompts before each remediation.
	ConfirmFixes bool
}

// App holds the wired runtime for one command invocation.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Memory     *memory.Store
	Registry   *registry.Registry
	Secrets    *secrets.Resolver
	Supervisor *mcp.Supervisor
	Installer  *install.Workflow

	telemetry *telemetry.Provider
	metrics   *telemetry.MetricsServer
	watcher   *registry.Watcher
}

// LoadConfig loads the configuration named by --config and applies the
// --metrics-addr override.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	if addr := GetMetricsAddr(); addr != "" {
		cfg.Telemetry.MetricsAddr = addr
	}
	return cfg, nil
}

// NewLogger builds the CLI logger from cfg and the global flags.
func NewLogger(cfg *config.Config) *slog.Logger {
	logCfg := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}
	switch {
	case GetVerbose():
		logCfg.Level = "debug"
	case GetQuiet():
		logCfg.Level = "error"
	}
	return log.New(logCfg)
}

// NewSecretResolver builds the set_env value chain: process environment,
// then the configured .env files, then the OS keychain.
func NewSecretResolver(cfg *config.Config, logger *slog.Logger) *secrets.Resolver {
	backends := []secrets.SecretBackend{secrets.NewEnvBackend()}
	if len(cfg.Secrets.Dotenv) > 0 {
		backends = append(backends, secrets.NewDotenvBackend(cfg.Secrets.Dotenv...))
	}
	if cfg.Secrets.Keychain {
		backends = append(backends, secrets.NewKeychainBackend())
	}
	return secrets.NewResolver(backends, secrets.WithLogger(logger))
}

// OpenApp wires the runtime. Close must be called on success.
func OpenApp(ctx context.Context, opts AppOptions) (app *App, err error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg)
	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	version, _, _ := GetVersion()
	app.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{Version: version, Logger: logger})
	if err != nil {
		return nil, NewConfigError("failed to configure telemetry", err)
	}
	if cfg.Telemetry.MetricsAddr != "" {
		app.metrics = telemetry.NewMetricsServer(cfg.Telemetry.MetricsAddr, app.telemetry.MetricsHandler(), logger)
		if err := app.metrics.Start(); err != nil {
			app.metrics = nil
			return nil, NewExecutionError("failed to start metrics server", err)
		}
	}

	backend, err := memory.NewBackend(cfg.Memory.Backend, cfg.Memory.Path)
	if err != nil {
		return nil, NewConfigError("failed to open memory store", err)
	}
	app.Memory, err = memory.Open(ctx, backend, memory.Options{Logger: logger})
	if err != nil {
		_ = backend.Close()
		return nil, NewExecutionError("failed to open memory store", err)
	}

	if !opts.Services {
		return app, nil
	}

	app.Registry, err = registry.Open(registry.Config{
		Path:     cfg.Registry.Path,
		Recorder: app.Memory,
		Logger:   logger,
	})
	if err != nil {
		return nil, NewExecutionError("failed to open service registry", err)
	}
	if opts.Watch && cfg.Registry.Watch {
		app.watcher, err = registry.NewWatcher(registry.WatcherConfig{Registry: app.Registry, Logger: logger})
		if err != nil {
			logger.Warn("registry watcher unavailable", log.Error(err))
			app.watcher = nil
		}
	}

	app.Secrets = NewSecretResolver(cfg, logger)

	app.Supervisor = mcp.NewSupervisor(mcp.SupervisorConfig{
		Dialer:         mcp.StdioDialer{},
		Records:        app.Registry,
		ConnectTimeout: cfg.Supervisor.ConnectTimeout,
		CallTimeout:    cfg.Supervisor.CallTimeout,
		StopTimeout:    cfg.Supervisor.StopTimeout,
		StderrLines:    cfg.Supervisor.StderrLines,
		Logger:         logger,
	})

	oracle, err := advisor.FromConfig(cfg.Advisor, logger)
	if err != nil {
		return nil, NewConfigError("failed to configure advisor", err)
	}
	applier := recovery.ApplierConfig{
		Runner: recovery.ExecRunner{Managers: cfg.Install.PackageManagers},
		Logger: logger,
	}
	if (opts.ConfirmFixes || cfg.Install.ConfirmFixes) && !IsNonInteractive() {
		applier.Confirm = recovery.HuhConfirmer{}
	}

	app.Installer, err = install.New(install.Config{
		Launcher: app.Supervisor,
		Catalog:  app.Registry,
		Memory:   app.Memory,
		Diagnoser: recovery.NewEngine(recovery.EngineConfig{
			Oracle:  oracle,
			Secrets: app.Secrets,
			Logger:  logger,
		}),
		Remediator:         recovery.NewApplier(applier),
		MaxRetries:         cfg.Install.MaxRetries,
		DiscoveryThreshold: cfg.Install.DiscoveryThreshold,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Close stops every service and releases resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Supervisor != nil {
		errs = append(errs, a.Supervisor.Shutdown(ctx))
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.Memory != nil {
		errs = append(errs, a.Memory.Close())
	}
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
