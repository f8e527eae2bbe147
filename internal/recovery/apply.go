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

package recovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/huh"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/registry"
	"github.com/tombee/alou/internal/util"
	alouerrors "github.com/tombee/alou/pkg/errors"
)

// DefaultInstallTimeout bounds one package manager run.
const DefaultInstallTimeout = 5 * time.Minute

// Outcome is the result of applying a Fix.
type Outcome struct {
	// Record is the service record after the fix. It is a copy; the
	// caller decides whether to persist it.
	Record registry.ServiceRecord

	// Retry is true when another launch attempt is warranted.
	Retry bool

	// SwitchKeyword is set for switch_server: the caller should re-enter
	// discovery with it.
	SwitchKeyword string

	// Message describes what happened, for the user.
	Message string
}

// PackageRunner installs one dependency.
type PackageRunner interface {
	Install(ctx context.Context, ecosystem, dependency, dir string) error
}

// Confirmer approves a fix before it is applied.
type Confirmer interface {
	Confirm(ctx context.Context, rec registry.ServiceRecord, fix Fix) (bool, error)
}

// ExecRunner shells out to a package manager.
type ExecRunner struct {
	// Managers maps an ecosystem to its command. Defaults: python=pip,
	// node=npm.
	Managers map[string]string
	Timeout  time.Duration
}

func (r ExecRunner) manager(ecosystem string) string {
	if m := r.Managers[ecosystem]; m != "" {
		return m
	}
	if ecosystem == EcosystemNode {
		return "npm"
	}
	return "pip"
}

// Install runs "<manager> install <dependency>" in dir.
func (r ExecRunner) Install(ctx context.Context, ecosystem, dependency, dir string) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultInstallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields := strings.Fields(r.manager(ecosystem))
	args := append(fields[1:], "install", dependency)
	cmd := exec.CommandContext(ctx, fields[0], args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &alouerrors.TimeoutError{Operation: fields[0] + " install", Duration: timeout, Cause: err}
	}
	out = bytes.TrimSpace(out)
	if len(out) > 2000 {
		out = out[len(out)-2000:]
	}
	if len(out) == 0 {
		return alouerrors.Wrapf(err, "%s install %s", fields[0], dependency)
	}
	return alouerrors.Wrapf(err, "%s install %s (output: %s)", fields[0], dependency, out)
}

// HuhConfirmer asks on the terminal.
type HuhConfirmer struct{}

// Confirm shows the fix and waits for a yes/no.
func (HuhConfirmer) Confirm(ctx context.Context, rec registry.ServiceRecord, fix Fix) (bool, error) {
	var apply bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Apply %s to %s?", fix.Action, rec.DisplayName())).
				Description(describe(fix)).
				Affirmative("Apply").
				Negative("Skip").
				Value(&apply),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return apply, nil
}

// describe renders a one-line summary of fix without secret values.
func describe(fix Fix) string {
	switch fix.Action {
	case ActionSetEnv:
		return fmt.Sprintf("set %s (%s)", fix.EnvKey, fix.Reason)
	case ActionInstallDep:
		return fmt.Sprintf("install %s package %s (%s)", fix.Ecosystem, fix.Dependency, fix.Reason)
	case ActionEditFile:
		return fmt.Sprintf("edit %s (%s)", fix.FilePath, fix.Reason)
	case ActionSwitchServer:
		return fmt.Sprintf("search for %q instead (%s)", fix.AltServerKeyword, fix.Reason)
	}
	return fix.Reason
}

// ApplierConfig configures an Applier.
type ApplierConfig struct {
	// Runner installs dependencies. Default: ExecRunner.
	Runner PackageRunner

	// Confirm, when set, is asked before every actionable fix.
	Confirm Confirmer

	Logger *slog.Logger
}

// Applier carries out Fix decisions.
type Applier struct {
	runner  PackageRunner
	confirm Confirmer
	logger  *slog.Logger
}

// NewApplier creates an Applier.
func NewApplier(cfg ApplierConfig) *Applier {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		runner:  cfg.Runner,
		confirm: cfg.Confirm,
		logger:  log.WithComponent(logger, "recovery"),
	}
}

// Apply performs fix against a copy of rec. Remediation errors are
// logged, not returned: a failed dependency install still allows a
// retry, while a failed file edit ends the attempt.
func (a *Applier) Apply(ctx context.Context, fix Fix, rec registry.ServiceRecord) Outcome {
	rec = rec.Clone()
	logger := a.logger.With(slog.String(log.ServerKey, rec.ID), slog.String(log.ActionKey, string(fix.Action)))

	if a.confirm != nil && (fix.Actionable() || fix.Action == ActionSwitchServer) {
		ok, err := a.confirm.Confirm(ctx, rec, fix)
		if err != nil {
			logger.Warn("confirmation failed", log.Error(err))
		}
		if !ok {
			return Outcome{Record: rec, Message: "fix declined: " + describe(fix)}
		}
	}

	switch fix.Action {
	case ActionSetEnv:
		if rec.Env == nil {
			rec.Env = make(map[string]string)
		}
		rec.Env[fix.EnvKey] = fix.EnvValue
		logger.Info("set environment variable",
			slog.String("key", fix.EnvKey),
			slog.String("value", log.SanitizeSecret(fix.EnvValue)))
		return Outcome{Record: rec, Retry: true, Message: fmt.Sprintf("set %s", fix.EnvKey)}

	case ActionInstallDep:
		if err := a.runner.Install(ctx, fix.Ecosystem, fix.Dependency, rec.Cwd); err != nil {
			logger.Warn("dependency install failed", slog.String("dependency", fix.Dependency), log.Error(err))
			return Outcome{Record: rec, Retry: true, Message: fmt.Sprintf("installing %s failed; retrying anyway", fix.Dependency)}
		}
		logger.Info("installed dependency", slog.String("dependency", fix.Dependency))
		return Outcome{Record: rec, Retry: true, Message: fmt.Sprintf("installed %s", fix.Dependency)}

	case ActionEditFile:
		path, err := a.editFile(fix, rec)
		if err != nil {
			logger.Warn("file edit failed", slog.String("file", fix.FilePath), log.Error(err))
			return Outcome{Record: rec, Message: fmt.Sprintf("could not edit %s: %v", fix.FilePath, err)}
		}
		logger.Info("edited file", slog.String("file", path))
		return Outcome{Record: rec, Retry: true, Message: fmt.Sprintf("edited %s", path)}

	case ActionSwitchServer:
		return Outcome{
			Record:        rec,
			SwitchKeyword: fix.AltServerKeyword,
			Message:       fmt.Sprintf("try a different server: search for %q", fix.AltServerKeyword),
		}

	case ActionRetry:
		return Outcome{Record: rec, Retry: true, Message: "retrying"}
	}

	msg := fix.Reason
	if msg == "" {
		msg = "no automatic fix available"
	}
	return Outcome{Record: rec, Message: msg}
}

// locate resolves fix.FilePath. Relative paths are tried under the
// service cwd first, then matched by base name anywhere below it.
func locate(filePath, cwd string) (string, error) {
	if filepath.IsAbs(filePath) {
		if _, err := os.Stat(filePath); err != nil {
			return "", err
		}
		return filePath, nil
	}

	root := cwd
	if root == "" {
		root = "."
	}
	direct := filepath.Join(root, filePath)
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/"+filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%s: %w", filePath, fs.ErrNotExist)
	}
	sort.Strings(matches)
	return filepath.Join(root, filepath.FromSlash(matches[0])), nil
}

func (a *Applier) editFile(fix Fix, rec registry.ServiceRecord) (string, error) {
	path, err := locate(fix.FilePath, rec.Cwd)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)

	switch {
	case fix.replaces():
		if !strings.Contains(content, fix.SearchText) {
			return "", fmt.Errorf("search text not found in %s", path)
		}
		content = strings.Replace(content, fix.SearchText, *fix.ReplaceText, 1)
	case fix.InsertText != "":
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += fix.InsertText
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
	default:
		return "", errors.New("nothing to change")
	}

	if err := util.WriteFileAtomic(path, []byte(content), info.Mode().Perm()); err != nil {
		return "", err
	}
	return path, nil
}
