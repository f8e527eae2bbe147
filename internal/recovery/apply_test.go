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
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/alou/internal/log"
	"github.com/tombee/alou/internal/registry"
)

type fakeRunner struct {
	err   error
	calls []string
}

func (r *fakeRunner) Install(ctx context.Context, ecosystem, dependency, dir string) error {
	r.calls = append(r.calls, ecosystem+":"+dependency)
	return r.err
}

type fakeConfirmer struct{ answer bool }

func (c fakeConfirmer) Confirm(ctx context.Context, rec registry.ServiceRecord, fix Fix) (bool, error) {
	return c.answer, nil
}

func newApplier(runner PackageRunner) *Applier {
	return NewApplier(ApplierConfig{Runner: runner, Logger: log.Discard()})
}

func TestApply_SetEnvCopiesRecord(t *testing.T) {
	rec := registry.ServiceRecord{ID: "brave", Command: "npx", Env: map[string]string{"A": "1"}}
	out := newApplier(&fakeRunner{}).Apply(context.Background(),
		Fix{Action: ActionSetEnv, EnvKey: "BRAVE_API_KEY", EnvValue: "demo"}, rec)

	assert.True(t, out.Retry)
	assert.Equal(t, "demo", out.Record.Env["BRAVE_API_KEY"])
	assert.Equal(t, "1", out.Record.Env["A"])
	_, mutated := rec.Env["BRAVE_API_KEY"]
	assert.False(t, mutated, "input record must not be mutated")
}

func TestApply_InstallDep(t *testing.T) {
	runner := &fakeRunner{}
	out := newApplier(runner).Apply(context.Background(),
		Fix{Action: ActionInstallDep, Dependency: "httpx", Ecosystem: EcosystemPython}, registry.ServiceRecord{ID: "py"})
	assert.True(t, out.Retry)
	assert.Equal(t, []string{"python:httpx"}, runner.calls)

	// A failed install still permits the next launch attempt.
	failing := &fakeRunner{err: errors.New("pip exploded")}
	out = newApplier(failing).Apply(context.Background(),
		Fix{Action: ActionInstallDep, Dependency: "httpx", Ecosystem: EcosystemPython}, registry.ServiceRecord{ID: "py"})
	assert.True(t, out.Retry)
	assert.Contains(t, out.Message, "failed")
}

func TestApply_EditFile(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "src", "conf")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	cfgPath := filepath.Join(nested, "settings.ini")
	require.NoError(t, os.WriteFile(cfgPath, []byte("port=8080\n"), 0o644))

	rec := registry.ServiceRecord{ID: "svc", Cwd: dir}
	a := newApplier(&fakeRunner{})

	out := a.Apply(context.Background(), Fix{
		Action: ActionEditFile, FilePath: "settings.ini", SearchText: "8080", ReplaceText: Replace("9090"),
	}, rec)
	require.True(t, out.Retry, out.Message)

	out = a.Apply(context.Background(), Fix{
		Action: ActionEditFile, FilePath: "src/conf/settings.ini", InsertText: "debug=true",
	}, rec)
	require.True(t, out.Retry, out.Message)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "port=9090\ndebug=true\n", string(data))

	info, err := os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestApply_EditFileEmptyReplacementDeletes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=8080\nBROKEN_LINE\n"), 0o644))
	a := newApplier(&fakeRunner{})

	fix := ParseOracleResponse(`{"action":"edit_file","filePath":".env","searchText":"BROKEN_LINE\n","replaceText":"","reason":"drop"}`)
	require.Equal(t, ActionEditFile, fix.Action, fix.Reason)

	out := a.Apply(context.Background(), fix, registry.ServiceRecord{ID: "svc", Cwd: dir})
	require.True(t, out.Retry, out.Message)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PORT=8080\n", string(data))
}

func TestApply_EditFileFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	rec := registry.ServiceRecord{ID: "svc", Cwd: dir}
	a := newApplier(&fakeRunner{})

	tests := []struct {
		name string
		fix  Fix
	}{
		{"missing file", Fix{Action: ActionEditFile, FilePath: "nope.txt", InsertText: "x"}},
		{"search text absent", Fix{Action: ActionEditFile, FilePath: "a.txt", SearchText: "bye", ReplaceText: Replace("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := a.Apply(context.Background(), tt.fix, rec)
			assert.False(t, out.Retry)
			assert.NotEmpty(t, out.Message)
		})
	}
}

func TestApply_SwitchRetryManual(t *testing.T) {
	a := newApplier(&fakeRunner{})
	rec := registry.ServiceRecord{ID: "svc"}

	out := a.Apply(context.Background(), Fix{Action: ActionSwitchServer, AltServerKeyword: "web search"}, rec)
	assert.False(t, out.Retry)
	assert.Equal(t, "web search", out.SwitchKeyword)

	out = a.Apply(context.Background(), Fix{Action: ActionRetry}, rec)
	assert.True(t, out.Retry)

	out = a.Apply(context.Background(), NoFix("needs a human"), rec)
	assert.False(t, out.Retry)
	assert.Equal(t, "needs a human", out.Message)
}

func TestApply_ConfirmDeclined(t *testing.T) {
	runner := &fakeRunner{}
	a := NewApplier(ApplierConfig{Runner: runner, Confirm: fakeConfirmer{answer: false}, Logger: log.Discard()})

	out := a.Apply(context.Background(),
		Fix{Action: ActionInstallDep, Dependency: "httpx", Ecosystem: EcosystemPython}, registry.ServiceRecord{ID: "py"})
	assert.False(t, out.Retry)
	assert.Empty(t, runner.calls)
	assert.Contains(t, out.Message, "declined")
}

func TestExecRunner_Manager(t *testing.T) {
	r := ExecRunner{Managers: map[string]string{EcosystemPython: "uv pip"}}
	assert.Equal(t, "uv pip", r.manager(EcosystemPython))
	assert.Equal(t, "npm", r.manager(EcosystemNode))
	assert.Equal(t, "pip", ExecRunner{}.manager(EcosystemPython))
}

func TestExecRunner_FailureNamesCommand(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	r := ExecRunner{Managers: map[string]string{EcosystemPython: "false"}}

	err := r.Install(context.Background(), EcosystemPython, "requests", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "false install requests")

	var exitErr *exec.ExitError
	assert.ErrorAs(t, err, &exitErr)
}
