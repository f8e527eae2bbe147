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

package install

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/alou/internal/install"
	"github.com/tombee/alou/internal/recovery"
	"github.com/tombee/alou/internal/registry"
)

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name string
		res  *install.Result
		want []string
	}{
		{
			name: "running",
			res: &install.Result{
				ServiceID: "echo",
				Status:    install.StatusRunning,
				Record:    registry.ServiceRecord{ID: "echo", Title: "Echo"},
				Tools:     []string{"echo"},
				Attempts:  1,
			},
			want: []string{"Echo is running with 1 tools", "echo"},
		},
		{
			name: "fixed then running",
			res: &install.Result{
				ServiceID: "brave-search",
				Status:    install.StatusRunning,
				Record:    registry.ServiceRecord{ID: "brave-search"},
				Fixes:     []recovery.Fix{{Action: recovery.ActionSetEnv, Reason: "missing BRAVE_API_KEY"}},
				Attempts:  2,
			},
			want: []string{"attempt 1: set_env (missing BRAVE_API_KEY)", "running"},
		},
		{
			name: "switch",
			res: &install.Result{
				ServiceID:     "old",
				Status:        install.StatusSwitch,
				SwitchKeyword: "search",
				Message:       "try a different service: search",
			},
			want: []string{"try a different service", `alou install "search"`},
		},
		{
			name: "exhausted",
			res: &install.Result{
				ServiceID: "bad",
				Status:    install.StatusExhausted,
				Message:   "bad failed 3 times this session; giving up",
				Err:       errors.New("spawn ENOENT"),
			},
			want: []string{"exhausted", "giving up", "spawn ENOENT"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, tt.res)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestJSONResult(t *testing.T) {
	res := &install.Result{
		ServiceID: "brave-search",
		Status:    install.StatusFailed,
		Attempts:  1,
		Fixes:     []recovery.Fix{{Action: recovery.ActionManual}},
		Err:       errors.New("segfault"),
	}
	out := jsonResult(res)
	assert.False(t, out.Success)
	assert.Equal(t, "failed", out.Status)
	assert.Equal(t, []string{"manual"}, out.Fixes)
	assert.Equal(t, "segfault", out.Error)
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()
	if cmd.Flags().Lookup("confirm-fixes") == nil {
		t.Error("missing --confirm-fixes")
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("install requires an argument")
	}
}
