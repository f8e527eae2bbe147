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

package secret

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/alou/internal/commands/shared"
	"github.com/tombee/alou/internal/secrets"
)

type memBackend struct {
	values map[string]string
}

func (m *memBackend) Name() string    { return "memory" }
func (m *memBackend) Available() bool { return true }
func (m *memBackend) Priority() int   { return 50 }

func (m *memBackend) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", secrets.ErrSecretNotFound
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	if _, ok := m.values[key]; !ok {
		return secrets.ErrSecretNotFound
	}
	delete(m.values, key)
	return nil
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{values: map[string]string{}}
	r := secrets.NewResolver([]secrets.SecretBackend{secrets.NewEnvBackend(), backend})

	name, err := setSecret(ctx, r, "ALOU_TEST_SECRET_KEY", "sk-0123456789")
	require.NoError(t, err)
	assert.Equal(t, "memory", name)

	value, source := r.Resolve(ctx, "ALOU_TEST_SECRET_KEY")
	assert.Equal(t, "sk-0123456789", value)
	assert.Equal(t, "memory", source)

	require.NoError(t, deleteSecret(ctx, r, "ALOU_TEST_SECRET_KEY"))
	err = deleteSecret(ctx, r, "ALOU_TEST_SECRET_KEY")
	require.Error(t, err)
	assert.Equal(t, shared.ExitNotFound, shared.ExitCode(err))
}

func TestSetWithoutWritableBackend(t *testing.T) {
	r := secrets.NewResolver([]secrets.SecretBackend{secrets.NewEnvBackend()})
	_, err := setSecret(context.Background(), r, "KEY", "v")
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
}

func TestReadValue(t *testing.T) {
	v, err := readValue(strings.NewReader("  piped-value\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "piped-value", v)
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"short", "****"},
		{"12345678", "****"},
		{"sk-abcdefghij", "sk-a...ghij"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, validateKey("BRAVE_API_KEY"))
	assert.Error(t, validateKey(""))
	assert.Error(t, validateKey("A=B"))
	assert.Error(t, validateKey("has space"))
}

func TestCommandTree(t *testing.T) {
	cmd := NewCommand()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"set", "get", "delete"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}
