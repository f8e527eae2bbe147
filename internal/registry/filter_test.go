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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alouerrors "github.com/tombee/alou/pkg/errors"
)

func TestFilter(t *testing.T) {
	r := openTemp(t, nil)
	ctx := context.Background()
	require.NoError(t, r.Upsert(ctx, ServiceRecord{ID: "brave-search", Command: "npx", Category: "search", Tags: []string{"Web"}}))
	require.NoError(t, r.Upsert(ctx, ServiceRecord{ID: "filesystem", Command: "npx", Category: "files"}))
	require.NoError(t, r.Upsert(ctx, ServiceRecord{ID: "notion", Category: "productivity"}))

	tests := []struct {
		expr string
		want []string
	}{
		{"", []string{"brave-search", "filesystem", "notion"}},
		{`category == "search"`, []string{"brave-search"}},
		{`placeholder`, []string{"notion"}},
		{`!placeholder && command == "npx"`, []string{"brave-search", "filesystem"}},
		{`has(tags, "web")`, []string{"brave-search"}},
		{`id startsWith "file"`, []string{"filesystem"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := r.Filter(tt.expr)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, rec := range got {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFilter_Invalid(t *testing.T) {
	r := openTemp(t, nil)

	_, err := r.Filter(`category ==`)
	var verr *alouerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "filter", verr.Field)

	_, err = r.Filter(`id`)
	assert.Error(t, err, "non-boolean expression")
}
