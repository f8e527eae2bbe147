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
)

func TestCleanQuery(t *testing.T) {
	tests := []struct {
		name  string
		words []string
		want  []string
	}{
		{"short words kept", []string{"music", "a"}, []string{"music", "a"}},
		{"long phrase split", []string{"help me practice violin"}, []string{"help", "me", "practice", "violin"}},
		{"cjk punctuation", []string{"我想学习小提琴，还有音乐。谢谢大家了"}, []string{"我想学习小提琴", "还有音乐", "谢谢大家了"}},
		{"blank dropped", []string{"", "  "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanQuery(tt.words))
		})
	}
}

func TestSearch(t *testing.T) {
	r := openTemp(t, nil)
	ctx := context.Background()
	for _, rec := range []ServiceRecord{
		{ID: "notes", Title: "Notes", Tags: []string{"text", "practice"}, Category: "productivity", Command: "x"},
		{ID: "violin-coach", Title: "Violin Coach", Tags: []string{"music"}, Category: "education", Command: "x"},
		{ID: "stock-watch", Title: "Stock Watch", Tags: []string{"finance"}, Category: "finance", Command: "x"},
		{ID: "stock-watch-2", Title: "Stock Watch", Tags: []string{"finance"}, Category: "finance", Command: "x"},
	} {
		require.NoError(t, r.Upsert(ctx, rec))
	}

	tests := []struct {
		name   string
		words  []string
		wantID string
		wantOK bool
	}{
		{"music bonus beats practice", []string{"practice", "violin"}, "violin-coach", true},
		{"category exact match", []string{"productivity"}, "notes", true},
		{"case-insensitive substring", []string{"COACH"}, "violin-coach", true},
		{"tie goes to first registered", []string{"stock"}, "stock-watch", true},
		{"no match", []string{"kubernetes"}, "", false},
		{"empty query", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Search(tt.words)
			if ok != tt.wantOK {
				t.Fatalf("Search(%v) ok = %v, want %v", tt.words, ok, tt.wantOK)
			}
			if got.ID != tt.wantID {
				t.Errorf("Search(%v) = %q, want %q", tt.words, got.ID, tt.wantID)
			}
		})
	}
}

func TestScore(t *testing.T) {
	rec := ServiceRecord{ID: "violin-coach", Title: "Violin Coach", Tags: []string{"music", "practice"}, Category: "education"}

	tests := []struct {
		words       []string
		wantScore   int
		wantMatched int
	}{
		{[]string{"violin"}, 4, 1},
		{[]string{"practice"}, 3, 1},
		{[]string{"education"}, 1 + categoryBonus, 1},
		{[]string{"Education"}, 1, 1},
		{[]string{"violin", "guitar"}, 4, 1},
	}
	for _, tt := range tests {
		score, matched := score(rec, tt.words)
		if score != tt.wantScore || matched != tt.wantMatched {
			t.Errorf("score(%v) = (%d, %d), want (%d, %d)", tt.words, score, matched, tt.wantScore, tt.wantMatched)
		}
	}
}

func TestRank_SimilarityScore(t *testing.T) {
	matches := rank([]ServiceRecord{
		{ID: "a", Tags: []string{"weather"}},
		{ID: "b", Tags: []string{"weather", "forecast"}},
	}, []string{"weather", "forecast"})

	require.Len(t, matches, 2)
	assert.Equal(t, "b", matches[0].Record.ID)
	assert.InDelta(t, 1.0, matches[0].Record.SimilarityScore, 1e-9)
	assert.InDelta(t, 0.5, matches[1].Record.SimilarityScore, 1e-9)
}
