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

package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alouerrors "github.com/tombee/alou/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestStore(t *testing.T, clock *fakeClock) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memories.json")
	opts := Options{}
	if clock != nil {
		opts.Now = clock.Now
	}
	s, err := Open(context.Background(), NewJSONFileBackend(path), opts)
	require.NoError(t, err)
	return s, path
}

// failingBackend fails every Save after the first n.
type failingBackend struct {
	JSONFileBackend
	allow int
}

func (b *failingBackend) Save(ctx context.Context, items []Item) error {
	if b.allow <= 0 {
		return errors.New("disk full")
	}
	b.allow--
	return b.JSONFileBackend.Save(ctx, items)
}

func TestStore_Dedup(t *testing.T) {
	s, path := newTestStore(t, nil)
	ctx := context.Background()

	id1, err := s.Store(ctx, "likes green tea", Metadata{Tags: []string{"pref"}})
	require.NoError(t, err)
	id2, err := s.Store(ctx, "likes green tea", Metadata{Tags: []string{"other"}})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.Count())

	// Reopening sees exactly one item.
	reopened, err := Open(ctx, NewJSONFileBackend(path), Options{})
	require.NoError(t, err)
	items := reopened.List()
	require.Len(t, items, 1)
	assert.Equal(t, id1, items[0].ID)
	assert.Equal(t, HashContent("likes green tea"), items[0].ContentHash)
	assert.Equal(t, []string{"pref"}, items[0].Metadata.Tags)
}

func TestStore_SaveFailureLeavesStateUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.json")
	backend := &failingBackend{JSONFileBackend: JSONFileBackend{path: path}, allow: 1}
	s, err := Open(context.Background(), backend, Options{})
	require.NoError(t, err)

	_, err = s.Store(context.Background(), "first", Metadata{})
	require.NoError(t, err)

	_, err = s.Store(context.Background(), "second", Metadata{})
	require.Error(t, err)
	var se *alouerrors.StorageError
	assert.True(t, errors.As(err, &se), "expected StorageError, got %T", err)
	assert.Equal(t, 1, s.Count())
	assert.Empty(t, s.Retrieve("second", 5))
}

func TestStore_Retrieve(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := s.Store(ctx, fmt.Sprintf("note %d about Go", i), Metadata{Type: "note"})
		require.NoError(t, err)
		clock.Set(clock.Now().Add(time.Minute))
	}
	_, err := s.Store(ctx, "unrelated", Metadata{Tags: []string{"golang"}})
	require.NoError(t, err)

	got := s.Retrieve("go", 3)
	require.Len(t, got, 3)
	// Newest first; the tag match is newest of all.
	assert.Equal(t, "unrelated", got[0].Content)
	assert.Equal(t, "note 7 about Go", got[1].Content)

	assert.Len(t, s.Retrieve("go", 0), DefaultLimit)
	assert.Len(t, s.Retrieve("NOTE", -1), 8, "type and content match case-insensitively")
	assert.Empty(t, s.Retrieve("python", 5))
}

func TestStore_SearchByTag(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "a", Metadata{Tags: []string{"Music", "violin"}})
	require.NoError(t, err)
	_, err = s.Store(ctx, "b", Metadata{Tags: []string{"stocks"}})
	require.NoError(t, err)
	_, err = s.Store(ctx, "c", Metadata{})
	require.NoError(t, err)

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"exact", []string{"violin"}, []string{"a"}},
		{"case insensitive", []string{"MUSIC"}, []string{"a"}},
		{"substring", []string{"stock"}, []string{"b"}},
		{"any of", []string{"violin", "stock"}, []string{"b", "a"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SearchByTag(tt.tags, 10)
			var contents []string
			for _, item := range got {
				contents = append(contents, item.Content)
			}
			assert.Equal(t, tt.want, contents)
		})
	}
}

func TestStore_RecallToday(t *testing.T) {
	loc := time.FixedZone("test", 8*3600)
	clock := &fakeClock{now: time.Date(2025, 6, 10, 9, 30, 0, 0, loc)}
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	_, err := s.Store(ctx, "practiced scales", Metadata{Tags: []string{"violin"}})
	require.NoError(t, err)

	// Any instant on the same day, including before the store time.
	for _, at := range []time.Time{
		time.Date(2025, 6, 10, 0, 0, 0, 0, loc),
		time.Date(2025, 6, 10, 9, 30, 0, 0, loc),
		time.Date(2025, 6, 10, 23, 59, 59, 0, loc),
	} {
		clock.Set(at)
		got := s.Recall("today", 5)
		if len(got) != 1 {
			t.Errorf("Recall at %v: got %d items, want 1", at, len(got))
		}
	}

	clock.Set(time.Date(2025, 6, 11, 8, 0, 0, 0, loc))
	assert.Empty(t, s.Recall("today", 5))
	assert.Len(t, s.Recall("yesterday", 5), 1)
	assert.Len(t, s.Recall("scales yesterday", 5), 1)
	assert.Empty(t, s.Recall("piano yesterday", 5))
}

func TestStore_RecallWithoutTimeExpression(t *testing.T) {
	s, _ := newTestStore(t, nil)
	_, err := s.Store(context.Background(), "the answer is 42", Metadata{})
	require.NoError(t, err)

	assert.Len(t, s.Recall("answer", 5), 1)
}

func TestStore_Delete(t *testing.T) {
	s, path := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "keep", Metadata{})
	require.NoError(t, err)
	_, err = s.Store(ctx, "drop", Metadata{})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, HashContent("drop")))
	assert.Equal(t, 1, s.Count())

	err = s.Delete(ctx, HashContent("drop"))
	var nf *alouerrors.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)

	err = s.Delete(ctx, "nonexistent")
	assert.Error(t, err)

	reopened, err := Open(ctx, NewJSONFileBackend(path), Options{})
	require.NoError(t, err)
	items := reopened.List()
	require.Len(t, items, 1)
	assert.Equal(t, "keep", items[0].Content)

	// Re-storing deleted content creates a fresh item.
	_, err = s.Store(ctx, "drop", Metadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count())
}

func TestStore_ConcurrentStores(t *testing.T) {
	s, path := newTestStore(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Store(ctx, fmt.Sprintf("fact %d", i%10), Metadata{}); err != nil {
				t.Errorf("Store: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Count())
	reopened, err := Open(ctx, NewJSONFileBackend(path), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, reopened.Count())
}

func TestStore_HealthAndStats(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)}
	s, path := newTestStore(t, clock)
	ctx := context.Background()

	h := s.Health()
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "json", h.Backend)
	assert.Equal(t, 0, h.Count)
	assert.Equal(t, path, h.Path)

	_, err := s.Store(ctx, "old", Metadata{Tags: []string{"x"}, Type: "note"})
	require.NoError(t, err)
	clock.Set(clock.Now().AddDate(0, 0, 10))
	_, err = s.Store(ctx, "new", Metadata{Tags: []string{"x", "y"}})
	require.NoError(t, err)

	h = s.Health()
	assert.Equal(t, 2, h.Count)
	assert.Greater(t, h.SizeBytes, int64(0))

	st := s.Stats()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 2, st.UniqueTags)
	assert.Equal(t, 1, st.RecentActivity)
	assert.Equal(t, map[string]int{"note": 1, "untyped": 1}, st.Types)
	require.NotEmpty(t, st.TopTags)
	assert.Equal(t, TagCount{Tag: "x", Count: 2}, st.TopTags[0])
}
