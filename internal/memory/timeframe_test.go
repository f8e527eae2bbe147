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
	"testing"
	"time"
)

func TestParseTimeFrame(t *testing.T) {
	now := time.Date(2025, 5, 15, 14, 0, 0, 0, time.UTC)
	midnight := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		query     string
		wantOK    bool
		wantStart time.Time
		wantEnd   time.Time
		residual  string
	}{
		{"today", true, midnight, midnight.AddDate(0, 0, 1).Add(-time.Millisecond), ""},
		{"what did I learn today", true, midnight, midnight.AddDate(0, 0, 1).Add(-time.Millisecond), "what did I learn"},
		{"yesterday", true, midnight.AddDate(0, 0, -1), midnight.Add(-time.Millisecond), ""},
		{"昨天的笔记", true, midnight.AddDate(0, 0, -1), midnight.Add(-time.Millisecond), "的笔记"},
		{"notes from last week", true, now.AddDate(0, 0, -7), now, "notes"},
		{"last month", true, now.AddDate(0, -1, 0), now, ""},
		{"3 days ago", true, now.AddDate(0, 0, -3), now, ""},
		{"2 hours ago music", true, now.Add(-2 * time.Hour), now, "music"},
		{"5小时前", true, now.Add(-5 * time.Hour), now, ""},
		{"violin practice", false, time.Time{}, time.Time{}, "violin practice"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			frame, residual, ok := ParseTimeFrame(tt.query, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if residual != tt.residual {
				t.Errorf("residual = %q, want %q", residual, tt.residual)
			}
			if !ok {
				return
			}
			if !frame.Start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", frame.Start, tt.wantStart)
			}
			if !frame.End.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", frame.End, tt.wantEnd)
			}
		})
	}
}

func TestTimeFrame_ContainsBounds(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := TimeFrame{Start: start, End: start.Add(time.Hour)}

	if !f.Contains(start) || !f.Contains(start.Add(time.Hour)) {
		t.Error("bounds should be inclusive")
	}
	if f.Contains(start.Add(-time.Millisecond)) {
		t.Error("before start should be excluded")
	}
}
