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
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeFrame is an inclusive instant range.
type TimeFrame struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the frame, bounds included.
func (f TimeFrame) Contains(t time.Time) bool {
	return !t.Before(f.Start) && !t.After(f.End)
}

type timeRule struct {
	re      *regexp.Regexp
	resolve func(now time.Time, m []string) TimeFrame
}

// Rules are checked in order; the first match wins.
var timeRules = []timeRule{
	{
		re: regexp.MustCompile(`(?i)\byesterday\b|昨天`),
		resolve: func(now time.Time, _ []string) TimeFrame {
			today := startOfDay(now)
			return TimeFrame{Start: today.AddDate(0, 0, -1), End: today.Add(-time.Millisecond)}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\blast\s+week\b|上周`),
		resolve: func(now time.Time, _ []string) TimeFrame {
			return TimeFrame{Start: now.AddDate(0, 0, -7), End: now}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\blast\s+month\b|上个月`),
		resolve: func(now time.Time, _ []string) TimeFrame {
			return TimeFrame{Start: now.AddDate(0, -1, 0), End: now}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\btoday\b|今天`),
		resolve: func(now time.Time, _ []string) TimeFrame {
			today := startOfDay(now)
			return TimeFrame{Start: today, End: today.AddDate(0, 0, 1).Add(-time.Millisecond)}
		},
	},
	{
		re: regexp.MustCompile(`(?i)(\d+)\s*days?\s+ago|(\d+)\s*天前`),
		resolve: func(now time.Time, m []string) TimeFrame {
			return TimeFrame{Start: now.AddDate(0, 0, -firstNumber(m)), End: now}
		},
	},
	{
		re: regexp.MustCompile(`(?i)(\d+)\s*hours?\s+ago|(\d+)\s*小时前`),
		resolve: func(now time.Time, m []string) TimeFrame {
			return TimeFrame{Start: now.Add(-time.Duration(firstNumber(m)) * time.Hour), End: now}
		},
	},
}

// ParseTimeFrame resolves the first relative time expression in query
// against now. It returns the frame, the query with the expression removed,
// and whether an expression was found.
func ParseTimeFrame(query string, now time.Time) (TimeFrame, string, bool) {
	for _, rule := range timeRules {
		loc := rule.re.FindStringSubmatchIndex(query)
		if loc == nil {
			continue
		}
		m := rule.re.FindStringSubmatch(query)
		residual := query[:loc[0]] + " " + query[loc[1]:]
		return rule.resolve(now, m), cleanResidual(residual), true
	}
	return TimeFrame{}, strings.TrimSpace(query), false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func firstNumber(groups []string) int {
	for _, g := range groups[1:] {
		if g == "" {
			continue
		}
		if n, err := strconv.Atoi(g); err == nil {
			return n
		}
	}
	return 0
}

// cleanResidual drops filler words that only made sense next to the time
// expression ("what did I store yesterday" -> "what did I store").
func cleanResidual(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '，' || r == '?' || r == '？'
	})
	out := fields[:0]
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "from", "since", "in", "on", "during", "the":
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
