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
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Keyword bonuses applied when a query word matches a record. Only the
// first list a word appears in counts.
var keywordBonuses = []struct {
	words []string
	bonus int
}{
	{[]string{"music", "音乐", "小提琴", "violin", "乐器", "instrument"}, 3},
	{[]string{"stock", "股票", "analysis", "分析", "market", "市场"}, 2},
	{[]string{"学习", "learn", "learning", "练习", "practice"}, 2},
}

// categoryBonus is added when a query word equals the record's category.
const categoryBonus = 5

var sentenceSplit = regexp.MustCompile(`[\s，。、]`)

// Match is a scored search hit.
type Match struct {
	Record ServiceRecord
	Score  int
	// Matched is how many query words were found in the record.
	Matched int
}

// CleanQuery expands long phrases into words. Words over ten characters
// are split on whitespace and CJK punctuation; fragments of one character
// are dropped.
func CleanQuery(words []string) []string {
	var out []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if utf8.RuneCountInString(w) <= 10 {
			out = append(out, w)
			continue
		}
		for _, part := range sentenceSplit.Split(w, -1) {
			if utf8.RuneCountInString(part) > 1 {
				out = append(out, part)
			}
		}
	}
	return out
}

// score rates one record against cleaned query words.
func score(r ServiceRecord, words []string) (total, matched int) {
	text := strings.ToLower(strings.Join(r.Tags, " ") + " " + r.Category + " " + r.Title + " " + r.ID)

	for _, w := range words {
		lw := strings.ToLower(w)
		if !strings.Contains(text, lw) {
			continue
		}
		total++
		matched++
		for _, kb := range keywordBonuses {
			if slices.Contains(kb.words, lw) {
				total += kb.bonus
				break
			}
		}
	}

	if r.Category != "" && slices.Contains(words, r.Category) {
		total += categoryBonus
	}
	return total, matched
}

// rank scores every record and returns hits with a positive score, best
// first. Ties keep registry order.
func rank(records []ServiceRecord, queryWords []string) []Match {
	words := CleanQuery(queryWords)
	if len(words) == 0 {
		return nil
	}

	var matches []Match
	for _, r := range records {
		total, matched := score(r, words)
		if total <= 0 {
			continue
		}
		rec := r.Clone()
		rec.SimilarityScore = min(1, float64(matched)/float64(len(words)))
		matches = append(matches, Match{Record: rec, Score: total, Matched: matched})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return matches
}
