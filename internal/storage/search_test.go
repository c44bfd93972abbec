/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bookreader/internal/domain"
)

func searchFixture() domain.State {
	return domain.State{
		"a.pdf": {CurrentPage: 1, ReadingDirection: domain.LeftToRight, Memos: []domain.Memo{
			{Page: 9, Title: "Ending", Content: "credits roll after the dragon leaves", ID: "a2"},
			{Page: 4, Title: "Villain", Content: "the red dragon sleeps", ID: "a1"},
		}},
		"b.cbz": {CurrentPage: 1, ReadingDirection: domain.RightToLeft, Memos: []domain.Memo{
			{Page: 2, Title: "Dragon", Content: "another one", ID: "b1"},
			{Page: 3, Title: "Städte", Content: "Über den Wolken fliegt ein Drache", ID: "b2"},
		}},
	}
}

func memoIDs(res []SearchResult) []string {
	out := make([]string, 0, len(res))
	for _, r := range res {
		out = append(out, r.MemoID)
	}
	return out
}

func TestSearchState(t *testing.T) {
	st := searchFixture()
	tests := []struct {
		name string
		q    SearchQuery
		want []string
	}{
		{"term in content and title", SearchQuery{Text: "Dragon"}, []string{"a1", "a2", "b1"}},
		{"all terms required", SearchQuery{Text: "dragon sleeps"}, []string{"a1"}},
		{"doc filter", SearchQuery{Text: "dragon", DocID: "b.cbz"}, []string{"b1"}},
		{"page range", SearchQuery{PageFrom: 3, PageTo: 4}, []string{"a1", "b2"}},
		{"unicode", SearchQuery{Text: "über"}, []string{"b2"}},
		{"limit and offset", SearchQuery{Text: "dragon", Limit: 1, Offset: 1}, []string{"a2"}},
		{"offset past end", SearchQuery{Text: "dragon", Offset: 10}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := memoIDs(SearchState(st, tc.q))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSnippetAround(t *testing.T) {
	got := snippetAround("the red dragon sleeps", "dragon", 4)
	if got != "…red [dragon] sle…" {
		t.Fatalf("snippet = %q", got)
	}
	if snippetAround("abc", "x", 4) != "" {
		t.Fatalf("no hit should give an empty snippet")
	}
	if got := snippetAround("ab dragon", "dragon", 40); got != "ab [dragon]" {
		t.Fatalf("short snippet = %q", got)
	}
}

// The file store search and the SQLite FTS search must agree on simple single-word queries.
func TestSearchParityFileVsSQLite(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	st := searchFixture()
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var backends []Searcher = []Searcher{s}
	if os.Getenv("BR_TEST_PG_DSN") != "" {
		pg := openTestPostgres(t)
		if err := pg.Save(ctx, st); err != nil {
			t.Fatalf("postgres Save: %v", err)
		}
		backends = append(backends, pg)
	}
	for _, term := range []string{"dragon", "credits", "wolken", "another"} {
		want := memoIDs(SearchState(st, SearchQuery{Text: term}))
		sort.Strings(want)
		for _, b := range backends {
			res, err := b.Search(ctx, SearchQuery{Text: term})
			if err != nil {
				t.Fatalf("%T Search(%q): %v", b, term, err)
			}
			got := memoIDs(res)
			sort.Strings(got)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("%T %q (-file +db):\n%s", b, term, diff)
			}
		}
	}
}
