/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStateJSONUsesPersistedFieldNames(t *testing.T) {
	st := NewState()
	ds := st.Ensure("book.pdf", RightToLeft)
	ds.CurrentPage = 4
	ds.Memos = append(ds.Memos, Memo{ID: "m1", Page: 3, Title: "A", Content: "note"})

	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"current_page":4`, `"reading_direction":"right_to_left"`, `"memo":[`, `"page":3`, `"title":"A"`, `"content":"note"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("marshalled state %s missing %s", s, want)
		}
	}
}

func TestLegacyStateLoadsAndNormalizes(t *testing.T) {
	legacy := `{
    "manga.pdf": {
        "current_page": 0,
        "memo": [
            {"page": 3, "title": "A", "content": "note"}
        ],
        "reading_direction": "right_to_left"
    },
    "old.pdf": {"current_page": 5}
}`
	var st State
	if err := json.Unmarshal([]byte(legacy), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !st.Normalize() {
		t.Fatalf("expected Normalize to report changes")
	}
	m := st["manga.pdf"]
	if m.CurrentPage != 1 {
		t.Fatalf("current_page = %d, want 1", m.CurrentPage)
	}
	if m.ReadingDirection != RightToLeft {
		t.Fatalf("direction = %q", m.ReadingDirection)
	}
	if m.Memos[0].ID == "" {
		t.Fatalf("legacy memo did not get an id")
	}
	o := st["old.pdf"]
	if o.ReadingDirection != LeftToRight || o.Memos == nil {
		t.Fatalf("old.pdf not defaulted: %+v", o)
	}
	if st.Normalize() {
		t.Fatalf("second Normalize should be a no-op")
	}
}

func TestEnsureKeepsExistingEntry(t *testing.T) {
	st := NewState()
	a := st.Ensure("x", LeftToRight)
	a.CurrentPage = 7
	b := st.Ensure("x", RightToLeft)
	if a != b || b.CurrentPage != 7 || b.ReadingDirection != LeftToRight {
		t.Fatalf("Ensure replaced an existing entry: %+v", b)
	}
}

func TestDirectionToggleAndParse(t *testing.T) {
	if LeftToRight.Toggle() != RightToLeft || RightToLeft.Toggle() != LeftToRight {
		t.Fatalf("toggle is not an involution")
	}
	for in, want := range map[string]Direction{"ltr": LeftToRight, "RTL": RightToLeft, "left_to_right": LeftToRight} {
		got, ok := ParseDirection(in)
		if !ok || got != want {
			t.Fatalf("ParseDirection(%q) = %q,%v", in, got, ok)
		}
	}
	if _, ok := ParseDirection("up"); ok {
		t.Fatalf("ParseDirection accepted garbage")
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := NewState()
	st.Ensure("d", LeftToRight).Memos = []Memo{{ID: "1", Page: 1, Title: "t", Content: "c"}}
	cp := st.Clone()
	cp["d"].Memos[0].Title = "changed"
	cp["d"].CurrentPage = 9
	if st["d"].Memos[0].Title != "t" || st["d"].CurrentPage != 1 {
		t.Fatalf("Clone shares memory with the original")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &ValidationError{Field: "title", Reason: "empty"}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidationError does not match ErrValidation")
	}
	err = &StoreError{Op: "save", Err: errors.New("disk full")}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("StoreError does not match ErrStoreUnavailable")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("StoreError hides cause: %v", err)
	}
}
