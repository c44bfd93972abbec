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

// This file defines the data model shared by the navigation controller, the memo store and the
// persistence gateway. The JSON tags mirror the memos.json layout written by earlier versions of
// the viewer and must not change.

import (
	"strings"

	"github.com/google/uuid"
)

// Direction is the reading direction of a document.
type Direction string

const (
	LeftToRight Direction = "left_to_right"
	RightToLeft Direction = "right_to_left"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool { return d == LeftToRight || d == RightToLeft }

// Toggle returns the opposite direction. Unknown values toggle to RightToLeft.
func (d Direction) Toggle() Direction {
	if d == RightToLeft {
		return LeftToRight
	}
	return RightToLeft
}

// ParseDirection accepts the persisted literals as well as the short ltr/rtl forms.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(LeftToRight), "ltr":
		return LeftToRight, true
	case string(RightToLeft), "rtl":
		return RightToLeft, true
	}
	return "", false
}

// Memo is a page-anchored annotation.
// ID is assigned at creation and is the only identity used for edit/remove.
type Memo struct {
	Page    int    `json:"page"`
	Title   string `json:"title"`
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
}

// NewMemoID returns a fresh stable memo identifier.
func NewMemoID() string { return uuid.New().String() }

// DocState is the persisted part of a document session.
// totalPages and spreadWidth are intentionally absent; they are recomputed on open.
type DocState struct {
	CurrentPage      int       `json:"current_page"`
	Memos            []Memo    `json:"memo"`
	ReadingDirection Direction `json:"reading_direction"`
}

// State maps a document id to its persisted state.
type State map[string]*DocState

// NewState returns an empty state map.
func NewState() State { return State{} }

// Ensure returns the entry for id, creating it with the cover page and dir when missing.
func (s State) Ensure(id string, dir Direction) *DocState {
	if ds, ok := s[id]; ok && ds != nil {
		return ds
	}
	if !dir.Valid() {
		dir = LeftToRight
	}
	ds := &DocState{CurrentPage: 1, Memos: []Memo{}, ReadingDirection: dir}
	s[id] = ds
	return ds
}

// Normalize repairs entries read from older or hand-edited files: nil entries are dropped,
// pages below 1 become the cover, unknown directions fall back to left_to_right, memo lists are
// never nil and memos without an id get one. It reports whether anything changed.
func (s State) Normalize() bool {
	changed := false
	for id, ds := range s {
		if ds == nil {
			delete(s, id)
			changed = true
			continue
		}
		if ds.CurrentPage < 1 {
			ds.CurrentPage = 1
			changed = true
		}
		if !ds.ReadingDirection.Valid() {
			if d, ok := ParseDirection(string(ds.ReadingDirection)); ok {
				ds.ReadingDirection = d
			} else {
				ds.ReadingDirection = LeftToRight
			}
			changed = true
		}
		if ds.Memos == nil {
			ds.Memos = []Memo{}
			changed = true
		}
		for i := range ds.Memos {
			if ds.Memos[i].ID == "" {
				ds.Memos[i].ID = NewMemoID()
				changed = true
			}
		}
	}
	return changed
}

// Clone returns a deep copy of the state map.
func (s State) Clone() State {
	out := make(State, len(s))
	for id, ds := range s {
		if ds == nil {
			continue
		}
		cp := *ds
		cp.Memos = append([]Memo{}, ds.Memos...)
		out[id] = &cp
	}
	return out
}
