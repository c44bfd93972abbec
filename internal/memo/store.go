/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package memo keeps the per-document list of page annotations.
package memo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bookreader/internal/domain"
	applog "bookreader/internal/log"
)

// Flusher writes the current state through to durable storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Store edits the memos of one document. Memos keep insertion order.
type Store struct {
	st    *domain.DocState
	total int
	fl    Flusher
	log   *slog.Logger
}

// New returns a store over st.Memos for a document of total pages.
func New(st *domain.DocState, total int, fl Flusher) *Store {
	if st.Memos == nil {
		st.Memos = []domain.Memo{}
	}
	return &Store{st: st, total: total, fl: fl, log: applog.WithComponent("memo")}
}

// Add appends a memo for page and flushes. Nothing is stored when validation fails.
func (s *Store) Add(ctx context.Context, page int, title, content string) (domain.Memo, error) {
	if page < 1 || page > s.total {
		return domain.Memo{}, &domain.ValidationError{Field: "page", Reason: fmt.Sprintf("must be within 1..%d", s.total)}
	}
	if err := validate(title, content); err != nil {
		return domain.Memo{}, err
	}
	m := domain.Memo{Page: page, Title: title, Content: content, ID: domain.NewMemoID()}
	s.st.Memos = append(s.st.Memos, m)
	s.log.Debug("memo added", slog.String("id", m.ID), slog.Int("page", page))
	return m, s.flush(ctx)
}

// List returns a copy of the memos in insertion order.
func (s *Store) List() []domain.Memo {
	out := make([]domain.Memo, len(s.st.Memos))
	copy(out, s.st.Memos)
	return out
}

// Len reports the number of memos.
func (s *Store) Len() int { return len(s.st.Memos) }

// Get returns the memo with id.
func (s *Store) Get(id string) (domain.Memo, error) {
	i := s.index(id)
	if i < 0 {
		return domain.Memo{}, fmt.Errorf("memo %q: %w", id, domain.ErrMemoNotFound)
	}
	return s.st.Memos[i], nil
}

// Update replaces title and content of the memo with id. Its page and position stay.
func (s *Store) Update(ctx context.Context, id, title, content string) (domain.Memo, error) {
	if err := validate(title, content); err != nil {
		return domain.Memo{}, err
	}
	i := s.index(id)
	if i < 0 {
		return domain.Memo{}, fmt.Errorf("memo %q: %w", id, domain.ErrMemoNotFound)
	}
	s.st.Memos[i].Title = title
	s.st.Memos[i].Content = content
	s.log.Debug("memo updated", slog.String("id", id))
	return s.st.Memos[i], s.flush(ctx)
}

// Remove deletes the memo with id and flushes. An unknown id changes nothing.
func (s *Store) Remove(ctx context.Context, id string) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("memo %q: %w", id, domain.ErrMemoNotFound)
	}
	s.st.Memos = append(s.st.Memos[:i], s.st.Memos[i+1:]...)
	s.log.Debug("memo removed", slog.String("id", id))
	return s.flush(ctx)
}

// Match finds the first memo on page with title.
func (s *Store) Match(page int, title string) (domain.Memo, bool) {
	for _, m := range s.st.Memos {
		if m.Page == page && m.Title == title {
			return m, true
		}
	}
	return domain.Memo{}, false
}

// JumpTo returns the page of the memo with id. Navigation is left to the caller.
func (s *Store) JumpTo(id string) (int, error) {
	m, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return m.Page, nil
}

// OnPage lists the memos attached to any of pages, in insertion order.
func (s *Store) OnPage(pages ...int) []domain.Memo {
	var out []domain.Memo
	for _, m := range s.st.Memos {
		for _, p := range pages {
			if m.Page == p {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (s *Store) index(id string) int {
	for i, m := range s.st.Memos {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) flush(ctx context.Context) error {
	if s.fl == nil {
		return nil
	}
	return s.fl.Flush(ctx)
}

// validate treats whitespace-only text as empty.
func validate(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(content) == "" {
		return &domain.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	return nil
}
