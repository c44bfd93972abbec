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
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"bookreader/internal/domain"
)

// Searcher is implemented by the stores that can search memos across documents.
type Searcher interface {
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}

// SearchQuery describes a memo search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT). An empty Text lists
// memos with the filters applied. DocID restricts to one document; PageFrom/To are inclusive and 0
// means unset.
type SearchQuery struct {
	Text     string
	DocID    string
	PageFrom int
	PageTo   int
	Limit    int
	Offset   int
}

// SearchResult is one matching memo. Snippet marks hits with [ ] when Text was used.
type SearchResult struct {
	DocID   string
	MemoID  string
	Page    int
	Title   string
	Snippet string
}

// Search runs q over the memos of every document.
func (s *SQLiteStore) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT m.doc_id, m.id, m.page, m.title, snippet(fts_memos, 1, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_memos JOIN memos m ON fts_memos.rowid = m.mid\n")
		sb.WriteString("WHERE fts_memos MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT m.doc_id, m.id, m.page, m.title, ''\n")
		sb.WriteString("FROM memos m\nWHERE 1=1\n")
	}
	if s := strings.TrimSpace(q.DocID); s != "" {
		sb.WriteString(" AND m.doc_id = ?\n")
		args = append(args, s)
	}
	if q.PageFrom > 0 {
		sb.WriteString(" AND m.page >= ?\n")
		args = append(args, q.PageFrom)
	}
	if q.PageTo > 0 {
		sb.WriteString(" AND m.page <= ?\n")
		args = append(args, q.PageTo)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	sb.WriteString("ORDER BY m.doc_id, m.page, m.seq\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocID, &r.MemoID, &r.Page, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchState searches an in-memory state map, used for the JSON file store. Every whitespace
// separated term of q.Text must occur in the title or content, case-insensitively. Results use the
// same order and snippet markers as the SQLite search.
func SearchState(st domain.State, q SearchQuery) []SearchResult {
	terms := strings.Fields(strings.ToLower(q.Text))
	ids := make([]string, 0, len(st))
	for id := range st {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []SearchResult
	for _, id := range ids {
		ds := st[id]
		if ds == nil || (q.DocID != "" && q.DocID != id) {
			continue
		}
		memos := append([]domain.Memo(nil), ds.Memos...)
		sort.SliceStable(memos, func(i, j int) bool { return memos[i].Page < memos[j].Page })
		for _, m := range memos {
			if (q.PageFrom > 0 && m.Page < q.PageFrom) || (q.PageTo > 0 && m.Page > q.PageTo) {
				continue
			}
			if !containsAll(strings.ToLower(m.Title+"\n"+m.Content), terms) {
				continue
			}
			r := SearchResult{DocID: id, MemoID: m.ID, Page: m.Page, Title: m.Title}
			if len(terms) > 0 {
				r.Snippet = snippetAround(m.Content, terms[0], 40)
			}
			out = append(out, r)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(q.Offset, 0)
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func containsAll(hay string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(hay, t) {
			return false
		}
	}
	return true
}

// snippetAround brackets the first occurrence of term in s and keeps up to radius bytes of context
// on each side, cut at rune boundaries.
func snippetAround(s, term string, radius int) string {
	i := strings.Index(strings.ToLower(s), term)
	if i < 0 {
		return ""
	}
	// ToLower may change byte lengths for some scripts; fall back to the plain prefix then.
	if i+len(term) > len(s) {
		return s
	}
	start, end := max(0, i-radius), min(len(s), i+len(term)+radius)
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	var sb strings.Builder
	if start > 0 {
		sb.WriteString("…")
	}
	sb.WriteString(s[start:i])
	sb.WriteString("[")
	sb.WriteString(s[i : i+len(term)])
	sb.WriteString("]")
	sb.WriteString(s[i+len(term) : end])
	if end < len(s) {
		sb.WriteString("…")
	}
	return sb.String()
}
