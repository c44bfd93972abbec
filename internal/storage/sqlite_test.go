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
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bookreader/internal/domain"

	_ "modernc.org/sqlite"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), DefaultSQLiteFileName))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteEmptyLoad(t *testing.T) {
	s := openTestSQLite(t)
	st, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st) != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

func TestSQLiteRoundTripKeepsMemoOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	want := sampleState()
	// insertion order differs from page order on purpose
	want["book.pdf"].Memos = append(want["book.pdf"].Memos, domain.Memo{Page: 1, Title: "C", Content: "early page", ID: "m-3"})
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteSaveReplacesEverything(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	_ = s.Save(ctx, sampleState())
	next := domain.State{"other.pdf": {CurrentPage: 2, ReadingDirection: domain.LeftToRight, Memos: []domain.Memo{}}}
	if err := s.Save(ctx, next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := s.Load(ctx)
	if diff := cmp.Diff(next, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestSQLiteSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	st := domain.State{
		"a.pdf": {CurrentPage: 1, ReadingDirection: domain.LeftToRight, Memos: []domain.Memo{
			{Page: 4, Title: "Villain", Content: "the red dragon sleeps", ID: "a1"},
			{Page: 9, Title: "Ending", Content: "credits roll", ID: "a2"},
		}},
		"b.cbz": {CurrentPage: 1, ReadingDirection: domain.RightToLeft, Memos: []domain.Memo{
			{Page: 2, Title: "Dragon", Content: "another one", ID: "b1"},
		}},
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	res, err := s.Search(ctx, SearchQuery{Text: "dragon"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 || res[0].MemoID != "a1" || res[1].MemoID != "b1" {
		t.Fatalf("unexpected results: %+v", res)
	}
	if !strings.Contains(res[0].Snippet, "[dragon]") {
		t.Fatalf("snippet not highlighted: %q", res[0].Snippet)
	}

	res, _ = s.Search(ctx, SearchQuery{Text: "dragon", DocID: "b.cbz"})
	if len(res) != 1 || res[0].DocID != "b.cbz" || res[0].Page != 2 {
		t.Fatalf("doc filter: %+v", res)
	}

	res, _ = s.Search(ctx, SearchQuery{PageFrom: 5})
	if len(res) != 1 || res[0].MemoID != "a2" {
		t.Fatalf("page filter without text: %+v", res)
	}

	// rewriting the rows must drop stale index entries
	st["a.pdf"].Memos = st["a.pdf"].Memos[1:]
	_ = s.Save(ctx, st)
	res, _ = s.Search(ctx, SearchQuery{Text: "sleeps"})
	if len(res) != 0 {
		t.Fatalf("stale FTS entries: %+v", res)
	}
}

func TestSQLiteFreshDatabaseIsAtCurrentSchema(t *testing.T) {
	s := openTestSQLite(t)
	v, err := s.SchemaVersion(context.Background())
	if err != nil || v != sqliteSchemaVersion {
		t.Fatalf("schema version = %d (%v), want %d", v, err, sqliteSchemaVersion)
	}
}

func TestSQLiteMigratesV1(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path := filepath.Join(t.TempDir(), DefaultSQLiteFileName)
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)", filepath.ToSlash(path)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stmts := []string{
		`CREATE TABLE version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	_ = db.Close()

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	if v, _ := s.SchemaVersion(ctx); v != 2 {
		t.Fatalf("schema = %d, want 2", v)
	}
	var name string
	if err := s.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='index' AND name='idx_memos_page'`).Scan(&name); err != nil {
		t.Fatalf("expected idx_memos_page after migration: %v", err)
	}
	var mode string
	if err := s.db.QueryRowContext(ctx, `PRAGMA journal_mode;`).Scan(&mode); err != nil || !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q (%v), want wal", mode, err)
	}
}
