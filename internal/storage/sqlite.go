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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookreader/internal/domain"
	applog "bookreader/internal/log"
	"bookreader/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DefaultSQLiteFileName = "bookreader.sqlite"

	// sqliteSchemaVersion tracks the local schema. Bump it together with a step in migrateSQLite.
	sqliteSchemaVersion = 2
)

// SQLiteStore keeps the state map in documents/memos tables and indexes memo text with FTS5.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path with WAL enabled and the schema
// migrated to the current version.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(slog.String("path", path))
	db, err := openSQLiteDB(ctx, path)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, storeErr("open", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, storeErr("open", err)
	}
	if err := ensureStateSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, storeErr("open", err)
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, storeErr("open", err)
	}
	l.Debug("sqlite store ready")
	return &SQLiteStore{db: db, path: path, log: l}, nil
}

func openSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; the reader UI never needs more
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh databases start at 1 and migrate forward like everybody else
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureStateSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id            TEXT    PRIMARY KEY,
			current_page      INTEGER NOT NULL DEFAULT 1,
			reading_direction TEXT    NOT NULL DEFAULT 'left_to_right'
		);`,
		`CREATE TABLE IF NOT EXISTS memos (
			mid     INTEGER PRIMARY KEY,
			id      TEXT    NOT NULL UNIQUE,
			doc_id  TEXT    NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			seq     INTEGER NOT NULL,
			page    INTEGER NOT NULL,
			title   TEXT    NOT NULL,
			content TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memos_doc ON memos(doc_id, seq);`,
		// external-content FTS so snippet() can read the columns back
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_memos USING fts5(
			title,
			content,
			content='memos',
			content_rowid='mid',
			tokenize = 'unicode61'
		);`,
		`CREATE TRIGGER IF NOT EXISTS memos_ai AFTER INSERT ON memos BEGIN
			INSERT INTO fts_memos(rowid, title, content) VALUES (new.mid, new.title, new.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memos_ad AFTER DELETE ON memos BEGIN
			INSERT INTO fts_memos(fts_memos, rowid, title, content) VALUES ('delete', old.mid, old.title, old.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memos_au AFTER UPDATE OF title, content ON memos BEGIN
			INSERT INTO fts_memos(fts_memos, rowid, title, content) VALUES ('delete', old.mid, old.title, old.content);
			INSERT INTO fts_memos(rowid, title, content) VALUES (new.mid, new.title, new.content);
		END;`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure state schema: %w", err)
		}
	}
	return nil
}

// migrateSQLite applies incremental schema steps up to sqliteSchemaVersion.
func migrateSQLite(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	// never downgrade
	for cur < sqliteSchemaVersion {
		next := cur + 1
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		var stmts []string
		switch next {
		case 2:
			stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_memos_page ON memos(doc_id, page);`)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

// Load reads every document and its memos.
func (s *SQLiteStore) Load(ctx context.Context) (domain.State, error) {
	st, err := loadRows(ctx, s.db)
	if err != nil {
		return domain.NewState(), storeErr("load", err)
	}
	return st, nil
}

// Save replaces all rows with st in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, st domain.State) error {
	if err := saveRows(ctx, s.db, st, questionMarks); err != nil {
		return storeErr("save", err)
	}
	s.log.Debug("state saved", slog.Int("docs", len(st)))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// loadRows reads the documents/memos tables shared by the SQL backends.
func loadRows(ctx context.Context, db *sql.DB) (domain.State, error) {
	st := domain.NewState()
	rows, err := db.QueryContext(ctx, `SELECT doc_id, current_page, reading_direction FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	for rows.Next() {
		var id, dir string
		var page int
		if err := rows.Scan(&id, &page, &dir); err != nil {
			_ = rows.Close()
			return nil, err
		}
		st[id] = &domain.DocState{CurrentPage: page, ReadingDirection: domain.Direction(dir), Memos: []domain.Memo{}}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	mrows, err := db.QueryContext(ctx, `SELECT doc_id, id, page, title, content FROM memos ORDER BY doc_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("select memos: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var docID string
		var m domain.Memo
		if err := mrows.Scan(&docID, &m.ID, &m.Page, &m.Title, &m.Content); err != nil {
			return nil, err
		}
		if d := st[docID]; d != nil {
			d.Memos = append(d.Memos, m)
		}
	}
	return st, mrows.Err()
}

// saveRows rewrites both tables. rebind adapts '?' placeholders to the driver's style.
func saveRows(ctx context.Context, db *sql.DB, st domain.State, rebind func(string) string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memos`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear memos: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear documents: %w", err)
	}
	insDoc, err := tx.PrepareContext(ctx, rebind(`INSERT INTO documents(doc_id, current_page, reading_direction) VALUES(?,?,?)`))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert document: %w", err)
	}
	defer insDoc.Close()
	insMemo, err := tx.PrepareContext(ctx, rebind(`INSERT INTO memos(id, doc_id, seq, page, title, content) VALUES(?,?,?,?,?,?)`))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert memo: %w", err)
	}
	defer insMemo.Close()
	for id, d := range st {
		if d == nil {
			continue
		}
		if _, err := insDoc.ExecContext(ctx, id, d.CurrentPage, string(d.ReadingDirection)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert document %q: %w", id, err)
		}
		for i, m := range d.Memos {
			mid := m.ID
			if mid == "" {
				mid = domain.NewMemoID()
			}
			if _, err := insMemo.ExecContext(ctx, mid, id, i, m.Page, m.Title, m.Content); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert memo: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func questionMarks(q string) string { return q }
