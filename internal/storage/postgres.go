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
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"bookreader/internal/domain"
	applog "bookreader/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps the state map in a shared Postgres database.
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenPostgres connects to dsn and applies the embedded migrations. A non-empty password
// overrides the one in dsn, so the secret can stay out of the config file.
func OpenPostgres(ctx context.Context, dsn, password string) (*PostgresStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "pg_open")
	if strings.TrimSpace(dsn) == "" {
		return nil, storeErr("open", errors.New("postgres dsn is required"))
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, storeErr("open", fmt.Errorf("parse dsn: %w", err))
	}
	if password != "" {
		cfg.Password = password
	}
	db := stdlib.OpenDB(*cfg)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		l.Warn("postgres unreachable", slog.String("host", cfg.Host), slog.Any("err", err))
		return nil, storeErr("open", fmt.Errorf("ping db: %w", err))
	}
	if err := applyMigrations(pctx, db, l); err != nil {
		_ = db.Close()
		return nil, storeErr("open", fmt.Errorf("migrate: %w", err))
	}
	l.Debug("postgres store ready", slog.String("host", cfg.Host), slog.String("db", cfg.Database))
	return &PostgresStore{db: db, log: l}, nil
}

// Load reads every document and its memos.
func (s *PostgresStore) Load(ctx context.Context) (domain.State, error) {
	st, err := loadRows(ctx, s.db)
	if err != nil {
		return domain.NewState(), storeErr("load", err)
	}
	return st, nil
}

// Save replaces all rows with st in one transaction.
func (s *PostgresStore) Save(ctx context.Context, st domain.State) error {
	if err := saveRows(ctx, s.db, st, dollarPlaceholders); err != nil {
		return storeErr("save", err)
	}
	return nil
}

// Search matches memo text with Postgres full-text search.
func (s *PostgresStore) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, id, page, title,
			ts_headline('simple', content, plainto_tsquery('simple', $1), 'StartSel=[,StopSel=]')
		FROM memos
		WHERE tsv @@ plainto_tsquery('simple', $1) AND ($2 = '' OR doc_id = $2)
		ORDER BY doc_id, page, seq
		LIMIT $3 OFFSET $4`, q.Text, q.DocID, limit, max(q.Offset, 0))
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

// Close closes the pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// applyMigrations applies embedded SQL migrations in filename order and records each one.
func applyMigrations(ctx context.Context, db *sql.DB, l *slog.Logger) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		v, err := parseMigrationVersion(fname)
		if err != nil {
			return err
		}
		if applied[v] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`, v, fname); err != nil {
			return fmt.Errorf("record %s: %w", fname, err)
		}
	}
	return nil
}

func parseMigrationVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// dollarPlaceholders rewrites '?' placeholders to $1, $2, ...
func dollarPlaceholders(q string) string {
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
