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
	"strings"
	"time"

	applog "bookreader/internal/log"
)

const (
	DefaultCacheFileName = "pages.sqlite"
	DefaultCacheMaxBytes = 256 * 1024 * 1024
)

// PageCache stores encoded page renders keyed by (document, page, dpi). Rows are evicted least
// recently used first once the total blob size exceeds MaxBytes.
type PageCache struct {
	db       *sql.DB
	MaxBytes int64
	log      *slog.Logger
}

// OpenPageCache opens the cache database at path. maxBytes <= 0 disables eviction.
func OpenPageCache(ctx context.Context, path string, maxBytes int64) (*PageCache, error) {
	db, err := openSQLiteDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS pages (
		id          INTEGER PRIMARY KEY,
		doc_id      TEXT    NOT NULL,
		page        INTEGER NOT NULL,
		dpi         INTEGER NOT NULL,
		blob        BLOB    NOT NULL,
		size        INTEGER NOT NULL,
		updated_at  TEXT    NOT NULL,
		last_access INTEGER NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure pages table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS ux_pages_variant ON pages(doc_id, page, dpi)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create variant index: %w", err)
	}
	_, _ = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_pages_access ON pages(last_access)`)
	return &PageCache{db: db, MaxBytes: maxBytes, log: applog.WithComponent("cache")}, nil
}

// Get returns the cached blob and touches its access time. A miss is (nil, false, nil).
func (c *PageCache) Get(ctx context.Context, docID string, page, dpi int) ([]byte, bool, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT blob FROM pages WHERE doc_id=? AND page=? AND dpi=?`, docID, page, dpi).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query page cache: %w", err)
	}
	_, _ = c.db.ExecContext(ctx, `UPDATE pages SET last_access=? WHERE doc_id=? AND page=? AND dpi=?`, accessStamp(), docID, page, dpi)
	return blob, true, nil
}

// Put upserts a blob and evicts down to MaxBytes.
func (c *PageCache) Put(ctx context.Context, docID string, page, dpi int, blob []byte) error {
	if strings.TrimSpace(docID) == "" {
		return errors.New("document id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.ExecContext(ctx, `INSERT INTO pages(doc_id,page,dpi,blob,size,updated_at,last_access)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(doc_id,page,dpi) DO UPDATE SET blob=excluded.blob, size=excluded.size, updated_at=excluded.updated_at, last_access=excluded.last_access`,
		docID, page, dpi, blob, len(blob), now, accessStamp())
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	if c.MaxBytes > 0 {
		return c.evictToFit(ctx)
	}
	return nil
}

// TotalBytes returns the size of all cached blobs.
func (c *PageCache) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM pages`).Scan(&total)
	return total, err
}

// Purge drops every cached page of docID.
func (c *PageCache) Purge(ctx context.Context, docID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM pages WHERE doc_id=?`, docID)
	return err
}

// Close closes the cache database.
func (c *PageCache) Close() error { return c.db.Close() }

func (c *PageCache) evictToFit(ctx context.Context) error {
	total, err := c.TotalBytes(ctx)
	if err != nil {
		return fmt.Errorf("sum page sizes: %w", err)
	}
	if total <= c.MaxBytes {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, size FROM pages ORDER BY last_access ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	var victims []any
	cur := total
	for rows.Next() {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, id)
		cur -= sz
		if cur <= c.MaxBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// the cursor must be closed before writing on the single connection
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	q := `DELETE FROM pages WHERE id IN (` + placeholders(len(victims)) + `)`
	if _, err := c.db.ExecContext(ctx, q, victims...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	c.log.Debug("page cache evicted", slog.Int("rows", len(victims)), slog.Int64("bytes_left", cur))
	return nil
}

// accessStamp orders accesses; nanoseconds keep rapid consecutive touches apart.
func accessStamp() int64 { return time.Now().UnixNano() }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
