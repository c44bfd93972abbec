/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package app wires configuration, the state store, a document and its session together for the
// command line and desktop shells.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"bookreader/internal/config"
	"bookreader/internal/domain"
	"bookreader/internal/history"
	applog "bookreader/internal/log"
	"bookreader/internal/render"
	"bookreader/internal/session"
	"bookreader/internal/storage"
	"bookreader/internal/telemetry"
)

// DefaultSpreadWidth is used when no viewport size is known, e.g. on the command line.
const DefaultSpreadWidth = 2

// Options for Open.
type Options struct {
	Config   config.AppConfig
	Password string
	// SpreadWidth overrides DefaultSpreadWidth when > 0.
	SpreadWidth int
	History     *history.Manager
}

// Reader is one open document with everything it needs.
type Reader struct {
	Config  config.AppConfig
	Store   storage.Gateway
	Source  render.Source
	Cache   *storage.PageCache
	Session *session.Session

	statePath string
	log       *slog.Logger
}

// OpenStore opens the configured state store and returns it with its file path
// (empty for Postgres).
func OpenStore(ctx context.Context, cfg config.AppConfig, password string) (storage.Gateway, string, error) {
	path := ""
	if cfg.Store.Backend != storage.BackendPostgres {
		p, err := cfg.StorePath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve store path: %w", err)
		}
		path = p
	}
	gw, err := storage.Open(ctx, storage.Options{
		Backend:  cfg.Store.Backend,
		Path:     path,
		DSN:      cfg.Store.PostgresDSN,
		Password: password,
	})
	if err != nil {
		return nil, "", fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	return gw, path, nil
}

// Open opens docPath and its session. Every resource opened before a failure is closed again.
func Open(ctx context.Context, docPath string, opts Options) (r *Reader, err error) {
	cfg := opts.Config
	l := applog.WithOperation(applog.WithComponent("app"), "open")
	r = &Reader{Config: cfg, log: l}
	defer func() {
		if err != nil {
			_ = r.Close()
			r = nil
		}
	}()

	if r.Store, r.statePath, err = OpenStore(ctx, cfg, opts.Password); err != nil {
		return r, err
	}
	if r.Source, err = render.Open(docPath, cfg.Viewer.Identity); err != nil {
		return r, err
	}
	if cfg.Cache.Enabled {
		if cerr := r.openCache(ctx); cerr != nil {
			// rendering still works without the cache
			l.Warn("page cache unavailable", slog.Any("err", cerr))
		}
	}
	width := opts.SpreadWidth
	if width <= 0 {
		width = DefaultSpreadWidth
	}
	r.Session, err = session.Open(ctx, r.Store, r.Source, session.Options{
		DefaultDirection: cfg.Viewer.Direction(),
		SpreadWidth:      width,
		History:          opts.History,
	})
	if err != nil {
		return r, err
	}
	telemetry.Default().Event(telemetry.EventSessionOpen, map[string]any{
		"format": documentFormat(docPath),
		"pages":  telemetry.PageBucket(r.Source.TotalPages()),
		"store":  cfg.Store.Backend,
	})
	return r, nil
}

func (r *Reader) openCache(ctx context.Context) error {
	path, err := r.Config.CachePath()
	if err != nil {
		return err
	}
	c, err := storage.OpenPageCache(ctx, path, r.Config.Cache.MaxBytes)
	if err != nil {
		return err
	}
	r.Cache = c
	r.Source = render.WithCache(r.Source, c)
	return nil
}

// StatePath is the JSON file or SQLite database holding the state, empty for Postgres.
func (r *Reader) StatePath() string { return r.statePath }

// ReportDir is where crash reports go: next to the state, or the data dir for Postgres.
func (r *Reader) ReportDir() string {
	if r.statePath != "" {
		return filepath.Dir(r.statePath)
	}
	dir, _ := config.DataDir()
	return dir
}

// Close releases the document, the cache and the store.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Source != nil {
		errs = append(errs, r.Source.Close())
	}
	if r.Cache != nil {
		errs = append(errs, r.Cache.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	return errors.Join(errs...)
}

// Search runs q on stores with a native index and falls back to scanning the loaded state.
func Search(ctx context.Context, gw storage.Gateway, q storage.SearchQuery) ([]storage.SearchResult, error) {
	if s, ok := gw.(storage.Searcher); ok {
		return s.Search(ctx, q)
	}
	st, err := gw.Load(ctx)
	if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
		return nil, err
	}
	return storage.SearchState(st, q), err
}

func documentFormat(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "dir"
	}
	return ext
}
