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
	"strings"

	"bookreader/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Gateway loads and saves the whole state map. Load on a store that does not exist yet returns an
// empty map and no error. Save replaces everything.
type Gateway interface {
	Load(ctx context.Context) (domain.State, error)
	Save(ctx context.Context, st domain.State) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the JSON file or SQLite database path.
	Path string
	// DSN is the Postgres connection string; Password is injected into it when set.
	DSN      string
	Password string
}

// Open returns the gateway for opts.Backend. An empty backend means the JSON file store.
func Open(ctx context.Context, opts Options) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		fs, err := NewFileStore(opts.Path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := OpenPostgres(ctx, opts.DSN, opts.Password)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.StoreError{Op: op, Err: err}
}
