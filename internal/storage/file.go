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
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"bookreader/internal/domain"
	applog "bookreader/internal/log"
)

const (
	DefaultStateFileName = "memos.json"
	BackupsDirName       = "backups"
	DefaultMaxBackups    = 20
	// DefaultBackupInterval spaces backups so a burst of page turns keeps one copy, not one per turn.
	DefaultBackupInterval = time.Minute
)

//go:embed schema/state.schema.json
var stateSchema []byte

// FileStore keeps the state map in one JSON file. Writes go to a temp file that is renamed over
// the target after the previous version was copied into backups/.
type FileStore struct {
	Path string
	// MaxBackups bounds the number of kept backups; <= 0 keeps all of them.
	MaxBackups int
	// BackupInterval is the minimum time between two backups; saves in between only replace the
	// file. <= 0 backs up before every save.
	BackupInterval time.Duration

	now        func() time.Time
	lastBackup time.Time
	log        *slog.Logger
}

// NewFileStore returns a store for path. The file does not need to exist.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state file path is required")
	}
	return &FileStore{
		Path:           path,
		MaxBackups:     DefaultMaxBackups,
		BackupInterval: DefaultBackupInterval,
		now:            time.Now,
		log:            applog.WithComponent("storage").With(slog.String("path", path)),
	}, nil
}

// Load reads the state map. A missing file is an empty map. An unreadable or invalid file is
// replaced by the latest backup; without a usable backup Load returns an empty map together with
// a StoreError so the caller can warn and keep going.
func (s *FileStore) Load(ctx context.Context) (domain.State, error) {
	l := applog.WithOperation(s.log, "load")
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		l.Debug("no state file yet")
		return domain.NewState(), nil
	}
	if err == nil {
		st, derr := decodeState(b)
		if derr == nil {
			return st, nil
		}
		err = derr
	}
	l.Warn("state file unusable, trying backup", slog.Any("err", err))
	st, berr := s.loadLatestBackup()
	if berr != nil {
		return domain.NewState(), storeErr("load", fmt.Errorf("%w; backup attempt: %v", err, berr))
	}
	l.Info("state recovered from backup")
	return st, nil
}

// Save replaces the file with st.
func (s *FileStore) Save(ctx context.Context, st domain.State) error {
	if err := ctx.Err(); err != nil {
		return storeErr("save", err)
	}
	data, err := encodeState(st)
	if err != nil {
		return storeErr("save", err)
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storeErr("save", fmt.Errorf("create state dir: %w", err))
	}
	if _, statErr := os.Stat(s.Path); statErr == nil && s.backupDue() {
		if err := s.backupCurrent(); err != nil {
			return storeErr("save", err)
		}
	}
	base := filepath.Base(s.Path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", base, os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return storeErr("save", fmt.Errorf("write temp state: %w", err))
	}
	if err := os.Rename(temp, s.Path); err != nil {
		_ = os.Remove(temp)
		return storeErr("save", fmt.Errorf("replace state: %w", err))
	}
	s.log.Debug("state saved", slog.Int("docs", len(st)), slog.Int("bytes", len(data)))
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error { return nil }

// Backups lists backup files oldest first.
func (s *FileStore) Backups() ([]string, error) {
	bdir := filepath.Join(filepath.Dir(s.Path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, err
	}
	prefix := filepath.Base(s.Path) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	// timestamp in name yields lexicographic order
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// backupDue reports whether the current file should be copied before it is replaced. The first
// overwrite in a process always is.
func (s *FileStore) backupDue() bool {
	if s.BackupInterval <= 0 || s.lastBackup.IsZero() {
		return true
	}
	return s.clock().Sub(s.lastBackup) >= s.BackupInterval
}

func (s *FileStore) backupCurrent() error {
	bdir := filepath.Join(filepath.Dir(s.Path), BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	now := s.clock()
	stamp := now.Format("20060102-150405.000")
	bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(s.Path), stamp))
	if err := copyFile(s.Path, bpath); err != nil {
		return fmt.Errorf("backup current state: %w", err)
	}
	s.lastBackup = now
	s.pruneBackups()
	return nil
}

func (s *FileStore) pruneBackups() {
	if s.MaxBackups <= 0 {
		return
	}
	all, err := s.Backups()
	if err != nil || len(all) <= s.MaxBackups {
		return
	}
	for _, p := range all[:len(all)-s.MaxBackups] {
		if err := os.Remove(p); err != nil {
			s.log.Warn("prune backup failed", slog.String("backup", p), slog.Any("err", err))
		}
	}
}

func (s *FileStore) loadLatestBackup() (domain.State, error) {
	all, err := s.Backups()
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	// newest first; skip backups that are themselves broken
	var lastErr error = errors.New("no backups found")
	for i := len(all) - 1; i >= 0; i-- {
		b, err := os.ReadFile(all[i])
		if err != nil {
			lastErr = err
			continue
		}
		st, err := decodeState(b)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", filepath.Base(all[i]), err)
			continue
		}
		return st, nil
	}
	return nil, lastErr
}

// ValidateState checks raw file content against the embedded state schema.
func ValidateState(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(stateSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("parse state: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("state does not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func decodeState(data []byte) (domain.State, error) {
	if err := ValidateState(data); err != nil {
		return nil, err
	}
	st := domain.NewState()
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if st == nil {
		st = domain.NewState()
	}
	return st, nil
}

// encodeState writes the layout of the original memos.json: four-space indent, non-ASCII text
// kept as is, no trailing newline.
func encodeState(st domain.State) ([]byte, error) {
	out := make(domain.State, len(st))
	for id, doc := range st {
		if doc == nil {
			continue
		}
		d := *doc
		if d.Memos == nil {
			d.Memos = []domain.Memo{}
		}
		out[id] = &d
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
