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
	"os"
	"path/filepath"
	"testing"
	"time"

	"bookreader/internal/domain"
)

func TestWatchFileReportsSaves(t *testing.T) {
	fs := newTestFileStore(t)
	changed := make(chan struct{}, 4)
	w, err := WatchFile(fs.Path, 20*time.Millisecond, func() { changed <- struct{}{} })
	if err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	defer w.Close()

	// unrelated files in the same directory are ignored
	_ = os.WriteFile(filepath.Join(filepath.Dir(fs.Path), "other.txt"), []byte("x"), 0o644)
	select {
	case <-changed:
		t.Fatalf("notified for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}

	if err := fs.Save(context.Background(), domain.State{"a.pdf": {CurrentPage: 2, ReadingDirection: domain.LeftToRight, Memos: []domain.Memo{}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatalf("no change notification after save")
	}
}
