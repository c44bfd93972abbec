/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeSession struct {
	flushes int
	err     error
}

func (f *fakeSession) DocID() string { return "vol1.cbz" }

func (f *fakeSession) Flush(context.Context) error {
	f.flushes++
	return f.err
}

func silenceStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = old
		_, _ = io.Copy(io.Discard, r)
	})
}

func interceptExit(t *testing.T) *int {
	t.Helper()
	code := -1
	old := exitFn
	exitFn = func(c int) { code = c }
	t.Cleanup(func() { exitFn = old })
	return &code
}

func reports(t *testing.T, dir string) []string {
	t.Helper()
	m, _ := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	return m
}

func TestWriteReportInTempDir(t *testing.T) {
	_, path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "bookreader crash report") || !strings.Contains(s, "Panic: boom") {
		t.Fatalf("unexpected report: %s", s)
	}
}

func TestRecoverFlushesAndWritesReport(t *testing.T) {
	silenceStderr(t)
	code := interceptExit(t)
	dir := filepath.Join(t.TempDir(), "data")
	sess := &fakeSession{}
	target := &Target{Dir: dir}

	func() {
		defer Recover(target)
		target.Session = sess
		panic("boom")
	}()

	if *code != 2 {
		t.Fatalf("exit code = %d, want 2", *code)
	}
	if sess.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", sess.flushes)
	}
	found := reports(t, dir)
	if len(found) != 1 {
		t.Fatalf("expected one report in %s, got %v", dir, found)
	}
	b, _ := os.ReadFile(found[0])
	if !strings.Contains(string(b), "Document: vol1.cbz") || !strings.Contains(string(b), "Panic: boom") {
		t.Fatalf("report content: %s", b)
	}
}

func TestRecoverSurvivesFlushError(t *testing.T) {
	silenceStderr(t)
	code := interceptExit(t)
	dir := t.TempDir()
	sess := &fakeSession{err: errors.New("disk full")}
	func() {
		defer Recover(&Target{Dir: dir, Session: sess})
		panic(errors.New("kaboom"))
	}()
	if *code != 2 || sess.flushes != 1 || len(reports(t, dir)) != 1 {
		t.Fatalf("code=%d flushes=%d reports=%v", *code, sess.flushes, reports(t, dir))
	}
}

func TestRecoverWithoutPanicDoesNothing(t *testing.T) {
	code := interceptExit(t)
	dir := t.TempDir()
	func() {
		defer Recover(&Target{Dir: dir})
	}()
	if *code != -1 || len(reports(t, dir)) != 0 {
		t.Fatalf("no panic must not exit or write")
	}
}
