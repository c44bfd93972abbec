/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file and one last state flush.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "bookreader/internal/log"
	"bookreader/internal/telemetry"
	"bookreader/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

const flushTimeout = 3 * time.Second

// Session is the part of an open session a crash handler needs.
type Session interface {
	DocID() string
	Flush(ctx context.Context) error
}

// Target says where reports go and what to flush. Fields may be filled in after the deferred
// Recover is installed; a nil Session skips the flush.
type Target struct {
	Dir     string
	Session Session
}

// Recover must be deferred directly:
//
//	t := &crash.Target{Dir: dataDir}
//	defer crash.Recover(t)
func Recover(t *Target) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	report, path, err := writeReport(t, r, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if t != nil && t.Session != nil {
		if err := t.Session.Flush(ctx); err != nil {
			l.Error("final state flush failed", slog.Any("err", err))
		} else {
			l.Info("final state flush written", slog.String("doc", t.Session.DocID()))
		}
	}
	if err := telemetry.Default().UploadCrash(ctx, report); err != nil {
		l.Debug("crash upload failed", slog.Any("err", err))
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", path)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func writeReport(t *Target, panicVal any, stack []byte) ([]byte, string, error) {
	dir := os.TempDir()
	if t != nil && t.Dir != "" {
		dir = t.Dir
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "bookreader crash report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if t != nil && t.Session != nil {
		fmt.Fprintf(&buf, "Document: %s\n", t.Session.DocID())
	}
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return buf.Bytes(), path, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return buf.Bytes(), path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return buf.Bytes(), path, err
	}
	_ = f.Sync()
	return buf.Bytes(), path, nil
}
