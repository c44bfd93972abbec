/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"bookreader/internal/config"
	"bookreader/internal/telemetry"
)

// setup isolates config, data and telemetry and returns a six page image folder.
func setup(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv(config.EnvConfigFile, filepath.Join(root, "config.yaml"))
	t.Setenv(config.EnvDataDir, filepath.Join(root, "data"))
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(telemetry.EnvOptIn, "")
	t.Setenv(envSpreadWidth, "")

	dir := filepath.Join(root, "saga")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 6; i++ {
		var buf bytes.Buffer
		_ = png.Encode(&buf, image.NewGray(image.Rect(0, 0, 30, 40)))
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("page%d.png", i)), buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("%v exited %d\nstdout: %s\nstderr: %s", args, code, out, errOut)
	}
	return out
}

func TestRunVersionHelpAndUnknown(t *testing.T) {
	setup(t)
	if out := mustRun(t, "version"); strings.TrimSpace(out) == "" {
		t.Fatal("version printed nothing")
	}
	if out := mustRun(t); !strings.Contains(out, "Usage:") {
		t.Fatalf("no usage without args:\n%s", out)
	}
	code, _, errOut := runCLI(t, "frobnicate")
	if code != 2 || !strings.Contains(errOut, `unknown command "frobnicate"`) {
		t.Fatalf("unknown command: code=%d stderr=%s", code, errOut)
	}
}

func TestRunNavigationPersists(t *testing.T) {
	doc := setup(t)

	out := mustRun(t, "show", doc)
	if !strings.Contains(out, "Document: saga (6 pages)") || !strings.Contains(out, "Page: 1  Direction: left_to_right  Spread: [1]") {
		t.Fatalf("show:\n%s", out)
	}
	if out = mustRun(t, "nav", doc, "next"); !strings.Contains(out, "Spread: [2 3]") {
		t.Fatalf("next:\n%s", out)
	}
	// a fresh process sees the saved page
	if out = mustRun(t, "show", doc); !strings.Contains(out, "Page: 2") {
		t.Fatalf("page not persisted:\n%s", out)
	}
	if out = mustRun(t, "nav", doc, "prev"); !strings.Contains(out, "No further pages in that direction.") {
		t.Fatalf("prev from the first spread:\n%s", out)
	}
	if out = mustRun(t, "nav", doc, "toggle"); !strings.Contains(out, "Direction: right_to_left  Spread: [2 1]") {
		t.Fatalf("toggle:\n%s", out)
	}
	if out = mustRun(t, "nav", doc, "goto", "40"); !strings.Contains(out, "Page: 6") {
		t.Fatalf("goto is clamped:\n%s", out)
	}
	if out = mustRun(t, "nav", doc, "cover"); !strings.Contains(out, "Spread: [1]") {
		t.Fatalf("cover:\n%s", out)
	}

	if code, _, _ := runCLI(t, "nav", doc, "goto", "x"); code != 2 {
		t.Fatalf("bad page exit code = %d, want 2", code)
	}
	if code, _, _ := runCLI(t, "nav", doc, "sideways"); code != 2 {
		t.Fatalf("unknown action exit code = %d, want 2", code)
	}
	if code, _, _ := runCLI(t, "nav", doc); code != 2 {
		t.Fatalf("missing action exit code = %d, want 2", code)
	}
	if code, _, errOut := runCLI(t, "show", filepath.Join(doc, "missing.cbz")); code != 1 || !strings.Contains(errOut, "Error:") {
		t.Fatalf("missing document: code=%d stderr=%s", code, errOut)
	}
}

func TestRunSingleSpreadWidth(t *testing.T) {
	doc := setup(t)
	t.Setenv(envSpreadWidth, "1")
	if out := mustRun(t, "nav", doc, "next"); !strings.Contains(out, "Spread: [2]") {
		t.Fatalf("single page next:\n%s", out)
	}
}

var addedRe = regexp.MustCompile(`Added memo (\S+) on page (\d+)`)

func TestRunMemoLifecycle(t *testing.T) {
	doc := setup(t)

	out := mustRun(t, "memo", doc, "add", "3", "Hero", "first", "appearance")
	m := addedRe.FindStringSubmatch(out)
	if m == nil || m[2] != "3" {
		t.Fatalf("add output:\n%s", out)
	}
	id := m[1]

	if out = mustRun(t, "memo", doc, "list"); !strings.Contains(out, id) || !strings.Contains(out, "first appearance") {
		t.Fatalf("list:\n%s", out)
	}
	if out = mustRun(t, "memo", doc, "jump", id); !strings.Contains(out, "Page: 3") || !strings.Contains(out, "p.3 Hero: first appearance") {
		t.Fatalf("jump:\n%s", out)
	}
	if out = mustRun(t, "memo", doc, "edit", id, "Villain", "reveal"); !strings.Contains(out, "Updated memo "+id+" on page 3") {
		t.Fatalf("edit:\n%s", out)
	}
	if out = mustRun(t, "show", doc); !strings.Contains(out, "p.3 Villain: reveal") {
		t.Fatalf("edit not persisted:\n%s", out)
	}
	if out = mustRun(t, "memo", doc, "rm", id); !strings.Contains(out, "Removed memo "+id) {
		t.Fatalf("rm:\n%s", out)
	}
	if out = mustRun(t, "memo", doc, "rm", id); !strings.Contains(out, "No memo "+id) {
		t.Fatalf("second rm:\n%s", out)
	}

	code, _, errOut := runCLI(t, "memo", doc, "add", "9", "Late", "beyond the end")
	if code != 1 || !strings.Contains(errOut, "page") {
		t.Fatalf("out of range page: code=%d stderr=%s", code, errOut)
	}
	code, _, errOut = runCLI(t, "memo", doc, "add", "2", "  ", "blank title")
	if code != 1 || !strings.Contains(errOut, "title") {
		t.Fatalf("blank title: code=%d stderr=%s", code, errOut)
	}
	if code, _, _ := runCLI(t, "memo", doc, "add", "2"); code != 2 {
		t.Fatalf("short add exit code = %d, want 2", code)
	}
	if code, _, _ := runCLI(t, "memo", doc, "jump", "nope"); code != 1 {
		t.Fatalf("unknown jump exit code = %d, want 1", code)
	}
}

func TestRunExportAndSearch(t *testing.T) {
	doc := setup(t)
	mustRun(t, "memo", doc, "add", "2", "Hero", "the hero arrives")
	mustRun(t, "memo", doc, "add", "5", "Storm", "clouds gather")
	out := t.TempDir()

	md := filepath.Join(out, "memos.md")
	mustRun(t, "export", doc, "md", md)
	data, err := os.ReadFile(md)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Memos: saga") || !strings.Contains(string(data), "## p. 5: Storm") {
		t.Fatalf("markdown:\n%s", data)
	}

	mustRun(t, "nav", doc, "goto", "2")
	pngPath := filepath.Join(out, "spread.png")
	mustRun(t, "export", doc, "png", pngPath)
	f, err := os.Open(pngPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(f)
	_ = f.Close()
	if err != nil || cfg.Height == 0 {
		t.Fatalf("spread png: %v %+v", err, cfg)
	}

	cbz := filepath.Join(out, "saga.cbz")
	if o := mustRun(t, "export", doc, "cbz", cbz); !strings.Contains(o, "Exported cbz") {
		t.Fatalf("cbz:\n%s", o)
	}
	if _, err := os.Stat(cbz); err != nil {
		t.Fatalf("cbz not written: %v", err)
	}
	if code, _, _ := runCLI(t, "export", doc, "docx", filepath.Join(out, "x.docx")); code != 2 {
		t.Fatalf("unknown format exit code = %d, want 2", code)
	}

	if o := mustRun(t, "search", "HERO"); !strings.Contains(o, "saga") || !strings.Contains(o, "[hero]") {
		t.Fatalf("search:\n%s", o)
	}
	if o := mustRun(t, "search", "clouds", "other-doc"); !strings.Contains(o, "No matches.") {
		t.Fatalf("search scoped to another document:\n%s", o)
	}
	if code, _, _ := runCLI(t, "search"); code != 2 {
		t.Fatalf("search without query exit code = %d, want 2", code)
	}
}

func TestRunConfigPrintsEffectiveSettings(t *testing.T) {
	setup(t)
	t.Setenv(config.EnvStoreBackend, "sqlite")
	out := mustRun(t, "config")
	if !strings.Contains(out, "backend: sqlite") || !strings.Contains(out, "config.yaml") {
		t.Fatalf("config:\n%s", out)
	}
	if !strings.Contains(out, "# store.backend overridden by "+config.EnvStoreBackend) {
		t.Fatalf("config does not name the override:\n%s", out)
	}
	if strings.Contains(out, "# viewer.dpi overridden") {
		t.Fatalf("unset variable reported as override:\n%s", out)
	}
}

func TestRunMemoRemoveByPageAndTitle(t *testing.T) {
	doc := setup(t)
	mustRun(t, "memo", doc, "add", "3", "Hero", "first appearance")
	keep := addedRe.FindStringSubmatch(mustRun(t, "memo", doc, "add", "4", "Hero", "again"))[1]

	if out := mustRun(t, "memo", doc, "rm", "3", "Hero"); !strings.Contains(out, "Removed memo") {
		t.Fatalf("rm by page and title:\n%s", out)
	}
	out := mustRun(t, "memo", doc, "list")
	if strings.Contains(out, "first appearance") || !strings.Contains(out, keep) {
		t.Fatalf("wrong memo removed:\n%s", out)
	}
	if out = mustRun(t, "memo", doc, "rm", "3", "Hero"); !strings.Contains(out, `No memo "Hero" on page 3`) {
		t.Fatalf("second rm by page and title:\n%s", out)
	}
}

func TestRunDebugFlagRaisesLogLevel(t *testing.T) {
	setup(t)
	_, _, quiet := runCLI(t, "version")
	if strings.Contains(quiet, "DBG ") {
		t.Fatalf("debug output at level error:\n%s", quiet)
	}
	code, out, loud := runCLI(t, "--debug", "version")
	if code != 0 || strings.TrimSpace(out) == "" {
		t.Fatalf("--debug version: code=%d stdout=%s", code, out)
	}
	if !strings.Contains(loud, "DBG start") {
		t.Fatalf("no debug output with --debug:\n%s", loud)
	}
}

func TestRunReportsUnsavedChanges(t *testing.T) {
	doc := setup(t)
	m := addedRe.FindStringSubmatch(mustRun(t, "memo", doc, "add", "3", "Hero", "arrives"))
	if m == nil {
		t.Fatal("memo not added")
	}
	// the second save keeps a backup holding the first memo
	mustRun(t, "memo", doc, "add", "4", "Storm", "clouds")

	// a directory in place of the state file: loading recovers from the backup, saving fails
	state := filepath.Join(filepath.Dir(doc), "data", "memos.json")
	if err := os.Remove(state); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(state, 0o755); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, "nav", doc, "goto", "5")
	if code != 1 || !strings.Contains(out, "Page: 5") || !strings.Contains(errOut, "not saved") {
		t.Fatalf("nav with failing save: code=%d\nstdout: %s\nstderr: %s", code, out, errOut)
	}
	code, out, errOut = runCLI(t, "memo", doc, "jump", m[1])
	if code != 1 || !strings.Contains(out, "Page: 3") || !strings.Contains(errOut, "not saved") {
		t.Fatalf("memo jump with failing save: code=%d\nstdout: %s\nstderr: %s", code, out, errOut)
	}
}
