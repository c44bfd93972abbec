/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package history

import (
	"testing"
	"time"
)

func TestBackForwardBasic(t *testing.T) {
	m := NewManager(Config{MaxPerDoc: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	m.Record(Visit{DocID: "a", Page: 1, TS: t0})
	m.Record(Visit{DocID: "a", Page: 12, TS: t0.Add(time.Second)})
	if docs, total := m.Stats(); docs != 1 || total != 2 {
		t.Fatalf("expected 1 doc and 2 entries, got docs=%d total=%d", docs, total)
	}
	p, ok := m.Back("a", 30)
	if !ok || p != 12 {
		t.Fatalf("back expected 12, got ok=%v page=%d", ok, p)
	}
	p, ok = m.Forward("a", 12)
	if !ok || p != 30 {
		t.Fatalf("forward expected 30, got ok=%v page=%d", ok, p)
	}
	if m.CanForward("a") {
		t.Fatalf("forward stack should be empty")
	}
	if _, total := m.Stats(); total != 2 {
		t.Fatalf("back then forward should restore 2 entries, got %d", total)
	}
}

func TestRapidTurnsCoalesceToBurstStart(t *testing.T) {
	m := NewManager(Config{MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	m.Record(Visit{DocID: "a", Page: 2, TS: t0})
	m.Record(Visit{DocID: "a", Page: 4, TS: t0.Add(10 * time.Millisecond)})
	m.Record(Visit{DocID: "a", Page: 6, TS: t0.Add(40 * time.Millisecond)})
	m.Record(Visit{DocID: "a", Page: 8, TS: t0.Add(80 * time.Millisecond)})
	if _, total := m.Stats(); total != 1 {
		t.Fatalf("expected coalesced to 1 entry, got %d", total)
	}
	p, ok := m.Back("a", 10)
	if !ok || p != 2 {
		t.Fatalf("expected burst start 2, got ok=%v page=%d", ok, p)
	}
}

func TestRecordClearsForward(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Record(Visit{DocID: "a", Page: 3, TS: t0})
	_, _ = m.Back("a", 9)
	if !m.CanForward("a") {
		t.Fatalf("expected forward entry after back")
	}
	m.Record(Visit{DocID: "a", Page: 3, TS: t0.Add(time.Second)})
	if m.CanForward("a") {
		t.Fatalf("new record must clear forward")
	}
}

func TestStacksArePerDocument(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Millisecond})
	m.Record(Visit{DocID: "a", Page: 5, TS: time.Now()})
	if _, ok := m.Back("b", 1); ok {
		t.Fatalf("document b has no history")
	}
	if !m.CanBack("a") {
		t.Fatalf("document a should have history")
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxPerDoc: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Record(Visit{DocID: "a", Page: i + 1, TS: t0.Add(time.Duration(i) * time.Second)})
	}
	if _, total := m.Stats(); total != 2 {
		t.Fatalf("expected MaxPerDoc cap to limit to 2, got %d", total)
	}
	if p, _ := m.Back("a", 11); p != 10 {
		t.Fatalf("newest entry should survive, got %d", p)
	}
}

func TestGlobalPruneAcrossDocuments(t *testing.T) {
	m := NewManager(Config{MaxEntries: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Record(Visit{DocID: "old", Page: 1, TS: t0})
	m.Record(Visit{DocID: "new", Page: 2, TS: t0.Add(time.Second)})
	m.Record(Visit{DocID: "new", Page: 3, TS: t0.Add(2 * time.Second)})
	if _, ok := m.Back("old", 1); ok {
		t.Fatalf("expected oldest document entry to have been pruned")
	}
	if !m.CanBack("new") {
		t.Fatalf("expected newer document to keep history")
	}
}

func TestClearAndStats(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Millisecond})
	m.Record(Visit{DocID: "a", Page: 7, TS: time.Now()})
	m.Clear("a")
	if docs, total := m.Stats(); docs != 0 || total != 0 {
		t.Fatalf("expected cleared stats to be zero, got docs=%d total=%d", docs, total)
	}
}
