/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history keeps back/forward navigation stacks per document.
package history

import (
	"sync"
	"time"
)

// Visit is a page the reader left. TS is when it was left.
type Visit struct {
	DocID string
	Page  int
	TS    time.Time
}

// Config controls depth caps and coalescing behavior.
type Config struct {
	// MaxEntries is a soft cap over all documents; the oldest entries are pruned when exceeded.
	MaxEntries int
	// MaxPerDoc limits the back stack of one document (0 means unlimited).
	MaxPerDoc int
	// MinInterval coalesces visits recorded within the interval for the same document: a burst
	// of page turns collapses into the page the burst started from.
	MinInterval time.Duration
}

// Manager provides back/forward stacks per document.
// It is safe for concurrent use.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	back    map[string][]Visit
	forward map[string][]Visit
	total   int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 750 * time.Millisecond
	}
	return &Manager{cfg: cfg, back: make(map[string][]Visit), forward: make(map[string][]Visit)}
}

// Record notes that v.Page was left. Within MinInterval of the previous record for the same
// document only the timestamp is refreshed. Any new record clears the forward stack.
func (m *Manager) Record(v Visit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forward[v.DocID] = nil
	stack := m.back[v.DocID]
	if n := len(stack); n > 0 {
		last := stack[n-1]
		if v.TS.Sub(last.TS) < m.cfg.MinInterval || last.Page == v.Page {
			stack[n-1].TS = v.TS
			return
		}
	}
	m.back[v.DocID] = append(stack, v)
	m.total++
	m.enforceCapsLocked(v.DocID)
}

// Back pops the last left page of docID and remembers current for Forward.
func (m *Manager) Back(docID string, current int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.back[docID]
	if len(stack) == 0 {
		return 0, false
	}
	v := stack[len(stack)-1]
	m.back[docID] = stack[:len(stack)-1]
	m.total--
	m.forward[docID] = append(m.forward[docID], Visit{DocID: docID, Page: current, TS: time.Now()})
	return v.Page, true
}

// Forward undoes a Back.
func (m *Manager) Forward(docID string, current int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.forward[docID]
	if len(f) == 0 {
		return 0, false
	}
	v := f[len(f)-1]
	m.forward[docID] = f[:len(f)-1]
	m.back[docID] = append(m.back[docID], Visit{DocID: docID, Page: current, TS: time.Now()})
	m.total++
	m.enforceCapsLocked(docID)
	return v.Page, true
}

// CanBack reports whether Back would move.
func (m *Manager) CanBack(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.back[docID]) > 0
}

// CanForward reports whether Forward would move.
func (m *Manager) CanForward(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forward[docID]) > 0
}

// Clear drops both stacks of docID.
func (m *Manager) Clear(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total -= len(m.back[docID])
	delete(m.back, docID)
	delete(m.forward, docID)
	if m.total < 0 {
		m.total = 0
	}
}

// Stats returns the number of documents with back history and the total back entries.
func (m *Manager) Stats() (docs int, entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.back {
		if len(s) > 0 {
			docs++
		}
	}
	return docs, m.total
}

func (m *Manager) enforceCapsLocked(docID string) {
	if m.cfg.MaxPerDoc > 0 {
		stack := m.back[docID]
		if len(stack) > m.cfg.MaxPerDoc {
			drop := len(stack) - m.cfg.MaxPerDoc
			m.total -= drop
			m.back[docID] = append([]Visit{}, stack[drop:]...)
		}
	}
	// prune the oldest entries across all documents
	for m.cfg.MaxEntries > 0 && m.total > m.cfg.MaxEntries {
		oldestDoc := ""
		var oldestTS time.Time
		found := false
		for doc, stack := range m.back {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestDoc, oldestTS, found = doc, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		m.back[oldestDoc] = m.back[oldestDoc][1:]
		m.total--
		if len(m.back[oldestDoc]) == 0 {
			delete(m.back, oldestDoc)
		}
	}
}
