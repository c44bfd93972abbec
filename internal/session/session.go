/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session binds one open document to the shared state map and its durable store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"bookreader/internal/domain"
	"bookreader/internal/history"
	applog "bookreader/internal/log"
	"bookreader/internal/memo"
	"bookreader/internal/nav"
	"bookreader/internal/render"
	"bookreader/internal/spread"
	"bookreader/internal/storage"
)

// Options tune a session. Zero values pick the defaults.
type Options struct {
	DefaultDirection domain.Direction
	SpreadWidth      int
	History          *history.Manager
	// Now is the clock used for history timestamps.
	Now func() time.Time
}

// Session is the explicit per-document context every UI handler receives.
// The state map is shared by all documents and written back whole on every flush.
type Session struct {
	gw    storage.Gateway
	doc   render.Document
	state domain.State
	ds    *domain.DocState
	nav   *nav.Controller
	memos *memo.Store
	hist  *history.Manager
	now   func() time.Time
	log   *slog.Logger

	mu       sync.Mutex
	warnings []error
}

// Open loads the state map, creates the entry for a first-seen document and clamps the persisted
// page into the document. An unreadable store is not fatal: the session starts from an empty map
// and the load error is kept as a warning.
func Open(ctx context.Context, gw storage.Gateway, doc render.Document, opts Options) (*Session, error) {
	if gw == nil || doc == nil {
		return nil, errors.New("session: gateway and document are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.History == nil {
		opts.History = history.NewManager(history.Config{})
	}
	s := &Session{
		gw:   gw,
		doc:  doc,
		hist: opts.History,
		now:  opts.Now,
		log:  applog.WithDocument(applog.WithComponent("session"), doc.ID()),
	}

	st, err := gw.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, fmt.Errorf("open session: %w", err)
		}
		s.warn(err)
	}
	if st == nil {
		st = domain.NewState()
	}
	changed := st.Normalize()
	if _, ok := st[doc.ID()]; !ok {
		changed = true
	}
	s.state = st
	s.ds = st.Ensure(doc.ID(), opts.DefaultDirection)
	before := s.ds.CurrentPage
	s.nav = nav.New(s.ds, doc.TotalPages(), opts.SpreadWidth, s)
	s.memos = memo.New(s.ds, s.nav.Total(), s)
	if s.ds.CurrentPage != before {
		s.log.Info("persisted page clamped", slog.Int("from", before), slog.Int("to", s.ds.CurrentPage))
		changed = true
	}
	if changed {
		_ = s.Flush(ctx)
	}
	s.log.Info("session opened",
		slog.Int("pages", s.nav.Total()),
		slog.Int("page", s.ds.CurrentPage),
		slog.String("direction", string(s.ds.ReadingDirection)),
		slog.Int("memos", len(s.ds.Memos)))
	return s, nil
}

// Flush saves the whole state map. A failure is recorded as a warning and returned;
// the in-memory state stays authoritative.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.gw.Save(ctx, s.state); err != nil {
		s.warn(err)
		return err
	}
	return nil
}

func (s *Session) DocID() string             { return s.doc.ID() }
func (s *Session) Document() render.Document { return s.doc }
func (s *Session) Nav() *nav.Controller      { return s.nav }
func (s *Session) Memos() *memo.Store        { return s.memos }

// Spread is the ordered list of pages currently on screen.
func (s *Session) Spread() []int { return s.nav.Spread() }

// State returns a deep copy of the whole persisted map.
func (s *Session) State() domain.State { return s.state.Clone() }

// GoToCover jumps to page 1 and remembers the page left.
func (s *Session) GoToCover(ctx context.Context) error {
	s.rememberUnless(1)
	return s.nav.GoToCover(ctx)
}

// GoToPage jumps to n (clamped) and remembers the page left.
func (s *Session) GoToPage(ctx context.Context, n int) error {
	s.rememberUnless(spread.Clamp(n, s.nav.Total()))
	return s.nav.GoToPage(ctx, n)
}

// StepForward handles the ▶ control (see nav.Controller). Rapid steps coalesce into a single
// history entry.
func (s *Session) StepForward(ctx context.Context) (bool, error) {
	from := s.nav.Page()
	moved, err := s.nav.StepForward(ctx)
	if moved {
		s.record(from)
	}
	return moved, err
}

// StepBackward handles the ◀ control.
func (s *Session) StepBackward(ctx context.Context) (bool, error) {
	from := s.nav.Page()
	moved, err := s.nav.StepBackward(ctx)
	if moved {
		s.record(from)
	}
	return moved, err
}

// JumpToMemo navigates to the page of memo id.
func (s *Session) JumpToMemo(ctx context.Context, id string) (int, error) {
	page, err := s.memos.JumpTo(id)
	if err != nil {
		return 0, err
	}
	s.rememberUnless(page)
	if err := s.nav.GoToPage(ctx, page); err != nil {
		return s.nav.Page(), err
	}
	return s.nav.Page(), nil
}

// Back returns to the page left most recently. It reports false when there is no history.
func (s *Session) Back(ctx context.Context) (bool, error) {
	page, ok := s.hist.Back(s.doc.ID(), s.nav.Page())
	if !ok {
		return false, nil
	}
	return true, s.nav.GoToPage(ctx, page)
}

// Forward undoes a Back.
func (s *Session) Forward(ctx context.Context) (bool, error) {
	page, ok := s.hist.Forward(s.doc.ID(), s.nav.Page())
	if !ok {
		return false, nil
	}
	return true, s.nav.GoToPage(ctx, page)
}

func (s *Session) CanBack() bool    { return s.hist.CanBack(s.doc.ID()) }
func (s *Session) CanForward() bool { return s.hist.CanForward(s.doc.ID()) }

// Warnings lists the non-fatal store errors seen so far, oldest first.
func (s *Session) Warnings() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.warnings...)
}

// LastWarning returns the most recent non-fatal store error, or nil.
func (s *Session) LastWarning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.warnings) == 0 {
		return nil
	}
	return s.warnings[len(s.warnings)-1]
}

// ClearWarnings forgets recorded warnings once the shell has shown them.
func (s *Session) ClearWarnings() {
	s.mu.Lock()
	s.warnings = nil
	s.mu.Unlock()
}

// Reload re-reads the store after an external change and adopts it. It reports false when the
// stored map equals the in-memory one, e.g. after our own write. History is kept; the current
// page is clamped again.
func (s *Session) Reload(ctx context.Context) (bool, error) {
	st, err := s.gw.Load(ctx)
	if err != nil {
		s.warn(err)
		return false, err
	}
	st.Normalize()
	if reflect.DeepEqual(st, s.state) {
		return false, nil
	}
	fresh := st.Ensure(s.doc.ID(), s.ds.ReadingDirection)
	for id := range s.state {
		if _, ok := st[id]; !ok {
			delete(s.state, id)
		}
	}
	for id, ds := range st {
		if id != s.doc.ID() {
			s.state[id] = ds
		}
	}
	*s.ds = *fresh
	s.state[s.doc.ID()] = s.ds
	s.nav = nav.New(s.ds, s.doc.TotalPages(), s.nav.Width(), s)
	s.memos = memo.New(s.ds, s.nav.Total(), s)
	s.log.Debug("state reloaded", slog.Int("page", s.ds.CurrentPage), slog.Int("memos", len(s.ds.Memos)))
	return true, nil
}

// rememberUnless records the page being left unless target is that same page.
func (s *Session) rememberUnless(target int) {
	if cur := s.nav.Page(); cur != target {
		s.record(cur)
	}
}

func (s *Session) record(page int) {
	s.hist.Record(history.Visit{DocID: s.doc.ID(), Page: page, TS: s.now()})
}

func (s *Session) warn(err error) {
	s.log.Warn("store unavailable", slog.Any("err", err))
	s.mu.Lock()
	s.warnings = append(s.warnings, err)
	s.mu.Unlock()
}
