/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package nav

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bookreader/internal/domain"
)

type recordingFlusher struct {
	calls int
	err   error
	seen  []domain.DocState
	st    *domain.DocState
}

func (r *recordingFlusher) Flush(context.Context) error {
	r.calls++
	if r.st != nil {
		r.seen = append(r.seen, *r.st)
	}
	return r.err
}

func newController(page, total, width int, dir domain.Direction) (*Controller, *recordingFlusher) {
	st := &domain.DocState{CurrentPage: page, ReadingDirection: dir, Memos: []domain.Memo{}}
	fl := &recordingFlusher{st: st}
	return New(st, total, width, fl), fl
}

func TestCoverStepForwardLandsOnFirstSpread(t *testing.T) {
	ctx := context.Background()
	c, fl := newController(1, 10, 2, domain.LeftToRight)
	if diff := cmp.Diff([]int{1}, c.Spread()); diff != "" {
		t.Fatalf("cover spread: %s", diff)
	}
	moved, err := c.StepForward(ctx)
	if err != nil || !moved {
		t.Fatalf("StepForward = %v, %v", moved, err)
	}
	if c.Page() != 2 {
		t.Fatalf("page = %d, want 2", c.Page())
	}
	if diff := cmp.Diff([]int{2, 3}, c.Spread()); diff != "" {
		t.Fatalf("first spread: %s", diff)
	}
	if fl.calls != 1 || fl.seen[0].CurrentPage != 2 {
		t.Fatalf("expected one flush with page 2, got %d %+v", fl.calls, fl.seen)
	}
}

func TestLeftToRightStepping(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name       string
		page, w    int
		forward    bool
		want       int
		wantMoved  bool
		wantFlushd int
	}{
		{"two-up forward", 4, 2, true, 6, true, 1},
		{"two-up forward past end blocked", 9, 2, true, 9, false, 0},
		{"two-up forward onto last page", 8, 2, true, 10, true, 1},
		{"two-up back", 6, 2, false, 4, true, 1},
		{"two-up back guarded at 3", 3, 2, false, 3, false, 0},
		{"two-up back guarded at 2", 2, 2, false, 2, false, 0},
		{"single back onto cover", 2, 1, false, 1, true, 1},
		{"single back at cover blocked", 1, 1, false, 1, false, 0},
		{"single forward to last", 9, 1, true, 10, true, 1},
		{"single forward at last blocked", 10, 1, true, 10, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, fl := newController(tc.page, 10, tc.w, domain.LeftToRight)
			var moved bool
			var err error
			if tc.forward {
				moved, err = c.StepForward(ctx)
			} else {
				moved, err = c.StepBackward(ctx)
			}
			if err != nil {
				t.Fatalf("step: %v", err)
			}
			if moved != tc.wantMoved || c.Page() != tc.want || fl.calls != tc.wantFlushd {
				t.Fatalf("got moved=%v page=%d flushes=%d, want %v %d %d", moved, c.Page(), fl.calls, tc.wantMoved, tc.want, tc.wantFlushd)
			}
		})
	}
}

func TestRightToLeftStepping(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		page, w   int
		forward   bool
		want      int
		wantMoved bool
	}{
		{"back from cover opens first spread", 1, 2, false, 3, true},
		{"back advances numerically", 5, 2, false, 7, true},
		{"back clamps at last page", 9, 2, false, 10, true},
		{"back at last page blocked", 10, 2, false, 10, false},
		{"forward retreats numerically", 7, 2, true, 5, true},
		{"forward onto cover", 3, 2, true, 1, true},
		{"forward guarded at 2", 2, 2, true, 2, false},
		{"single forward", 2, 1, true, 1, true},
		{"single forward at cover blocked", 1, 1, true, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newController(tc.page, 10, tc.w, domain.RightToLeft)
			var moved bool
			if tc.forward {
				moved, _ = c.StepForward(ctx)
			} else {
				moved, _ = c.StepBackward(ctx)
			}
			if moved != tc.wantMoved || c.Page() != tc.want {
				t.Fatalf("got moved=%v page=%d, want %v %d", moved, c.Page(), tc.wantMoved, tc.want)
			}
		})
	}
}

func TestRightToLeftSpreadPutsHigherPageLeft(t *testing.T) {
	c, _ := newController(5, 10, 2, domain.RightToLeft)
	if diff := cmp.Diff([]int{5, 4}, c.Spread()); diff != "" {
		t.Fatalf("rtl spread: %s", diff)
	}
}

func TestRoundTripWhenBothStepsLegal(t *testing.T) {
	ctx := context.Background()
	for _, dir := range []domain.Direction{domain.LeftToRight, domain.RightToLeft} {
		for _, w := range []int{1, 2} {
			for start := 2; start <= 12; start++ {
				c, _ := newController(start, 12, w, dir)
				moved, _ := c.StepForward(ctx)
				if !moved {
					continue
				}
				if _, ok := c.backwardTarget(); !ok {
					continue
				}
				// landing on the cover is the one place where the guards are asymmetric
				if c.Page() == 1 {
					continue
				}
				_, _ = c.StepBackward(ctx)
				if c.Page() != start {
					t.Fatalf("dir=%s w=%d start=%d: round trip ended on %d", dir, w, start, c.Page())
				}
			}
		}
	}
}

func TestPageStaysInRangeForAnySequence(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		total := 1 + rng.Intn(15)
		c, _ := newController(1+rng.Intn(total), total, 1+rng.Intn(2), domain.LeftToRight)
		for step := 0; step < 60; step++ {
			switch rng.Intn(7) {
			case 0:
				_, _ = c.StepForward(ctx)
			case 1:
				_, _ = c.StepBackward(ctx)
			case 2:
				_ = c.GoToPage(ctx, rng.Intn(40)-10)
			case 3:
				_ = c.GoToCover(ctx)
			case 4:
				_ = c.ToggleDirection(ctx)
			case 5:
				c.SetSpreadWidth(rng.Intn(4))
			default:
				_, _ = c.StepBackward(ctx)
			}
			if p := c.Page(); p < 1 || p > total {
				t.Fatalf("run %d step %d: page %d outside [1,%d]", run, step, p, total)
			}
		}
	}
}

func TestGoToPageClampsAndFlushes(t *testing.T) {
	ctx := context.Background()
	c, fl := newController(4, 10, 2, domain.LeftToRight)
	if err := c.GoToPage(ctx, 99); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	if c.Page() != 10 {
		t.Fatalf("page = %d, want 10", c.Page())
	}
	_ = c.GoToPage(ctx, -4)
	if c.Page() != 1 {
		t.Fatalf("page = %d, want 1", c.Page())
	}
	_ = c.GoToPage(ctx, 6)
	_ = c.GoToCover(ctx)
	if c.Page() != 1 || fl.calls != 4 {
		t.Fatalf("page=%d flushes=%d", c.Page(), fl.calls)
	}
}

func TestToggleKeepsPageAndFlushesDirection(t *testing.T) {
	c, fl := newController(6, 10, 2, domain.LeftToRight)
	if err := c.ToggleDirection(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if c.Page() != 6 || c.Direction() != domain.RightToLeft {
		t.Fatalf("page=%d dir=%s", c.Page(), c.Direction())
	}
	if fl.calls != 1 || fl.seen[0].ReadingDirection != domain.RightToLeft {
		t.Fatalf("direction not flushed: %+v", fl.seen)
	}
}

func TestSetSpreadWidthDoesNotFlush(t *testing.T) {
	c, fl := newController(4, 10, 2, domain.LeftToRight)
	c.SetSpreadWidth(1)
	if c.Width() != 1 || fl.calls != 0 {
		t.Fatalf("width=%d flushes=%d", c.Width(), fl.calls)
	}
	c.SetSpreadWidth(7)
	if c.Width() != 2 {
		t.Fatalf("width = %d, want 2", c.Width())
	}
}

func TestFlushErrorKeepsInMemoryChange(t *testing.T) {
	c, fl := newController(2, 10, 2, domain.LeftToRight)
	fl.err = &domain.StoreError{Op: "save", Err: errors.New("read-only file system")}
	moved, err := c.StepForward(context.Background())
	if !moved || !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("moved=%v err=%v", moved, err)
	}
	if c.Page() != 4 {
		t.Fatalf("page = %d, want 4", c.Page())
	}
}

func TestNewClampsPersistedPage(t *testing.T) {
	c, _ := newController(40, 12, 2, domain.LeftToRight)
	if c.Page() != 12 {
		t.Fatalf("page = %d, want 12", c.Page())
	}
	c, _ = newController(3, 0, 2, "")
	if c.Page() != 1 || c.Total() != 1 || c.Direction() != domain.LeftToRight {
		t.Fatalf("degenerate document not normalized: page=%d total=%d dir=%q", c.Page(), c.Total(), c.Direction())
	}
}
