/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package nav implements the page navigation state machine of a document session.
package nav

import (
	"context"
	"log/slog"

	"bookreader/internal/domain"
	applog "bookreader/internal/log"
	"bookreader/internal/spread"
)

// Flusher writes the current state through to durable storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Controller owns the current page of one open document. Requests outside the document are
// clamped, never rejected. Every change of current page or direction is flushed before the call
// returns; a flush error is returned but the in-memory change stays.
type Controller struct {
	st    *domain.DocState
	total int
	width int
	fl    Flusher
	log   *slog.Logger
}

// New binds a controller to st. The persisted page is clamped into [1, total] because the
// document may have changed since it was saved.
func New(st *domain.DocState, total, width int, fl Flusher) *Controller {
	if total < 1 {
		total = 1
	}
	st.CurrentPage = spread.Clamp(st.CurrentPage, total)
	if !st.ReadingDirection.Valid() {
		st.ReadingDirection = domain.LeftToRight
	}
	return &Controller{
		st:    st,
		total: total,
		width: spread.NormalizeWidth(width),
		fl:    fl,
		log:   applog.WithComponent("nav"),
	}
}

func (c *Controller) Page() int                   { return c.st.CurrentPage }
func (c *Controller) Total() int                  { return c.total }
func (c *Controller) Width() int                  { return c.width }
func (c *Controller) Direction() domain.Direction { return c.st.ReadingDirection }

// Spread returns the pages of the current view in screen order.
func (c *Controller) Spread() []int {
	return spread.Compute(c.st.CurrentPage, c.total, c.width, c.st.ReadingDirection)
}

// GoToCover shows the cover.
func (c *Controller) GoToCover(ctx context.Context) error {
	return c.set(ctx, "cover", spread.Cover)
}

// GoToPage jumps to n, clamped into the document.
func (c *Controller) GoToPage(ctx context.Context, n int) error {
	return c.set(ctx, "goto", spread.Clamp(n, c.total))
}

// StepBackward handles the ◀ control. In right-to-left documents ◀ is the reading direction, so
// the page number grows. It reports whether the page changed.
func (c *Controller) StepBackward(ctx context.Context) (bool, error) {
	p, ok := c.backwardTarget()
	if !ok {
		c.log.Debug("step backward blocked", slog.Int("page", c.st.CurrentPage))
		return false, nil
	}
	return true, c.set(ctx, "step_backward", p)
}

// StepForward handles the ▶ control; the mirror image of StepBackward.
func (c *Controller) StepForward(ctx context.Context) (bool, error) {
	p, ok := c.forwardTarget()
	if !ok {
		c.log.Debug("step forward blocked", slog.Int("page", c.st.CurrentPage))
		return false, nil
	}
	return true, c.set(ctx, "step_forward", p)
}

// ToggleDirection flips the reading direction and keeps the current page.
func (c *Controller) ToggleDirection(ctx context.Context) error {
	c.st.ReadingDirection = c.st.ReadingDirection.Toggle()
	c.log.Debug("direction toggled", slog.String("dir", string(c.st.ReadingDirection)))
	return c.flush(ctx)
}

// SetSpreadWidth changes how many pages a spread shows. The width is session local, so nothing
// is flushed.
func (c *Controller) SetSpreadWidth(w int) { c.width = spread.NormalizeWidth(w) }

func (c *Controller) backwardTarget() (int, bool) {
	cur, w := c.st.CurrentPage, c.width
	if c.st.ReadingDirection == domain.RightToLeft {
		if cur < c.total {
			return spread.Clamp(cur+w, c.total), true
		}
		return cur, false
	}
	// two-up never steps back onto the cover; the cover control does that
	if w >= 2 {
		if cur > w+1 {
			return cur - w, true
		}
		return cur, false
	}
	if cur-w >= 1 {
		return cur - w, true
	}
	return cur, false
}

func (c *Controller) forwardTarget() (int, bool) {
	cur, w := c.st.CurrentPage, c.width
	if c.st.ReadingDirection == domain.RightToLeft {
		if cur > w {
			return cur - w, true
		}
		return cur, false
	}
	if cur == spread.Cover {
		if c.total >= 2 {
			return 2, true
		}
		return cur, false
	}
	if cur+w <= c.total {
		return cur + w, true
	}
	return cur, false
}

func (c *Controller) set(ctx context.Context, op string, page int) error {
	prev := c.st.CurrentPage
	c.st.CurrentPage = page
	c.log.Debug("page changed", slog.String("op", op), slog.Int("from", prev), slog.Int("to", page))
	return c.flush(ctx)
}

func (c *Controller) flush(ctx context.Context) error {
	if c.fl == nil {
		return nil
	}
	return c.fl.Flush(ctx)
}
