/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ui holds the desktop shell. The fyne window is compiled with -tags fyne; the view logic
// in this file is toolkit independent so it builds and tests headless.
package ui

import (
	"context"
	"fmt"
	"strings"

	"bookreader/internal/config"
	"bookreader/internal/domain"
	"bookreader/internal/session"
	"bookreader/internal/spread"
)

// Options are passed from the command line.
type Options struct {
	Config   config.AppConfig
	Password string
	// DocPath opens a document right away when set.
	DocPath string
}

// Action is a viewer command bound to a button, menu item or key.
type Action int

const (
	ActCover Action = iota
	ActStepBackward
	ActStepForward
	ActToggleDirection
	ActHistoryBack
	ActHistoryForward
)

// Do runs a against s and reports whether the current page or direction changed.
func Do(ctx context.Context, s *session.Session, a Action) (bool, error) {
	before, dir := s.Nav().Page(), s.Nav().Direction()
	var err error
	switch a {
	case ActCover:
		err = s.GoToCover(ctx)
	case ActStepBackward:
		_, err = s.StepBackward(ctx)
	case ActStepForward:
		_, err = s.StepForward(ctx)
	case ActToggleDirection:
		err = s.Nav().ToggleDirection(ctx)
	case ActHistoryBack:
		_, err = s.Back(ctx)
	case ActHistoryForward:
		_, err = s.Forward(ctx)
	default:
		return false, fmt.Errorf("unknown action %d", a)
	}
	return s.Nav().Page() != before || s.Nav().Direction() != dir, err
}

// ActionForKey maps fyne key names to actions. Arrow keys follow the on-screen ◀ ▶ buttons.
func ActionForKey(name string) (Action, bool) {
	switch name {
	case "Left", "PageUp":
		return ActStepBackward, true
	case "Right", "PageDown", "Space":
		return ActStepForward, true
	case "Home":
		return ActCover, true
	case "T":
		return ActToggleDirection, true
	case "BackSpace":
		return ActHistoryBack, true
	}
	return 0, false
}

// StepHints are the tooltips of the ◀ and ▶ buttons in direction d.
func StepHints(d domain.Direction) (left, right string) {
	if d == domain.RightToLeft {
		return "Next pages (right to left)", "Previous pages"
	}
	return "Previous pages", "Next pages"
}

// DirectionLabel is the text of the toggle button.
func DirectionLabel(d domain.Direction) string {
	if d == domain.RightToLeft {
		return "Right to left"
	}
	return "Left to right"
}

// StatusText summarizes the session for the status bar.
func StatusText(s *session.Session) string {
	n := s.Nav()
	pages := s.Spread()
	var where string
	if len(pages) == 1 {
		where = fmt.Sprintf("Page %d of %d", pages[0], n.Total())
	} else {
		lo, hi := pages[0], pages[len(pages)-1]
		if lo > hi {
			lo, hi = hi, lo
		}
		where = fmt.Sprintf("Pages %d-%d of %d", lo, hi, n.Total())
	}
	if w := s.LastWarning(); w != nil {
		return where + "  |  not saved: " + w.Error()
	}
	return where
}

// MemoLabel is one row of the memo list.
func MemoLabel(m domain.Memo) string {
	title := strings.Join(strings.Fields(m.Title), " ")
	return fmt.Sprintf("p.%d  %s", m.Page, title)
}

// WidthForWindow picks one or two pages per spread for a window width.
func WidthForWindow(windowPx float32, cfg config.ViewerConfig) int {
	return spread.WidthForViewport(int(windowPx), cfg.SpreadThresholdPx)
}

// SliderPage converts a slider value in 1..total to the nearest page a spread of width starts at.
func SliderPage(v float64, total, width int) int {
	p := spread.Clamp(int(v+0.5), total)
	best := spread.Cover
	for _, s := range spread.Stops(total, width) {
		if abs(s-p) < abs(best-p) {
			best = s
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Box is a placed page in view coordinates.
type Box struct{ X, Y, W, H float32 }

// FitSpread scales page images of the given pixel sizes to fit the view, side by side with gutter
// between them, keeping aspect ratios, and centers the row. Pages share one scale factor.
func FitSpread(sizes [][2]int, viewW, viewH, gutter float32) []Box {
	if len(sizes) == 0 || viewW <= 0 || viewH <= 0 {
		return nil
	}
	var rowW, rowH float32
	for _, s := range sizes {
		rowW += float32(s[0])
		rowH = max(rowH, float32(s[1]))
	}
	avail := viewW - gutter*float32(len(sizes)-1)
	if rowW <= 0 || rowH <= 0 || avail <= 0 {
		return nil
	}
	scale := min(avail/rowW, viewH/rowH)
	total := rowW*scale + gutter*float32(len(sizes)-1)
	x := (viewW - total) / 2
	out := make([]Box, len(sizes))
	for i, s := range sizes {
		w, h := float32(s[0])*scale, float32(s[1])*scale
		out[i] = Box{X: x, Y: (viewH - h) / 2, W: w, H: h}
		x += w + gutter
	}
	return out
}

// MaxRecent caps the recent documents menu.
const MaxRecent = 10

// AddRecent moves path to the front of list. Paths compare case-insensitively so Windows drive
// letters do not produce duplicates.
func AddRecent(list []string, path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return list
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, path)
	for _, p := range list {
		if strings.EqualFold(p, path) {
			continue
		}
		out = append(out, p)
		if len(out) == MaxRecent {
			break
		}
	}
	return out
}

// Width modes of the View menu.
const (
	WidthAuto = "auto"
	WidthOne  = "one"
	WidthTwo  = "two"
)

// SpreadWidthFor resolves a width mode; auto follows the window width.
func SpreadWidthFor(mode string, windowPx float32, cfg config.ViewerConfig) int {
	switch mode {
	case WidthOne:
		return 1
	case WidthTwo:
		return 2
	}
	return WidthForWindow(windowPx, cfg)
}
