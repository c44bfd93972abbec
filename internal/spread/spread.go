/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package spread computes which pages make up the visible spread.
// Everything here is pure: same input, same output, no state.
package spread

import "bookreader/internal/domain"

// Cover is the page that is always shown on its own.
const Cover = 1

// DefaultViewportThreshold is the viewport width in pixels below which a single page is shown.
const DefaultViewportThreshold = 700

// Compute returns the page numbers of the current view in screen order: element 0 goes into the
// leftmost slot. The cover is always alone. Left-to-right spreads ascend from current; right-to-
// left spreads hold current and the pages before it, with the higher page on the left.
func Compute(current, total, width int, dir domain.Direction) []int {
	if total < 1 {
		return nil
	}
	if current == Cover {
		return []int{Cover}
	}
	width = NormalizeWidth(width)
	pages := make([]int, 0, width)
	for i := 0; i < width; i++ {
		if dir == domain.RightToLeft {
			p := current - i
			if p < 1 {
				break
			}
			pages = append(pages, p)
			continue
		}
		p := current + i
		if p > total {
			break
		}
		pages = append(pages, p)
	}
	return pages
}

// NormalizeWidth clamps a spread width into {1, 2}.
func NormalizeWidth(width int) int {
	if width >= 2 {
		return 2
	}
	return 1
}

// WidthForViewport picks the spread width for a viewport of px pixels.
// threshold <= 0 uses DefaultViewportThreshold.
func WidthForViewport(px, threshold int) int {
	if threshold <= 0 {
		threshold = DefaultViewportThreshold
	}
	if px < threshold {
		return 1
	}
	return 2
}

// Stops lists the page numbers a page slider can commit: the cover, then the first page of every
// spread (2, 2+width, 2+2*width, ...).
func Stops(total, width int) []int {
	if total < 1 {
		return nil
	}
	width = NormalizeWidth(width)
	out := []int{Cover}
	for p := 2; p <= total; p += width {
		out = append(out, p)
	}
	return out
}

// Clamp bounds page into [1, total].
func Clamp(page, total int) int {
	if total < 1 {
		total = 1
	}
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}
