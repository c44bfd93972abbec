//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// These tests need the fyne toolkit:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"image"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/test"
)

func almostEqual(a, b, eps float32) bool {
	if a > b {
		return a-b <= eps
	}
	return b-a <= eps
}

func TestSpreadView_LayoutPlacesPagesSideBySide(t *testing.T) {
	test.NewTempApp(t)
	v := NewSpreadView()
	v.Gutter = 10
	v.SetPages([]image.Image{
		image.NewRGBA(image.Rect(0, 0, 100, 200)),
		image.NewRGBA(image.Rect(0, 0, 100, 200)),
	})
	r, ok := v.CreateRenderer().(*spreadRenderer)
	if !ok {
		t.Fatalf("expected spreadRenderer, got %T", v.CreateRenderer())
	}
	r.Layout(fyne.NewSize(410, 200))

	if len(r.pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(r.pages))
	}
	left, right := r.pages[0], r.pages[1]
	if !almostEqual(left.Position().X, 100, 0.1) || !almostEqual(right.Position().X, 210, 0.1) {
		t.Fatalf("positions = %v, %v", left.Position(), right.Position())
	}
	if !almostEqual(left.Size().Width, 100, 0.1) || !almostEqual(left.Size().Height, 200, 0.1) {
		t.Fatalf("size = %v", left.Size())
	}
	if _, isBg := r.Objects()[0].(*canvas.Rectangle); !isBg {
		t.Fatalf("first object should be the background, got %T", r.Objects()[0])
	}
}

func TestSpreadView_ResizeCallbackOnWidthChange(t *testing.T) {
	test.NewTempApp(t)
	v := NewSpreadView()
	var calls []float32
	v.OnResize = func(s fyne.Size) { calls = append(calls, s.Width) }
	r := v.CreateRenderer()
	r.Layout(fyne.NewSize(800, 600))
	r.Layout(fyne.NewSize(800, 500))
	r.Layout(fyne.NewSize(600, 500))
	if len(calls) != 2 || calls[0] != 800 || calls[1] != 600 {
		t.Fatalf("OnResize calls = %v", calls)
	}
}

func TestSpreadView_RefreshRebuildsOnNewImages(t *testing.T) {
	test.NewTempApp(t)
	v := NewSpreadView()
	r := v.CreateRenderer().(*spreadRenderer)
	if len(r.pages) != 0 {
		t.Fatalf("empty view has %d pages", len(r.pages))
	}
	v.images = []image.Image{image.NewRGBA(image.Rect(0, 0, 10, 10))}
	r.Refresh()
	if len(r.pages) != 1 || len(r.Objects()) != 2 {
		t.Fatalf("after refresh pages=%d objects=%d", len(r.pages), len(r.Objects()))
	}
}
