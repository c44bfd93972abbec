/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"bookreader/internal/render"
)

// folioHeight is the strip below the pages that holds page numbers.
const folioHeight = 18

// PNGOptions controls spread export.
type PNGOptions struct {
	DPI int
	// Gutter is the gap between pages in pixels.
	Gutter int
	// MarkPages draws a small tab in the top outer corner of these pages.
	MarkPages  []int
	MarkColor  color.RGBA
	Background color.RGBA
	// Folios prints each page number centered below its page.
	Folios bool
}

// ComposeSpread renders pages (in screen order) side by side, top aligned.
func ComposeSpread(ctx context.Context, r render.Rasterizer, pages []int, opt PNGOptions) (*image.RGBA, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to compose")
	}
	if opt.DPI <= 0 {
		opt.DPI = render.SourceDPI
	}
	if opt.Background.A == 0 {
		opt.Background = color.RGBA{255, 255, 255, 255}
	}
	if opt.MarkColor.A == 0 {
		opt.MarkColor = color.RGBA{R: 230, G: 120, B: 0, A: 255}
	}
	imgs := make([]image.Image, len(pages))
	width, height := 0, 0
	for i, p := range pages {
		img, err := r.RenderPage(ctx, p, opt.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", p, err)
		}
		imgs[i] = img
		b := img.Bounds()
		width += b.Dx()
		if i > 0 {
			width += opt.Gutter
		}
		height = max(height, b.Dy())
	}

	pageH := height
	if opt.Folios {
		height += folioHeight
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: opt.Background}, image.Point{}, draw.Src)
	marked := make(map[int]bool, len(opt.MarkPages))
	for _, p := range opt.MarkPages {
		marked[p] = true
	}
	x := 0
	for i, img := range imgs {
		b := img.Bounds()
		dst := image.Rect(x, 0, x+b.Dx(), b.Dy())
		draw.Draw(out, dst, img, b.Min, draw.Over)
		if marked[pages[i]] {
			tab := max(4, b.Dx()/12)
			// outer corner: left for the first page, right otherwise
			tx := dst.Max.X - tab
			if i == 0 && len(imgs) > 1 {
				tx = dst.Min.X
			}
			fillRect(out, tx, 0, tx+tab-1, tab-1, opt.MarkColor)
			strokeRect(out, tx, 0, tx+tab-1, tab-1, color.RGBA{A: 255})
		}
		if opt.Folios {
			drawFolio(out, strconv.Itoa(pages[i]), dst.Min.X, dst.Max.X, pageH)
		}
		x = dst.Max.X + opt.Gutter
	}
	return out, nil
}

// ExportSpreadPNG writes the composed spread to outPath.
func ExportSpreadPNG(ctx context.Context, r render.Rasterizer, pages []int, outPath string, opt PNGOptions) error {
	img, err := ComposeSpread(ctx, r, pages, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

// drawFolio centers label between x0 and x1 in the strip starting at top.
func drawFolio(img *image.RGBA, label string, x0, x1, top int) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{A: 255}), Face: basicfont.Face7x13}
	w := d.MeasureString(label).Ceil()
	baseline := top + (folioHeight+basicfont.Face7x13.Ascent-basicfont.Face7x13.Descent)/2
	d.Dot = fixed.P(x0+(x1-x0-w)/2, baseline)
	d.DrawString(label)
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
