/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package render

import (
	"context"
	"fmt"
	"image"
	"os"

	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"
)

// pdfDoc knows the page count of a PDF. Rasterizing PDF content is left to an external renderer.
type pdfDoc struct {
	id    string
	path  string
	pages int
}

// OpenPDF reads the page tree of the PDF at p.
func OpenPDF(p, id string) (Source, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	r, err := pdf.NewReader(f, nil)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	// the reader closes f
	defer r.Close()
	n, err := pagetree.NumPages(r)
	if err != nil {
		return nil, fmt.Errorf("count pdf pages: %w", err)
	}
	if n < 1 {
		return nil, fmt.Errorf("pdf has no pages: %w", ErrUnsupportedFormat)
	}
	return &pdfDoc{id: id, path: p, pages: n}, nil
}

func (d *pdfDoc) ID() string      { return d.id }
func (d *pdfDoc) Path() string    { return d.path }
func (d *pdfDoc) TotalPages() int { return d.pages }
func (d *pdfDoc) Close() error    { return nil }

func (d *pdfDoc) RenderPage(_ context.Context, page, _ int) (image.Image, error) {
	if err := checkPage(page, d.pages); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("pdf page %d: %w", page, ErrRenderUnsupported)
}
