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
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"bookreader/internal/domain"
	"bookreader/internal/render"
)

// CBZOptions controls CBZ export.
type CBZOptions struct {
	DPI int
	// From and To bound the exported page range; zero means the document edge.
	From, To int
	Title    string
}

// ExportCBZ renders a page range into a CBZ archive. ComicInfo.xml carries the reading direction
// and a bookmark for every page that has memos.
func ExportCBZ(ctx context.Context, src render.Source, ds domain.DocState, outPath string, opt CBZOptions) error {
	from, to := opt.From, opt.To
	if from <= 0 {
		from = 1
	}
	if to <= 0 || to > src.TotalPages() {
		to = src.TotalPages()
	}
	if from > to {
		return &domain.ValidationError{Field: "range", Reason: fmt.Sprintf("%d..%d is empty", from, to)}
	}
	if opt.DPI <= 0 {
		opt.DPI = render.SourceDPI
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".cbz") {
		outPath += ".cbz"
	}

	zw, f, err := createZip(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	pad := len(fmt.Sprint(to - from + 1))
	var buf bytes.Buffer
	for p := from; p <= to; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := src.RenderPage(ctx, p, opt.DPI)
		if err != nil {
			return fmt.Errorf("render page %d: %w", p, err)
		}
		buf.Reset()
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		name := fmt.Sprintf("%0*d.png", pad, p-from+1)
		if err := addZipFile(zw, name, buf.Bytes()); err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
	}

	title := opt.Title
	if title == "" {
		title = src.ID()
	}
	manifest := buildComicInfoXML(title, from, to, ds)
	if err := addZipFile(zw, "ComicInfo.xml", []byte(manifest)); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create cbz: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// buildComicInfoXML writes the ComicInfo manifest. Page indices in ComicInfo are 0-based within
// the archive; several memos on one page are joined into one bookmark.
func buildComicInfoXML(title string, from, to int, ds domain.DocState) string {
	marks := map[int][]string{}
	for _, m := range ds.Memos {
		if m.Page >= from && m.Page <= to {
			marks[m.Page] = append(marks[m.Page], m.Title)
		}
	}
	manga := "No"
	if ds.ReadingDirection == domain.RightToLeft {
		manga = "YesAndRightToLeft"
	}
	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	buf.WriteString("<ComicInfo xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\">\n")
	fmt.Fprintf(&buf, "  <Title>%s</Title>\n", xmlEsc(title))
	fmt.Fprintf(&buf, "  <PageCount>%d</PageCount>\n", to-from+1)
	fmt.Fprintf(&buf, "  <Manga>%s</Manga>\n", manga)
	if len(marks) > 0 {
		buf.WriteString("  <Pages>\n")
		for p := from; p <= to; p++ {
			if t, ok := marks[p]; ok {
				fmt.Fprintf(&buf, "    <Page Image=\"%d\" Bookmark=\"%s\"/>\n", p-from, xmlEsc(strings.Join(t, "; ")))
			}
		}
		buf.WriteString("  </Pages>\n")
	}
	buf.WriteString("</ComicInfo>\n")
	return buf.String()
}

func xmlEsc(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '"':
			out = append(out, "&quot;"...)
		case '\'':
			out = append(out, "&apos;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
