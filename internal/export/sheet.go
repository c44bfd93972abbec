/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export writes memo sheets and page images of an open document.
package export

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"bookreader/internal/domain"
)

// Sheet is the printable view of one document's memos.
type Sheet struct {
	DocID       string
	Direction   domain.Direction
	CurrentPage int
	Memos       []domain.Memo
	Generated   time.Time
}

// SheetOptions controls memo ordering on a sheet.
type SheetOptions struct {
	// ByPage orders memos by page, keeping insertion order within a page.
	ByPage bool
}

// NewSheet snapshots ds for export.
func NewSheet(docID string, ds domain.DocState, opt SheetOptions) Sheet {
	memos := append([]domain.Memo(nil), ds.Memos...)
	if opt.ByPage {
		sort.SliceStable(memos, func(i, j int) bool { return memos[i].Page < memos[j].Page })
	}
	return Sheet{
		DocID:       docID,
		Direction:   ds.ReadingDirection,
		CurrentPage: ds.CurrentPage,
		Memos:       memos,
		Generated:   time.Now(),
	}
}

// WriteMarkdown renders the sheet as Markdown. Memo content is emitted as-is so that
// formatting typed into a memo survives.
func WriteMarkdown(w io.Writer, sh Sheet) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Memos: %s\n\n", mdEscape(sh.DocID))
	fmt.Fprintf(&buf, "- Reading direction: %s\n", directionLabel(sh.Direction))
	fmt.Fprintf(&buf, "- Current page: %d\n", sh.CurrentPage)
	fmt.Fprintf(&buf, "- Memos: %d\n", len(sh.Memos))
	if !sh.Generated.IsZero() {
		fmt.Fprintf(&buf, "- Generated: %s\n", sh.Generated.Format(time.RFC3339))
	}
	if len(sh.Memos) == 0 {
		buf.WriteString("\n_No memos yet._\n")
	}
	for _, m := range sh.Memos {
		fmt.Fprintf(&buf, "\n## p. %d: %s\n\n", m.Page, mdEscape(m.Title))
		buf.WriteString(strings.TrimRight(m.Content, "\n"))
		buf.WriteString("\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteHTML renders the Markdown sheet to a standalone HTML page. Raw HTML inside memos is
// not passed through.
func WriteHTML(w io.Writer, sh Sheet) error {
	var src bytes.Buffer
	if err := WriteMarkdown(&src, sh); err != nil {
		return err
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	var body bytes.Buffer
	if err := md.Convert(src.Bytes(), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>Memos: %s</title>\n", htmlEscape(sh.DocID))
	out.WriteString("<style>body{font-family:sans-serif;max-width:48em;margin:2em auto}h2{border-bottom:1px solid #ccc}</style>\n")
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	_, err := w.Write(out.Bytes())
	return err
}

func directionLabel(d domain.Direction) string {
	if d == domain.RightToLeft {
		return "right to left"
	}
	return "left to right"
}

var mdReplacer = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "<", `\<`, "#", `\#`,
	"\n", " ",
)

func mdEscape(s string) string { return mdReplacer.Replace(s) }

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")

func htmlEscape(s string) string { return htmlReplacer.Replace(s) }
