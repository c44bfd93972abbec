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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"bookreader/internal/version"
)

// PDFOptions controls the memo sheet layout. Units are points.
type PDFOptions struct {
	PageSize string // gofpdf size name, A4 when empty
	FontSize float64
	Margin   float64
}

// WritePDF writes the memo sheet to outPath as a PDF. Built-in Helvetica keeps the file small;
// text is translated to cp1252, so characters outside it are replaced.
func WritePDF(sh Sheet, outPath string, opt PDFOptions) error {
	if opt.PageSize == "" {
		opt.PageSize = "A4"
	}
	if opt.FontSize <= 0 {
		opt.FontSize = 11
	}
	if opt.Margin <= 0 {
		opt.Margin = 48
	}
	pdf := gofpdf.New("P", "pt", opt.PageSize, "")
	pdf.SetMargins(opt.Margin, opt.Margin, opt.Margin)
	pdf.SetAutoPageBreak(true, opt.Margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Memos: "+sh.DocID, true)
	pdf.SetCreator("bookreader "+version.String(), true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-opt.Margin + 12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  |  page %d", tr(sh.DocID), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	lh := opt.FontSize * 1.35
	pdf.SetFont("Helvetica", "B", opt.FontSize*1.8)
	pdf.MultiCell(0, opt.FontSize*2.2, tr("Memos: "+sh.DocID), "", "L", false)
	pdf.SetFont("Helvetica", "", opt.FontSize*0.9)
	meta := fmt.Sprintf("Reading direction: %s    Current page: %d    Memos: %d",
		directionLabel(sh.Direction), sh.CurrentPage, len(sh.Memos))
	if !sh.Generated.IsZero() {
		meta += "    Generated: " + sh.Generated.Format(time.DateTime)
	}
	pdf.MultiCell(0, lh, tr(meta), "", "L", false)
	pdf.Ln(lh)

	if len(sh.Memos) == 0 {
		pdf.SetFont("Helvetica", "I", opt.FontSize)
		pdf.MultiCell(0, lh, "No memos yet.", "", "L", false)
	}
	md := goldmark.New()
	for _, m := range sh.Memos {
		pdf.SetFont("Helvetica", "B", opt.FontSize*1.2)
		pdf.SetDrawColor(160, 160, 160)
		pdf.MultiCell(0, lh*1.2, tr(fmt.Sprintf("p. %d  %s", m.Page, m.Title)), "B", "L", false)
		pdf.Ln(lh * 0.3)
		pdf.SetFont("Helvetica", "", opt.FontSize)
		for _, block := range memoBlocks(md, m.Content) {
			pdf.SetX(opt.Margin + block.indent)
			pdf.MultiCell(0, lh, tr(block.text), "", "L", false)
		}
		pdf.Ln(lh)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("layout pdf: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

type textBlock struct {
	text   string
	indent float64
}

// memoBlocks flattens memo Markdown into paragraphs; list items become bulleted, indented blocks.
func memoBlocks(md goldmark.Markdown, content string) []textBlock {
	src := []byte(content)
	doc := md.Parser().Parse(text.NewReader(src))
	var out []textBlock
	var walk func(n ast.Node, indent float64)
	walk = func(n ast.Node, indent float64) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch b := c.(type) {
			case *ast.List:
				walk(b, indent+14)
			case *ast.ListItem:
				out = append(out, textBlock{text: "- " + inlineText(b, src), indent: indent})
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				out = append(out, textBlock{text: blockLines(b, src), indent: indent})
			case *ast.Blockquote:
				walk(b, indent+14)
			default:
				if t := inlineText(b, src); t != "" {
					out = append(out, textBlock{text: t, indent: indent})
				}
			}
		}
	}
	walk(doc, 0)
	if len(out) == 0 && strings.TrimSpace(content) != "" {
		out = append(out, textBlock{text: content})
	}
	return out
}

// inlineText concatenates the text leaves under n, keeping line breaks.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.HardLineBreak() {
				sb.WriteByte('\n')
			} else if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.AutoLink:
			sb.Write(t.URL(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func blockLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}
