/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package render opens readable documents and turns their pages into images.
// Comic archives (.cbz/.zip), image directories and single images are decoded in-process;
// PDF documents are opened for their page count only.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// SourceDPI is the resolution an unscaled image page is assumed to have.
const SourceDPI = 300

var (
	// ErrRenderUnsupported is returned when a document can be paged but not rasterized here.
	ErrRenderUnsupported = errors.New("page rendering not supported for this document type")
	// ErrPageOutOfRange is returned for page numbers outside 1..TotalPages.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrUnsupportedFormat is returned by Open for files it cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Document is an opened book. Pages are numbered from 1.
type Document interface {
	ID() string
	Path() string
	TotalPages() int
	Close() error
}

// Rasterizer produces the image of one page at the given resolution.
type Rasterizer interface {
	RenderPage(ctx context.Context, page, dpi int) (image.Image, error)
}

// Source is a document that can render its own pages.
type Source interface {
	Document
	Rasterizer
}

// Identity modes for document ids.
const (
	IdentityFilename = "filename"
	IdentitySHA256   = "sha256"
)

// Open picks the reader for path by its type. mode selects how the document id is derived.
func Open(path, mode string) (Source, error) {
	id, err := Identify(path, mode)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return OpenImageDir(path, id)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".pdf":
		return OpenPDF(path, id)
	case ext == ".cbz" || ext == ".zip":
		return OpenArchive(path, id)
	case isImageName(path):
		return openSingleImage(path, id)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}

// Identify returns the document id for path. The filename mode uses the base name, which is how
// existing state files are keyed; sha256 hashes the content so renamed files keep their state.
// Directories are always identified by name.
func Identify(path, mode string) (string, error) {
	if mode != IdentitySHA256 {
		return filepath.Base(filepath.Clean(path)), nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return filepath.Base(filepath.Clean(path)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Scale resizes img from SourceDPI to dpi. dpi <= 0 or SourceDPI returns img unchanged.
func Scale(img image.Image, dpi int) image.Image {
	if dpi <= 0 || dpi == SourceDPI {
		return img
	}
	b := img.Bounds()
	w := max(1, b.Dx()*dpi/SourceDPI)
	h := max(1, b.Dy()*dpi/SourceDPI)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func checkPage(page, total int) error {
	if page < 1 || page > total {
		return fmt.Errorf("page %d of %d: %w", page, total, ErrPageOutOfRange)
	}
	return nil
}
