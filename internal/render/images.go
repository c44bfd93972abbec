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
	"archive/zip"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

func isImageName(name string) bool {
	base := path.Base(filepath.ToSlash(name))
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageExts[strings.ToLower(path.Ext(base))]
}

// imageDoc is a book whose pages are encoded images opened by name.
type imageDoc struct {
	id    string
	path  string
	pages []string
	open  func(name string) (io.ReadCloser, error)
	close func() error
}

func (d *imageDoc) ID() string      { return d.id }
func (d *imageDoc) Path() string    { return d.path }
func (d *imageDoc) TotalPages() int { return len(d.pages) }

func (d *imageDoc) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// PageName returns the entry that holds page.
func (d *imageDoc) PageName(page int) (string, error) {
	if err := checkPage(page, len(d.pages)); err != nil {
		return "", err
	}
	return d.pages[page-1], nil
}

func (d *imageDoc) RenderPage(ctx context.Context, page, dpi int) (image.Image, error) {
	name, err := d.PageName(page)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := d.open(name)
	if err != nil {
		return nil, fmt.Errorf("open page %d: %w", page, err)
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode page %d (%s): %w", page, name, err)
	}
	return Scale(img, dpi), nil
}

// OpenArchive opens a comic archive. Pages are its image entries in natural name order.
func OpenArchive(p, id string) (Source, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	files := map[string]*zip.File{}
	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isImageName(f.Name) || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		files[f.Name] = f
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		_ = zr.Close()
		return nil, fmt.Errorf("%s: no image pages: %w", filepath.Base(p), ErrUnsupportedFormat)
	}
	sortNatural(names)
	return &imageDoc{
		id:    id,
		path:  p,
		pages: names,
		open:  func(name string) (io.ReadCloser, error) { return files[name].Open() },
		close: zr.Close,
	}, nil
}

// OpenImageDir opens a directory of page images in natural name order.
func OpenImageDir(dir, id string) (Source, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image dir: %w", err)
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && isImageName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: no image pages: %w", filepath.Base(dir), ErrUnsupportedFormat)
	}
	sortNatural(names)
	return &imageDoc{
		id:    id,
		path:  dir,
		pages: names,
		open:  func(name string) (io.ReadCloser, error) { return os.Open(filepath.Join(dir, name)) },
	}, nil
}

func openSingleImage(p, id string) (Source, error) {
	return &imageDoc{
		id:    id,
		path:  p,
		pages: []string{filepath.Base(p)},
		open:  func(string) (io.ReadCloser, error) { return os.Open(p) },
	}, nil
}

func sortNatural(names []string) {
	sort.SliceStable(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
}

// naturalLess compares names so that "page2" sorts before "page10".
func naturalLess(a, b string) bool {
	ar, br := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na := strings.TrimLeft(string(ar[si:i]), "0")
			nb := strings.TrimLeft(string(br[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ar[i] != br[j] {
			return ar[i] < br[j]
		}
		i++
		j++
	}
	if len(ar)-i != len(br)-j {
		return len(ar)-i < len(br)-j
	}
	// equal up to case and zero padding: fall back to the folded then the raw name
	if la, lb := strings.ToLower(a), strings.ToLower(b); la != lb {
		return la < lb
	}
	return a < b
}
