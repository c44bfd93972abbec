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
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	applog "bookreader/internal/log"
)

// Cache stores encoded pages. storage.PageCache implements it.
type Cache interface {
	Get(ctx context.Context, docID string, page, dpi int) ([]byte, bool, error)
	Put(ctx context.Context, docID string, page, dpi int, blob []byte) error
}

// Cached serves pages from a Cache and renders through the wrapped Source on a miss. Cache
// failures are logged and never fail a render.
type Cached struct {
	Source
	cache Cache
	log   *slog.Logger
}

// WithCache wraps src. A nil cache returns src itself.
func WithCache(src Source, c Cache) Source {
	if c == nil {
		return src
	}
	return &Cached{Source: src, cache: c, log: applog.WithDocument(applog.WithComponent("render"), src.ID())}
}

func (c *Cached) RenderPage(ctx context.Context, page, dpi int) (image.Image, error) {
	if blob, ok, err := c.cache.Get(ctx, c.ID(), page, dpi); err != nil {
		c.log.Warn("page cache read failed", slog.Int("page", page), slog.Any("err", err))
	} else if ok {
		img, derr := png.Decode(bytes.NewReader(blob))
		if derr == nil {
			return img, nil
		}
		c.log.Warn("cached page unreadable", slog.Int("page", page), slog.Any("err", derr))
	}
	img, err := c.Source.RenderPage(ctx, page, dpi)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		c.log.Warn("encode page for cache failed", slog.Int("page", page), slog.Any("err", err))
		return img, nil
	}
	if err := c.cache.Put(ctx, c.ID(), page, dpi, buf.Bytes()); err != nil {
		c.log.Warn("page cache write failed", slog.Int("page", page), slog.Any("err", fmt.Errorf("put: %w", err)))
	}
	return img, nil
}
