package webui

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"nerase/acquire"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultThumbnailWidth is the width sample previews are scaled to.
	DefaultThumbnailWidth = 320

	// DefaultThumbnailFetchTimeout bounds a shared preview download.
	DefaultThumbnailFetchTimeout = 60 * time.Second
)

// ThumbnailCache downloads sample images once, scales them down and keeps
// the JPEG previews in memory. Concurrent requests for the same URL share
// one download, which no single caller can cancel.
type ThumbnailCache struct {
	fetcher      acquire.Fetcher
	width        int
	quality      int
	fetchTimeout time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string][]byte
}

// NewThumbnailCache creates a cache; width <= 0 means DefaultThumbnailWidth.
func NewThumbnailCache(fetcher acquire.Fetcher, width int) *ThumbnailCache {
	if width <= 0 {
		width = DefaultThumbnailWidth
	}
	return &ThumbnailCache{
		fetcher:      fetcher,
		width:        width,
		quality:      80,
		fetchTimeout: DefaultThumbnailFetchTimeout,
		cache:        make(map[string][]byte),
	}
}

// Get returns the JPEG preview for url, fetching and scaling it on first use.
// Failures are not cached. Cancelling ctx abandons the wait for this caller
// only; the download continues for the others and still fills the cache.
func (t *ThumbnailCache) Get(ctx context.Context, url string) ([]byte, error) {
	t.mu.RLock()
	data, ok := t.cache[url]
	t.mu.RUnlock()
	if ok {
		return data, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := t.group.DoChan(url, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(fetchCtx, t.fetchTimeout)
		defer cancel()

		raw, _, err := t.fetcher.DownloadBytes(fetchCtx, url)
		if err != nil {
			return nil, err
		}
		thumb, err := Thumbnail(raw, t.width, t.quality)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.cache[url] = thumb
		t.mu.Unlock()
		return thumb, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of cached previews.
func (t *ThumbnailCache) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}

// Thumbnail decodes src (PNG, JPEG or WebP) and re-encodes it as a JPEG no
// wider than width, keeping the aspect ratio. Smaller images are not
// enlarged.
func Thumbnail(src []byte, width, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("webui: decode thumbnail source: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > width {
		h = h * width / w
		if h < 1 {
			h = 1
		}
		w = width
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("webui: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
