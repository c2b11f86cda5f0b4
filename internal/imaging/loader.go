package imaging

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Load decodes a page image from disk, honouring EXIF orientation.
// Supported formats are those of disintegration/imaging (PNG, JPEG, GIF,
// TIFF, BMP).
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return img, nil
}

// DefaultCacheLimit is the number of pages a PageCache holds. A 300 DPI A4
// page decodes to roughly 35 MB.
const DefaultCacheLimit = 8

// PageCache keeps decoded page images keyed by path so that several tools can
// inspect the same page without decoding it again.
//
// An entry is reloaded when the file's size or modification time changes:
// re-processing a PDF rewrites page_N.png in place. When more than the limit
// is cached the least recently used page is dropped.
//
// PageCache is safe for concurrent use.
type PageCache struct {
	mu      sync.Mutex
	limit   int
	clock   uint64
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	img     image.Image
	modTime time.Time
	size    int64
	used    uint64
}

// NewPageCache returns an empty cache holding at most limit pages. A limit
// below 1 uses DefaultCacheLimit.
func NewPageCache(limit int) *PageCache {
	if limit < 1 {
		limit = DefaultCacheLimit
	}
	return &PageCache{
		limit:   limit,
		entries: make(map[string]*cacheEntry),
	}
}

// Load returns the cached page for path, decoding it when it is not cached or
// the file changed since it was cached.
func (c *PageCache) Load(path string) (image.Image, error) {
	img, _, err := c.load(path)
	return img, err
}

func (c *PageCache) load(path string) (image.Image, os.FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}

	c.mu.Lock()
	if e, ok := c.entries[path]; ok && e.size == stat.Size() && e.modTime.Equal(stat.ModTime()) {
		c.clock++
		e.used = c.clock
		c.mu.Unlock()
		return e.img, stat, nil
	}
	c.mu.Unlock()

	img, err := Load(path)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	c.entries[path] = &cacheEntry{img: img, modTime: stat.ModTime(), size: stat.Size(), used: c.clock}
	for len(c.entries) > c.limit {
		c.evictOldest()
	}
	return img, stat, nil
}

func (c *PageCache) evictOldest() {
	var oldest string
	var used uint64 = math.MaxUint64
	for path, e := range c.entries {
		if e.used < used {
			oldest, used = path, e.used
		}
	}
	delete(c.entries, oldest)
}

// Len reports the number of cached pages.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// a4ShortSideInches is the width of an A4 sheet.
const a4ShortSideInches = 210 / 25.4

// PageInfo describes a rendered page file.
type PageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Format is taken from the file extension: "png", "jpeg", "gif", "tiff",
	// "bmp" or "unknown".
	Format string `json:"format"`

	// ColorDepth is "8-bit" or "16-bit" per channel.
	ColorDepth string `json:"color_depth"`
	HasAlpha   bool   `json:"has_alpha"`

	// Orientation is "portrait", "landscape" or "square".
	Orientation string `json:"orientation"`

	// EstimatedDPI assumes the page is an A4 sheet. Pages rendered for
	// detection are expected near 300.
	EstimatedDPI int `json:"estimated_dpi"`

	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadPageInfo loads a page through cache and describes it.
func LoadPageInfo(cache *PageCache, path string) (*PageInfo, error) {
	img, stat, err := cache.load(path)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	format := "unknown"
	if f, err := imaging.FormatFromFilename(filepath.Base(path)); err == nil {
		format = strings.ToLower(f.String())
	}

	hasAlpha := false
	colorDepth := "8-bit"
	switch img.(type) {
	case *image.RGBA, *image.NRGBA:
		hasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
		colorDepth = "16-bit"
	case *image.Gray16:
		colorDepth = "16-bit"
	}

	orientation := "square"
	short := bounds.Dx()
	switch {
	case bounds.Dy() > bounds.Dx():
		orientation = "portrait"
	case bounds.Dx() > bounds.Dy():
		orientation = "landscape"
		short = bounds.Dy()
	}

	return &PageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		ColorDepth:    colorDepth,
		HasAlpha:      hasAlpha,
		Orientation:   orientation,
		EstimatedDPI:  int(math.Round(float64(short) / a4ShortSideInches)),
		FileSizeBytes: stat.Size(),
	}, nil
}
