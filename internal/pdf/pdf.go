// Package pdf opens exam PDFs: it renders pages to images with MuPDF
// (go-fitz) and reads the embedded text layer when there is one.
//
// Page numbers are 1-based throughout.
package pdf

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// DefaultDPI is the rendering resolution the detector thresholds are tuned
// for.
const DefaultDPI = 300

// ErrNoPages is returned for a document without pages.
var ErrNoPages = errors.New("pdf has no pages")

// Rasterizer renders document pages.
type Rasterizer interface {
	PageCount() int
	RenderPage(number int) (image.Image, error)
	Close() error
}

// FitzRasterizer renders pages with MuPDF.
type FitzRasterizer struct {
	doc *fitz.Document
	dpi float64
}

// OpenFitz opens path for rendering at dpi (DefaultDPI when dpi <= 0).
func OpenFitz(path string, dpi int) (*FitzRasterizer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, errors.Wrap(ErrNoPages, path)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRasterizer{doc: doc, dpi: float64(dpi)}, nil
}

func (f *FitzRasterizer) PageCount() int {
	return f.doc.NumPage()
}

// RenderPage renders page number as RGBA.
func (f *FitzRasterizer) RenderPage(number int) (image.Image, error) {
	if number < 1 || number > f.doc.NumPage() {
		return nil, errors.Errorf("page %d out of range 1..%d", number, f.doc.NumPage())
	}
	img, err := f.doc.ImageDPI(number-1, f.dpi)
	if err != nil {
		return nil, errors.Wrapf(err, "render page %d", number)
	}
	return img, nil
}

func (f *FitzRasterizer) Close() error {
	return f.doc.Close()
}

// TextLayer is the embedded text of every page.
type TextLayer struct {
	pages []string
}

// NewTextLayer builds a layer from page texts in page order.
func NewTextLayer(pages ...string) *TextLayer {
	return &TextLayer{pages: pages}
}

// OpenTextLayer reads the text layer of the PDF at path.
func OpenTextLayer(path string) (*TextLayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat pdf")
	}
	return ReadTextLayer(f, info.Size())
}

// ReadTextLayer reads the text layer of a PDF of the given size. Pages whose
// text cannot be decoded are left empty.
func ReadTextLayer(r io.ReaderAt, size int64) (layer *TextLayer, err error) {
	// The reader panics on some malformed structures.
	defer func() {
		if rec := recover(); rec != nil {
			layer = nil
			err = errors.Errorf("read pdf text: %v", rec)
		}
	}()

	reader, err := lpdf.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "read pdf text")
	}
	n := reader.NumPage()
	if n == 0 {
		return nil, ErrNoPages
	}
	layer = &TextLayer{pages: make([]string, n)}
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		layer.pages[i-1] = strings.TrimSpace(text)
	}
	return layer, nil
}

// PageCount returns the number of pages.
func (t *TextLayer) PageCount() int { return len(t.pages) }

// PageText returns the text of page number, or "" when out of range.
func (t *TextLayer) PageText(number int) string {
	if t == nil || number < 1 || number > len(t.pages) {
		return ""
	}
	return t.pages[number-1]
}

// String summarizes the layer for logs.
func (t *TextLayer) String() string {
	chars := 0
	for _, p := range t.pages {
		chars += len(p)
	}
	return fmt.Sprintf("%d pages, %d chars", len(t.pages), chars)
}
