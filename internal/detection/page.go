package detection

import (
	"image"

	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// Page is a rendered PDF page prepared for detection.
//
// The grayscale and blurred rasters are derived once when the page is created
// and are shared read-only by every detector. Detectors never modify a Page.
type Page struct {
	// Number is the 1-based page index in the source document.
	Number int

	img     image.Image
	gray    *image.Gray
	blurred *image.Gray
}

// pageBlurRadius gives a 5-tap Gaussian, the smoothing applied before edge
// detection throughout the detectors.
const pageBlurRadius = 2

// NewPage wraps a rendered page image.
func NewPage(number int, img image.Image) *Page {
	gray := imaging.Grayscale(img)
	return &Page{
		Number:  number,
		img:     img,
		gray:    gray,
		blurred: imaging.Blur(gray, pageBlurRadius),
	}
}

// Image returns the original page raster.
func (p *Page) Image() image.Image { return p.img }

// Gray returns the grayscale raster, anchored at the origin.
func (p *Page) Gray() *image.Gray { return p.gray }

// Blurred returns the Gaussian-smoothed grayscale raster.
func (p *Page) Blurred() *image.Gray { return p.blurred }

// Bounds returns the page rectangle anchored at the origin.
func (p *Page) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.gray.Rect.Dx(), p.gray.Rect.Dy())
}

// Width returns the page width in pixels.
func (p *Page) Width() int { return p.gray.Rect.Dx() }

// Height returns the page height in pixels.
func (p *Page) Height() int { return p.gray.Rect.Dy() }

// Area returns the page area in pixels.
func (p *Page) Area() int { return p.Width() * p.Height() }
