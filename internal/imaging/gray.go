package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/channel"
	"github.com/anthonynsimon/bild/effect"
)

// Grayscale converts any image into an 8-bit luminance raster anchored at the
// origin. Images that are already *image.Gray at the origin are returned as is.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	return luminance(effect.Grayscale(img))
}

// Blur applies a Gaussian blur to a grayscale raster.
//
// The radius is bild's radius, which sets both the kernel length
// (ceil(2*radius+1)) and the spread. Radius 2 gives a 5-tap separable kernel,
// the size used for noise suppression ahead of edge detection. Borders are
// extended, so a uniform page stays uniform. A radius <= 0 returns a copy.
func Blur(gray *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return cloneGray(gray)
	}
	return luminance(blur.Gaussian(gray, radius))
}

// luminance takes the red channel of an image whose channels are equal and
// re-anchors it at the origin.
func luminance(img image.Image) *image.Gray {
	g := channel.Extract(img, channel.Red)
	g.Rect = g.Rect.Sub(g.Rect.Min)
	return g
}

func cloneGray(g *image.Gray) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.Rect.Dx(), g.Rect.Dy()))
	w := g.Rect.Dx()
	for y := 0; y < g.Rect.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+w], g.Pix[y*g.Stride:y*g.Stride+w])
	}
	return out
}

// CountNonZero returns the number of non-zero pixels of g inside r.
// The rectangle is clipped to the raster bounds.
func CountNonZero(g *image.Gray, r image.Rectangle) int {
	r = r.Intersect(g.Rect)
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := g.Pix[g.PixOffset(r.Min.X, y):g.PixOffset(r.Max.X-1, y)+1]
		for _, v := range row {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// And returns the pixel-wise intersection of two binary rasters of equal size.
func And(a, b *image.Gray) *image.Gray {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if a.Pix[y*a.Stride+x] != 0 && b.Pix[y*b.Stride+x] != 0 {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
