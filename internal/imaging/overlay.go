package imaging

import (
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OverlayBox is one rectangle to outline on a debug overlay.
type OverlayBox struct {
	Rect  image.Rectangle
	Label string
	// Group selects the outline colour. Boxes with the same group share a
	// colour, typically the detector source tag.
	Group string
}

// OverlayOptions controls DrawOverlay.
type OverlayOptions struct {
	// GridSpacing draws a faint reference grid every n pixels when > 0,
	// matching the density cells used by region scoring.
	GridSpacing int
	// Thickness is the outline width in pixels. Defaults to 3.
	Thickness int
}

// DrawOverlay renders boxes on a copy of img for visual inspection of
// detector output. The source image is not modified.
func DrawOverlay(img image.Image, boxes []OverlayBox, opts OverlayOptions) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	if opts.GridSpacing > 0 {
		gridColor := color.RGBA{0, 160, 255, 255}
		for x := opts.GridSpacing; x < result.Rect.Dx(); x += opts.GridSpacing {
			for y := 0; y < result.Rect.Dy(); y++ {
				blend(result, x, y, gridColor)
			}
		}
		for y := opts.GridSpacing; y < result.Rect.Dy(); y += opts.GridSpacing {
			for x := 0; x < result.Rect.Dx(); x++ {
				blend(result, x, y, gridColor)
			}
		}
	}

	thickness := opts.Thickness
	if thickness <= 0 {
		thickness = 3
	}
	for _, b := range boxes {
		c := groupColor(b.Group)
		r := b.Rect.Intersect(result.Rect)
		if r.Empty() {
			continue
		}
		for t := 0; t < thickness; t++ {
			inner := r.Inset(t)
			if inner.Empty() {
				break
			}
			strokeRect(result, inner, c)
		}
		if b.Label != "" {
			drawLabel(result, r.Min.X, r.Min.Y, b.Label, c)
		}
	}
	return result
}

// groupColor maps a group name to a stable saturated colour.
func groupColor(group string) color.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(group))
	hue := float64(h.Sum32() % 360)
	return colorful.Hsv(hue, 0.85, 0.9)
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// blend mixes c into the pixel at (x, y) at half strength.
func blend(img *image.RGBA, x, y int, c color.RGBA) {
	o := img.RGBAAt(x, y)
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((uint16(o.R) + uint16(c.R)) / 2),
		G: uint8((uint16(o.G) + uint16(c.G)) / 2),
		B: uint8((uint16(o.B) + uint16(c.B)) / 2),
		A: 255,
	})
}

// drawLabel writes text on a filled tab just above (x, y), or just inside
// the box when there is no room above it.
func drawLabel(img *image.RGBA, x, y int, text string, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Height + 2

	top := y - height
	if top < img.Rect.Min.Y {
		top = y
	}
	tab := image.Rect(x, top, x+width, top+height).Intersect(img.Rect)
	draw.Draw(img, tab, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x+2, top+face.Ascent+1),
	}
	d.DrawString(text)
}
