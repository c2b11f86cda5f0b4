package detection

import (
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a solid grayscale page
func createTestImage(width, height int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// fillRect paints r with value v
func fillRect(img *image.Gray, r image.Rectangle, v uint8) {
	r = r.Intersect(img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Pix[y*img.Stride+x] = v
		}
	}
}

// drawLine draws a black line of the given thickness between two points
func drawLine(img *image.Gray, x1, y1, x2, y2, thickness int) {
	dx, dy := x2-x1, y2-y1
	steps := max(absInt(dx), absInt(dy))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		x := x1 + dx*i/steps
		y := y1 + dy*i/steps
		fillRect(img, image.Rect(x-thickness/2, y-thickness/2, x-thickness/2+thickness, y-thickness/2+thickness), 0)
	}
}

// createRectangleImage creates a white page with a black rectangle outline
func createRectangleImage(width, height int, r image.Rectangle, thickness int) *image.Gray {
	img := createTestImage(width, height, 255)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), 0)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), 0)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), 0)
	fillRect(img, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), 0)
	return img
}

// createGridImage draws an n x n lattice of rulings starting at (x0, y0)
func createGridImage(width, height, x0, y0, n, spacing, thickness int) *image.Gray {
	img := createTestImage(width, height, 255)
	extent := (n - 1) * spacing
	for i := 0; i < n; i++ {
		y := y0 + i*spacing
		fillRect(img, image.Rect(x0, y, x0+extent+thickness, y+thickness), 0)
		x := x0 + i*spacing
		fillRect(img, image.Rect(x, y0, x+thickness, y0+extent+thickness), 0)
	}
	return img
}

// binaryImage builds a binary raster from rows of '#' (255) and '.' (0)
func binaryImage(rows ...string) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

func TestNewPage(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(10, 20, 110, 70))
	for y := 20; y < 70; y++ {
		for x := 10; x < 110; x++ {
			rgba.Set(x, y, color.White)
		}
	}

	page := NewPage(3, rgba)

	if page.Number != 3 {
		t.Errorf("Number: got %d, want 3", page.Number)
	}
	if page.Width() != 100 || page.Height() != 50 {
		t.Errorf("dimensions: got %dx%d, want 100x50", page.Width(), page.Height())
	}
	if page.Bounds() != image.Rect(0, 0, 100, 50) {
		t.Errorf("Bounds: got %v, want origin-anchored 100x50", page.Bounds())
	}
	if page.Area() != 5000 {
		t.Errorf("Area: got %d, want 5000", page.Area())
	}
	if page.Gray().Rect.Min != (image.Point{}) || page.Blurred().Rect.Min != (image.Point{}) {
		t.Error("derived rasters should be anchored at the origin")
	}
	if page.Image() != image.Image(rgba) {
		t.Error("Image should return the original raster")
	}
}

func TestNewPage_BlurKeepsUniformPage(t *testing.T) {
	page := NewPage(1, createTestImage(40, 30, 200))

	pix := page.Blurred().Pix
	if pix[0] < 199 || pix[0] > 200 {
		t.Fatalf("blurred value: got %d, want ~200", pix[0])
	}
	for i, v := range pix {
		if v != pix[0] {
			t.Fatalf("blurred pixel %d: got %d, want %d", i, v, pix[0])
		}
	}
}

func rect(x0, y0, x1, y1 int) image.Rectangle { return image.Rect(x0, y0, x1, y1) }
