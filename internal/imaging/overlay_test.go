package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestDrawOverlay(t *testing.T) {
	img := createInMemoryImage(200, 200, color.White)
	boxes := []OverlayBox{
		{Rect: image.Rect(20, 40, 120, 140), Label: "grid 92.0", Group: "grid_intersection"},
		{Rect: image.Rect(130, 10, 190, 60), Group: "contour_density"},
	}

	out := DrawOverlay(img, boxes, OverlayOptions{})

	if out.Bounds() != image.Rect(0, 0, 200, 200) {
		t.Fatalf("bounds: got %v", out.Bounds())
	}
	if c := out.RGBAAt(20, 90); c == (color.RGBA{255, 255, 255, 255}) {
		t.Error("left edge of the first box was not drawn")
	}
	if c := out.RGBAAt(70, 90); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("box interior changed: %v", c)
	}
	if r, _, _, _ := img.At(20, 90).RGBA(); r>>8 != 255 {
		t.Error("source image was modified")
	}
}

func TestDrawOverlay_Grid(t *testing.T) {
	img := createInMemoryImage(250, 250, color.White)

	out := DrawOverlay(img, nil, OverlayOptions{GridSpacing: 100})

	if c := out.RGBAAt(100, 5); c == (color.RGBA{255, 255, 255, 255}) {
		t.Error("grid line at x=100 not drawn")
	}
	if c := out.RGBAAt(50, 50); c != (color.RGBA{255, 255, 255, 255}) {
		t.Error("grid should leave cell interiors untouched")
	}
}

func TestGroupColor_Stable(t *testing.T) {
	a := groupColor("blob_detection")
	b := groupColor("blob_detection")

	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	if ar != br || ag != bg || ab != bb {
		t.Error("same group should map to the same colour")
	}
}
