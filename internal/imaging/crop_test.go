package imaging

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// createPatternImage creates an image with different colors in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.RGBA{255, 255, 255, 255} // White bottom-right
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCrop(t *testing.T) {
	img := createPatternImage(100, 100)

	result, err := Crop(img, image.Rect(0, 0, 50, 50), 1.0)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	if result.Width != 50 || result.Height != 50 {
		t.Errorf("dimensions: got %dx%d, want 50x50", result.Width, result.Height)
	}

	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	if _, err := base64.StdEncoding.DecodeString(result.ImageBase64); err != nil {
		t.Errorf("failed to decode base64: %v", err)
	}
}

func TestCrop_WithScale(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	result, err := Crop(img, image.Rect(0, 0, 50, 50), 2.0)
	if err != nil {
		t.Fatalf("Crop with scale failed: %v", err)
	}

	if result.Width != 100 || result.Height != 100 {
		t.Errorf("scaled dimensions: got %dx%d, want 100x100", result.Width, result.Height)
	}
}

func TestCropRegion_ClipsToBounds(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	cropped, err := CropRegion(img, image.Rect(-20, 80, 30, 140))
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}

	if cropped.Bounds() != image.Rect(0, 0, 30, 20) {
		t.Errorf("clipped bounds: got %v, want (0,0)-(30,20)", cropped.Bounds())
	}
}

func TestCropRegion_Invalid(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		name string
		r    image.Rectangle
	}{
		{"outside", image.Rect(200, 200, 300, 300)},
		{"zero area", image.Rect(50, 50, 50, 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CropRegion(img, tt.r); err == nil {
				t.Error("CropRegion should fail for an empty region")
			}
		})
	}
}

func TestCropRegion_IsACopy(t *testing.T) {
	img := createPatternImage(100, 100)

	cropped, err := CropRegion(img, image.Rect(0, 0, 50, 50))
	if err != nil {
		t.Fatalf("CropRegion failed: %v", err)
	}
	cropped.Set(10, 10, color.Black)

	if r, _, _, _ := img.At(10, 10).RGBA(); r>>8 != 255 {
		t.Error("writing to the crop modified the source image")
	}
}

func TestCrop_VerifyContent(t *testing.T) {
	img := createPatternImage(100, 100)

	result, err := Crop(img, image.Rect(0, 0, 50, 50), 1.0)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}

	croppedImg, err := png.Decode(strings.NewReader(string(decoded)))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}

	r, g, b, _ := croppedImg.At(25, 25).RGBA()
	r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)

	if r8 != 255 || g8 != 0 || b8 != 0 {
		t.Errorf("cropped image color: got (%d,%d,%d), want (255,0,0)", r8, g8, b8)
	}
}

func TestSavePNG(t *testing.T) {
	img := createPatternImage(64, 48)
	path := filepath.Join(t.TempDir(), "nested", "page_1.png")

	size, err := SavePNG(img, path)
	if err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if size != stat.Size() || size == 0 {
		t.Errorf("reported size %d, file size %d", size, stat.Size())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Bounds().Dx() != 64 || loaded.Bounds().Dy() != 48 {
		t.Errorf("round trip dimensions: got %v", loaded.Bounds())
	}
}
