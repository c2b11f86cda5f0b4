package model

import (
	"bytes"
	"encoding/base64"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// encodedImage is a page prepared for upload.
type encodedImage struct {
	dataURL string
	// scale is uploaded size / original size; boxes the model returns are
	// divided by it.
	scale float64
}

// encodeImage downscales img so its longer side is at most maxSide (no limit
// when maxSide <= 0) and returns it as a base64 JPEG data URL.
func encodeImage(img image.Image, maxSide int, quality int) (*encodedImage, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("encode image: empty image")
	}
	scale := 1.0
	if long := max(b.Dx(), b.Dy()); maxSide > 0 && long > maxSide {
		scale = float64(maxSide) / float64(long)
		dst := image.NewRGBA(image.Rect(0, 0,
			max(1, int(float64(b.Dx())*scale+0.5)),
			max(1, int(float64(b.Dy())*scale+0.5))))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	return &encodedImage{
		dataURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		scale:   scale,
	}, nil
}

// unscale maps a box from uploaded-image pixels back to original pixels.
func (e *encodedImage) unscale(b *Box) *Box {
	if b == nil || e.scale == 1 {
		return b
	}
	out := b.scale(1 / e.scale)
	return &out
}
